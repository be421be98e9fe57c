package tree

import (
	"strings"
	"sync"

	"github.com/bowlofstew/porto/pkg/perr"
	"github.com/bowlofstew/porto/pkg/plog"
)

var log = plog.For("tree")

// MaxLevel is the hard cap on container nesting depth from spec.md's
// Entities section.
const MaxLevel = 7

// Tree owns the name->container mapping and the mutex/condvar pair that
// backs the read/write lock protocol in lock.go, the state machine in
// state.go, and running-children bookkeeping.
type Tree struct {
	mu   sync.Mutex
	cond *sync.Cond

	containers map[string]*Container
	root       *Container
	ids        *IDPool
	registry   *Registry
	launcher   Launcher
}

// New creates a tree with just the root container, "/ " in state Stopped.
func New(idPoolMax int) *Tree {
	t := &Tree{
		containers: make(map[string]*Container),
		ids:        NewIDPool(idPoolMax),
		registry:   NewRegistry(),
	}
	t.cond = sync.NewCond(&t.mu)

	root := newContainer(0, "/", nil)
	t.containers["/"] = root
	t.root = root
	return t
}

// Registry exposes the property catalog for daemon wiring (registering
// concrete cgroup-backed setters at startup).
func (t *Tree) Registry() *Registry { return t.registry }

// SetProperty validates and applies a single property change on c using the
// tree's registry, rolling the value back to what it was before the call if
// validation or the kernel-side apply fails. This is the RPC-facing
// entrypoint; callers must hold c's write lock.
func (t *Tree) SetProperty(c *Container, name, value string) error {
	return SetProperty(c, t.registry, name, value)
}

// Root returns the tree's root container.
func (t *Tree) Root() *Container { return t.root }

// CountByState returns the number of live containers in each state, for
// metrics collection; it never blocks on a container's own lock, only the
// tree's mapping mutex.
func (t *Tree) CountByState() map[State]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[State]int, 6)
	for _, c := range t.containers {
		counts[c.State]++
	}
	return counts
}

// Get looks up a container by its full name, without locking it.
func (t *Tree) Get(name string) (*Container, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.containers[name]
	if !ok {
		return nil, perr.New(perr.ContainerDoesNotExist, "container %q does not exist", name)
	}
	return c, nil
}

// Create allocates a new container named name under its parent (derived
// from name's path prefix) per spec.md's Create lifecycle: the parent must
// be startable by the caller (checked by the caller before invoking
// Create, since that requires access-level context this package does not
// own), an id is allocated, and the container is inserted into the tree in
// state Stopped.
func (t *Tree) Create(name string, cred Credentials) (*Container, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.containers[name]; exists {
		return nil, perr.New(perr.ContainerAlreadyExists, "container %q already exists", name)
	}

	parentName := parentOf(name)
	parent, ok := t.containers[parentName]
	if !ok {
		return nil, perr.New(perr.ContainerDoesNotExist, "parent %q does not exist", parentName)
	}
	if parent.Level+1 > MaxLevel {
		return nil, perr.New(perr.InvalidValue, "container nesting exceeds max level %d", MaxLevel)
	}

	id, err := t.ids.Alloc()
	if err != nil {
		return nil, err
	}

	c := newContainer(id, name, parent)
	c.OwnerCred = cred
	t.containers[name] = c
	parent.Children = append(parent.Children, c)
	return c, nil
}

// Destroy removes c and its whole subtree from the tree, per spec.md's
// Destroy lifecycle: c must be Stopped, children are destroyed
// recursively first, and each container's id is released and waiters
// pruned only once it is actually removed from the mapping (invariant 2:
// a container is Destroyed iff it has been removed from the mapping).
func (t *Tree) Destroy(c *Container) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c.State != Stopped {
		return perr.New(perr.InvalidState, "container %s must be Stopped to destroy, is %s", c.Name, c.State)
	}
	if c.IsHeld() {
		return perr.New(perr.Busy, "container %s is locked", c.Name)
	}

	// Children first (post-order), recursively.
	children := append([]*Container{}, c.Children...)
	for _, child := range children {
		if err := t.destroyLocked(child); err != nil {
			return err
		}
	}
	return t.destroyLocked(c)
}

// destroyLocked assumes t.mu is already held. It destroys c's remaining
// children, and their subtrees, before c itself.
func (t *Tree) destroyLocked(c *Container) error {
	children := append([]*Container{}, c.Children...)
	for _, child := range children {
		if err := t.destroyLocked(child); err != nil {
			return err
		}
	}
	if c.State != Stopped {
		return perr.New(perr.InvalidState, "container %s must be Stopped to destroy, is %s", c.Name, c.State)
	}
	if c.IsHeld() {
		return perr.New(perr.Busy, "container %s is locked", c.Name)
	}
	delete(t.containers, c.Name)
	if c.Parent != nil {
		c.Parent.Children = removeChild(c.Parent.Children, c)
	}
	pruneWaiters(c)
	t.ids.Release(c.ID)
	c.State = Destroyed
	t.cond.Broadcast()
	return nil
}

func removeChild(children []*Container, target *Container) []*Container {
	out := children[:0]
	for _, c := range children {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}

func parentOf(name string) string {
	if name == "/" {
		return ""
	}
	idx := strings.LastIndexByte(name, '/')
	if idx <= 0 {
		return "/"
	}
	return name[:idx]
}
