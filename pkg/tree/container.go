// Package tree implements the in-memory container tree: the name->container
// mapping, per-container lock state with ancestor-aware read/write locking,
// the container state machine, and dirty-property tracking with
// group-ordered apply/rollback.
package tree

import (
	"time"

	"github.com/bowlofstew/porto/pkg/cgroup"
)

// State is one container lifecycle state.
type State int

const (
	Stopped State = iota
	Running
	Paused
	Meta
	Dead
	Destroyed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Meta:
		return "meta"
	case Dead:
		return "dead"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// AccessLevel gates which RPCs a client session may issue against a
// container, per spec.md's client-session entity.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessReadOnly
	AccessChildOnly
	AccessNormal
	AccessSuperUser
	AccessInternal
)

// Credentials are the (uid, gid, supplementary groups) recorded at create
// time, used by property validators and access checks.
type Credentials struct {
	UID     uint32
	GID     uint32
	Groups  []uint32
}

// Container is one node of the tree. All mutable fields are protected by
// the owning Tree's mutex; lockState is additionally subject to the
// ancestor-counting read/write lock protocol in lock.go.
type Container struct {
	ID   int
	Name string // full path-like name, e.g. "a/b/c"
	Root string // "/" for the root container

	Parent   *Container
	Children []*Container
	Level    int

	State       State
	AccessLevel AccessLevel
	OwnerCred   Credentials

	Properties *PropertySet

	TaskPid     int
	TaskVPid    int
	WaitTaskPid int

	OOMEventFD int // fd, 0 if none registered

	RootVolume string // opaque volume handle, "" if none

	Cgroups map[cgroup.Subsystem]cgroup.Cgroup

	// lockState: 0 unlocked, N>0 held by N readers, -1 held by one writer.
	lockState int

	// RunningChildren is the denormalized count of descendants (anywhere in
	// the subtree) whose state is Running, used to drive the meta-container Stopped/Meta
	// transition and the "zero running children" notify rule.
	RunningChildren int

	ExitStatus int
	OOMKilled  bool

	ToRespawn      bool
	RespawnCount   int
	MaxRespawns    int // -1 == unlimited
	RespawnDelayMs int64

	AgingTimeMs int64
	DeadSince   time.Time

	waiters map[uint64]*Waiter

	CreatedAt time.Time
}

func newContainer(id int, name string, parent *Container) *Container {
	level := 0
	if parent != nil {
		level = parent.Level + 1
	}
	return &Container{
		ID:          id,
		Name:        name,
		Parent:      parent,
		Level:       level,
		State:       Stopped,
		AccessLevel: AccessNormal,
		Properties:  NewPropertySet(),
		Cgroups:     make(map[cgroup.Subsystem]cgroup.Cgroup),
		MaxRespawns: -1,
		waiters:     make(map[uint64]*Waiter),
		CreatedAt:   time.Now(),
	}
}

// IsRoot reports whether c is the tree root.
func (c *Container) IsRoot() bool { return c.Parent == nil }

// Ancestors returns c's ancestor chain, nearest first, not including c.
func (c *Container) Ancestors() []*Container {
	var out []*Container
	for p := c.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}
	return out
}

// Descendants returns every container in c's subtree, not including c,
// in pre-order.
func (c *Container) Descendants() []*Container {
	var out []*Container
	var walk func(*Container)
	walk = func(n *Container) {
		for _, ch := range n.Children {
			out = append(out, ch)
			walk(ch)
		}
	}
	walk(c)
	return out
}
