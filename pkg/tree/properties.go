package tree

import (
	"sort"
	"sync"

	"github.com/mohae/deepcopy"

	"github.com/bowlofstew/porto/pkg/perr"
)

// PropertySet holds one container's property values plus the per-property
// set/dirty bits from spec.md's Entities section: "set" means the user
// assigned a non-default value, "dirty" means the kernel-side value needs
// re-applying.
type PropertySet struct {
	mu     sync.Mutex
	values map[string]string
	set    map[string]bool
	dirty  map[string]bool
}

func NewPropertySet() *PropertySet {
	return &PropertySet{
		values: make(map[string]string),
		set:    make(map[string]bool),
		dirty:  make(map[string]bool),
	}
}

// Get returns the current value and whether the user ever set it.
func (p *PropertySet) Get(name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.set[name]
	return p.values[name], v
}

// Assign records a new user-supplied value and marks it set and dirty.
func (p *PropertySet) Assign(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = value
	p.set[name] = true
	p.dirty[name] = true
}

// snapshot deep-copies the current value map for rollback, using the same
// deep-copy idiom the tree uses elsewhere for property-value rollback
// during a failed apply.
func (p *PropertySet) snapshot() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return deepcopy.Copy(p.values).(map[string]string)
}

func (p *PropertySet) restore(snap map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = snap
}

func (p *PropertySet) isDirty(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty[name]
}

func (p *PropertySet) clearDirty(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.dirty, name)
}

// dirtyNames returns the currently-dirty property names in sorted order, so
// callers building an application order from them get the same order on
// every call for the same dirty set rather than Go's randomized map
// iteration order.
func (p *PropertySet) dirtyNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.dirty))
	for name := range p.dirty {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *PropertySet) value(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[name]
}

// restoreOne puts name's value/set/dirty bits back to a prior state,
// undoing a single Assign whose ApplyDirty failed. wasSet false means name
// had never been assigned at all, in which case it is removed from values
// and set rather than restored to a stale value.
func (p *PropertySet) restoreOne(name, value string, wasSet, wasDirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if wasSet {
		p.values[name] = value
		p.set[name] = true
	} else {
		delete(p.values, name)
		delete(p.set, name)
	}
	if wasDirty {
		p.dirty[name] = true
	} else {
		delete(p.dirty, name)
	}
}

// Descriptor is one property's behavior, per spec.md's Property descriptor
// entity. Setter applies a value to the kernel side (cgroup knobs, etc);
// it is only ever called with values already passed through Validate.
type Descriptor struct {
	Name      string
	Setter    func(c *Container, value string) error
	Validate  func(c *Container, value string) error
	Supported bool
	Hidden    bool
}

// Registry is the property catalog, plus the fixed application groups
// spec.md §4.4 requires for co-dependent knobs.
type Registry struct {
	descriptors map[string]*Descriptor
	groups      [][]string
}

func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		groups: [][]string{
			{"cpu_policy", "cpu_limit", "cpu_guarantee"},
			{"net_prio", "net_limit", "net_guarantee"},
		},
	}
}

func (r *Registry) Register(d *Descriptor) {
	r.descriptors[d.Name] = d
}

func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// groupFor returns the fixed application group containing name, or a
// single-element group if name belongs to none.
func (r *Registry) groupFor(name string) []string {
	for _, g := range r.groups {
		for _, n := range g {
			if n == name {
				return g
			}
		}
	}
	return []string{name}
}

// ApplyDirty applies every dirty property on c's PropertySet to the kernel
// side, grouped per Registry.groups so co-dependent knobs are written
// together, rolling back the whole group's values on the first setter
// failure within it. It returns the first error encountered; properties in
// groups that already succeeded remain applied.
func ApplyDirty(c *Container, reg *Registry) error {
	ps := c.Properties
	seen := make(map[string]bool)

	var pending [][]string
	for _, name := range ps.dirtyNames() {
		g := reg.groupFor(name)
		key := g[0]
		if seen[key] {
			continue
		}
		seen[key] = true
		pending = append(pending, g)
	}

	for _, group := range pending {
		anyDirty := false
		for _, name := range group {
			if ps.isDirty(name) {
				anyDirty = true
				break
			}
		}
		if !anyDirty {
			continue
		}

		snap := ps.snapshot()
		if err := applyGroup(c, reg, group); err != nil {
			ps.restore(snap)
			return err
		}
		for _, name := range group {
			ps.clearDirty(name)
		}
	}
	return nil
}

// SetProperty implements spec.md §7/§8's set_property RPC: validate, assign,
// apply, and on any failure restore the property to its pre-assignment
// value rather than whatever ApplyDirty's own group-level rollback leaves
// behind. ApplyDirty's snapshot is taken after Assign has already committed
// the new value, so on its own it can only roll a group back to "value just
// assigned", never to the value the client actually had before this RPC;
// SetProperty takes its own snapshot first, before Assign runs, so a failed
// apply truly leaves get_property(p) returning what it returned before the
// call, per the invariant that a failed mutating RPC must not be observable.
func SetProperty(c *Container, reg *Registry, name, value string) error {
	if d, ok := reg.Lookup(name); ok && d.Validate != nil {
		if err := d.Validate(c, value); err != nil {
			return err
		}
	}

	ps := c.Properties
	prevValue, prevSet := ps.Get(name)
	prevDirty := ps.isDirty(name)

	ps.Assign(name, value)

	if err := ApplyDirty(c, reg); err != nil {
		ps.restoreOne(name, prevValue, prevSet, prevDirty)
		return err
	}
	return nil
}

func applyGroup(c *Container, reg *Registry, group []string) error {
	for _, name := range group {
		d, ok := reg.Lookup(name)
		if !ok || d.Setter == nil {
			continue
		}
		value := c.Properties.value(name)
		if err := d.Setter(c, value); err != nil {
			return perr.Wrap(perr.Unknown, err, "apply property %s on %s", name, c.Name)
		}
	}
	return nil
}
