package cgroup

import "strings"

// LevelMode says, for one tree level and one controller, whether that
// level gets its own cgroup directory (Own) or is flattened into its
// nearest ancestor's cgroup for that controller (Flatten). spec.md §4.2:
// "A '/' separator means this level uses this controller, a '%' separator
// means this level's cgroup is flattened into the ancestor -- it lets a
// controller not be enabled at every intermediate node."
type LevelMode byte

const (
	Own LevelMode = iota
	Flatten
)

// ResolvePath builds the controller-relative cgroup path for a container
// whose tree path components are comps (root excluded, e.g. ["a", "b",
// "c"] for container "a/b/c"), given the per-level mode for this
// controller at each of those levels (modes[i] applies to comps[i]; the
// first level is always effectively Own since there is no ancestor to
// flatten into within the container's own subtree).
func ResolvePath(prefix string, comps []string, modes []LevelMode) string {
	var b strings.Builder
	b.WriteString(prefix)
	for i, c := range comps {
		mode := Own
		if i < len(modes) {
			mode = modes[i]
		}
		if i == 0 || mode == Own {
			b.WriteByte('/')
		} else {
			b.WriteByte('%')
		}
		b.WriteString(c)
	}
	return b.String()
}
