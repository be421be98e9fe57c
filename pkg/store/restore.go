package store

import (
	"sort"

	"github.com/bowlofstew/porto/pkg/perr"
)

// Restored pairs a loaded Record with its container id.
type Restored struct {
	ID     int
	Record Record
}

// RestoreAll enumerates every on-disk record and orders them oldest-parent-
// first: by ascending name length (a child's path-like name is always
// longer than its parent's, since it is the parent's name plus a
// component) with ties broken by name, then by ascending id, per spec.md §4.6 ("restore
// oldest first... parents before children by lexicographic id order
// after topological reordering by name length").
func (s *Store) RestoreAll() ([]Restored, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}

	var out []Restored
	for _, id := range ids {
		rec, err := s.Load(id)
		if err != nil {
			if perr.Is(err, perr.ContainerDoesNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, Restored{ID: id, Record: rec})
	}

	sort.Slice(out, func(i, j int) bool {
		ni, nj := out[i].Record[KeyName], out[j].Record[KeyName]
		if len(ni) != len(nj) {
			return len(ni) < len(nj)
		}
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
