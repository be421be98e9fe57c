package session

import (
	"github.com/bowlofstew/porto/pkg/perr"
	"github.com/bowlofstew/porto/pkg/tree"
)

// Permission names the class of operation an RPC requires, used together
// with a client's AccessLevel to decide whether the request is allowed.
type Permission int

const (
	PermRead Permission = iota
	PermWrite
	PermCreate
	PermDestroy
	PermSuperUser // operations outside the caller's own subtree
)

// Check reports whether level permits performing perm, optionally against
// a container other than the caller's own (crossOwnSubtree is true when
// the target is not the caller's own container or a descendant of it).
func Check(level tree.AccessLevel, perm Permission, crossOwnSubtree bool) error {
	switch level {
	case tree.AccessNone:
		return perr.New(perr.Permission, "access level None permits no operations")
	case tree.AccessReadOnly:
		if perm != PermRead {
			return perr.New(perr.Permission, "access level ReadOnly permits only read operations")
		}
	case tree.AccessChildOnly:
		if crossOwnSubtree {
			return perr.New(perr.Permission, "access level ChildOnly cannot act outside caller's own subtree")
		}
	case tree.AccessNormal:
		if perm == PermSuperUser {
			return perr.New(perr.Permission, "access level Normal cannot perform super-user operations")
		}
		if crossOwnSubtree && perm != PermRead {
			return perr.New(perr.Permission, "access level Normal cannot mutate outside caller's own subtree")
		}
	case tree.AccessSuperUser, tree.AccessInternal:
		// unrestricted
	default:
		return perr.New(perr.Permission, "unknown access level")
	}
	return nil
}
