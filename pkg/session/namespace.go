// Package session implements client-session bookkeeping: peer-credential
// identification over a Unix socket, Porto namespace name resolution,
// access-level permission checks, and the Transport/Frame contract a
// concrete wire codec implements (the codec itself is out of scope).
package session

import (
	"regexp"
	"strings"

	"github.com/bowlofstew/porto/pkg/perr"
)

const (
	maxComponentLen = 200
	maxFullNameLen  = 1024
)

var componentRe = regexp.MustCompile(`^[A-Za-z0-9._:@-]+$`)

// ValidateName checks a container name against spec.md §6's name grammar:
// per-component charset, no empty/double/trailing slashes, and the two
// length caps. "/" alone (the absolute root) is always valid.
func ValidateName(name string) error {
	if name == "/" {
		return nil
	}
	if len(name) > maxFullNameLen {
		return perr.New(perr.InvalidValue, "name %q exceeds max length %d", name, maxFullNameLen)
	}
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, "//") {
		return perr.New(perr.InvalidValue, "malformed container name %q", name)
	}
	for _, comp := range strings.Split(name, "/") {
		if comp == "self" || comp == "." {
			return perr.New(perr.InvalidValue, "%q is a reserved name", comp)
		}
		if len(comp) > maxComponentLen {
			return perr.New(perr.InvalidValue, "component %q exceeds max length %d", comp, maxComponentLen)
		}
		if !componentRe.MatchString(comp) {
			return perr.New(perr.InvalidValue, "component %q has invalid characters", comp)
		}
	}
	return nil
}

// Resolve turns a name the client supplied into an absolute container
// name, relative to callerNamespace (the dotted-prefix Porto namespace the
// calling container lives in, e.g. "app/" so that container "app/db" is
// visible to the caller as "db"), per spec.md §6's "Name resolution"
// paragraph.
//
//   - "/"      -> the absolute root, always.
//   - "self"   -> the caller's own container (callerContainer).
//   - "."      -> the caller's namespace's parent.
//   - "/porto/..." -> accepted only if the remainder is inside callerNamespace.
//   - anything else -> callerNamespace + name.
func Resolve(name, callerNamespace, callerContainer string) (string, error) {
	switch name {
	case "/":
		return "/", nil
	case "self":
		return callerContainer, nil
	case ".":
		return parentNamespace(callerNamespace), nil
	}

	if strings.HasPrefix(name, "/porto/") {
		rest := strings.TrimPrefix(name, "/porto/")
		if !strings.HasPrefix(rest, callerNamespace) {
			return "", perr.New(perr.Permission, "name %q is outside caller namespace %q", name, callerNamespace)
		}
		return rest, nil
	}

	if err := ValidateName(joinNamespace(callerNamespace, name)); err != nil {
		return "", err
	}
	return joinNamespace(callerNamespace, name), nil
}

func joinNamespace(ns, name string) string {
	if ns == "" {
		return name
	}
	return strings.TrimSuffix(ns, "/") + "/" + name
}

func parentNamespace(ns string) string {
	ns = strings.TrimSuffix(ns, "/")
	idx := strings.LastIndexByte(ns, '/')
	if idx < 0 {
		return ""
	}
	return ns[:idx]
}
