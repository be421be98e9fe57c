// Package fsutil implements the filesystem primitives the daemon needs to
// safely prepare a container's view of the filesystem: path normalization,
// mount-point-aware directory clearing, bind mounts, the private-write
// sequence used for /etc/hostname and /etc/resolv.conf, and size-bounded log
// rotation.
package fsutil

import "strings"

// Path is a normalized, slash-separated filesystem path. Unlike a bare
// string it guarantees no "." or repeated "/" remain and ".." survives only
// as leading components of a relative path (an empty relative result is
// "."), so prefix comparisons (Inner) are safe without touching the
// filesystem.
type Path struct {
	clean string
}

// NewPath normalizes p purely lexically -- it does not consult the
// filesystem, so it cannot resolve symlinks, only "." and "..".
func NewPath(p string) Path {
	return Path{clean: normalize(p)}
}

func normalize(p string) string {
	if p == "" {
		return "/"
	}
	abs := strings.HasPrefix(p, "/")
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else if !abs {
				out = append(out, "..")
			}
		default:
			out = append(out, part)
		}
	}
	joined := strings.Join(out, "/")
	if abs {
		return "/" + joined
	}
	if joined == "" {
		return "."
	}
	return joined
}

// String returns the normalized path.
func (p Path) String() string { return p.clean }

// IsAbs reports whether the path is absolute.
func (p Path) IsAbs() bool { return strings.HasPrefix(p.clean, "/") }

// Join returns the normalized concatenation of p and the given elements.
func (p Path) Join(elems ...string) Path {
	all := append([]string{p.clean}, elems...)
	return NewPath(strings.Join(all, "/"))
}

// Inner returns the suffix of p relative to this path, and true, if p
// starts with this path at a '/' boundary (or equals it, yielding ""). It
// returns ("", false) otherwise -- a plain strings.HasPrefix would wrongly
// match "/a/bc" against prefix "/a/b".
func (prefix Path) Inner(p Path) (string, bool) {
	pre := prefix.clean
	full := p.clean
	if pre == "/" {
		return strings.TrimPrefix(full, "/"), true
	}
	if full == pre {
		return "", true
	}
	if strings.HasPrefix(full, pre+"/") {
		return strings.TrimPrefix(full, pre+"/"), true
	}
	return "", false
}

// Base returns the final path component.
func (p Path) Base() string {
	idx := strings.LastIndexByte(p.clean, '/')
	if idx < 0 {
		return p.clean
	}
	return p.clean[idx+1:]
}

// Dir returns the path with the final component removed.
func (p Path) Dir() Path {
	idx := strings.LastIndexByte(p.clean, '/')
	if idx <= 0 {
		if p.IsAbs() {
			return NewPath("/")
		}
		return NewPath(".")
	}
	return NewPath(p.clean[:idx])
}
