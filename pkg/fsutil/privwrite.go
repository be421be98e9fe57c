package fsutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/perr"
)

// PrivateWrite writes content to an unlinked temporary file and bind-mounts
// its /proc/self/fd/N over target, so that target's contents can be replaced
// atomically and privately even when target is shared (bind-mounted from
// the host) or target's directory is not writable by the caller. This is
// the sequence spec.md §4.1 and §4.3 step 10 use for /etc/hostname and
// /etc/resolv.conf.
func PrivateWrite(target Path, content []byte, mode os.FileMode) error {
	dir := target.Dir()
	f, err := os.OpenFile(dir.String(), unix.O_TMPFILE|os.O_RDWR, mode)
	if err != nil {
		// Fall back for filesystems without O_TMPFILE support: a named
		// temp file, unlinked immediately after opening.
		f, err = os.CreateTemp(dir.String(), ".porto-priv-*")
		if err != nil {
			return perr.Wrap(perr.Unknown, err, "create temp for %s", target)
		}
		os.Remove(f.Name())
	}
	defer f.Close()

	if _, err := f.Write(content); err != nil {
		return perr.Wrap(perr.Unknown, err, "write temp for %s", target)
	}

	srcPath := NewPath(fmt.Sprintf("/proc/self/fd/%d", f.Fd()))
	if err := touchIfMissing(target); err != nil {
		return err
	}
	if err := unix.Mount(srcPath.String(), target.String(), "", unix.MS_BIND, ""); err != nil {
		return classifyMountErr(err, "bind %s over %s", srcPath, target)
	}
	return nil
}

func touchIfMissing(p Path) error {
	if _, err := os.Stat(p.String()); err == nil {
		return nil
	}
	f, err := os.OpenFile(p.String(), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return perr.Wrap(perr.Unknown, err, "create %s", p)
	}
	return f.Close()
}
