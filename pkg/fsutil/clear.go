package fsutil

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/perr"
)

// Linux extended attribute flags used for FS_IOC_GETFLAGS/FS_IOC_SETFLAGS,
// not exported by golang.org/x/sys/unix under stable names.
const (
	fsImmutableFl = 0x00000010
	fsAppendFl    = 0x00000020
	fsIoctlGetFl  = 0x80086601
	fsIoctlSetFl  = 0x40086602
)

// ClearDirectory recursively removes the contents of dir (but not dir
// itself), refusing to descend into anything that is itself a mount point,
// and forcibly clearing the immutable/append-only attributes of any file
// that carries them so it can be unlinked. It is used to reset a
// container's private directories (e.g. a stopped container's working
// directory) between runs.
func ClearDirectory(dir Path) error {
	mounted, err := IsMountPoint(dir)
	if err != nil {
		return err
	}
	if mounted {
		return perr.New(perr.Unknown, "refusing to clear mount point %s", dir)
	}
	entries, err := os.ReadDir(dir.String())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return perr.Wrap(perr.Unknown, err, "readdir %s", dir)
	}
	for _, entry := range entries {
		child := dir.Join(entry.Name())
		if entry.IsDir() {
			isMount, err := IsMountPoint(child)
			if err != nil {
				return err
			}
			if isMount {
				return perr.New(perr.Unknown, "refusing to clear mount point %s", child)
			}
			if err := ClearDirectory(child); err != nil {
				return err
			}
			if err := clearImmutable(child); err != nil {
				return err
			}
			if err := os.Remove(child.String()); err != nil {
				return perr.Wrap(perr.Unknown, err, "rmdir %s", child)
			}
			continue
		}
		if err := clearImmutable(child); err != nil {
			return err
		}
		if err := os.Remove(child.String()); err != nil {
			return perr.Wrap(perr.Unknown, err, "unlink %s", child)
		}
	}
	return nil
}

// clearImmutable drops FS_IMMUTABLE_FL and FS_APPEND_FL from p, if set, so a
// subsequent unlink will succeed. Not every filesystem supports the ioctl
// (e.g. tmpfs, overlayfs without the feature); ENOTTY/EOPNOTSUPP are not
// errors here.
func clearImmutable(p Path) error {
	fd, err := unix.Open(p.String(), unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil
		}
		// Not every file type can be opened O_RDONLY this way (e.g.
		// sockets); skip and let the unlink itself fail loudly if it must.
		return nil
	}
	defer unix.Close(fd)

	var flags int32
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), fsIoctlGetFl, uintptr(unsafe.Pointer(&flags))); errno != 0 {
		return nil
	}
	if flags&(fsImmutableFl|fsAppendFl) == 0 {
		return nil
	}
	flags &^= fsImmutableFl | fsAppendFl
	unix.Syscall(unix.SYS_IOCTL, uintptr(fd), fsIoctlSetFl, uintptr(unsafe.Pointer(&flags)))
	return nil
}
