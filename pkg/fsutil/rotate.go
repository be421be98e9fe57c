package fsutil

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/plog"
)

var rotateLog = plog.For("fsutil")

// RotateLog keeps the last half of path's content, once it exceeds
// maxBytes, by punching a hole at the file's head with
// FALLOC_FL_COLLAPSE_RANGE. If the kernel or filesystem refuses the
// fallocate call, it falls back to truncating the file to zero -- rotation
// never fails loud, a dropped log is reported, not propagated as an error
// that would abort the caller's RotateLogs event.
func RotateLog(path string, maxBytes int64) {
	fi, err := os.Stat(path)
	if err != nil {
		return
	}
	if fi.Size() <= maxBytes {
		return
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		rotateLog.WithError(err).Warnf("rotate: open %s", path)
		return
	}
	defer f.Close()

	collapse := fi.Size() / 2
	err = unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_COLLAPSE_RANGE, 0, collapse)
	if err != nil {
		rotateLog.WithError(err).Warnf("rotate: collapse range refused for %s, truncating", path)
		if err := f.Truncate(0); err != nil {
			rotateLog.WithError(err).Warnf("rotate: truncate %s", path)
		}
	}
}
