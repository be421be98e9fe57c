package fsutil

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/perr"
)

// MountInfoEntry is one parsed line of /proc/<pid>/mountinfo.
type MountInfoEntry struct {
	MountID    int
	ParentID   int
	Major      int
	Minor      int
	Root       string
	MountPoint string
	Opts       string
	FSType     string
	Source     string
}

// MountInfo parses /proc/self/mountinfo, in the format documented by
// proc(5). It is the mechanism ClearDirectory uses to refuse crossing a
// mount point, resolving spec.md §4.1's silence on the exact technique the
// same way original_source/src/util resolves it -- by walking this file.
func MountInfo() ([]MountInfoEntry, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return nil, perr.Wrap(perr.Unknown, err, "open mountinfo")
	}
	defer f.Close()

	var out []MountInfoEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		e, err := parseMountInfoLine(sc.Text())
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Wrap(perr.Unknown, err, "scan mountinfo")
	}
	return out, nil
}

func parseMountInfoLine(line string) (MountInfoEntry, error) {
	// mountID parentID major:minor root mountPoint opts [opt-fields] - fstype source superOpts
	fields := strings.Split(line, " ")
	sep := -1
	for i, f := range fields {
		if f == "-" {
			sep = i
			break
		}
	}
	if sep < 0 || sep+3 >= len(fields) || len(fields) < 6 {
		return MountInfoEntry{}, fmt.Errorf("malformed mountinfo line: %q", line)
	}
	var e MountInfoEntry
	e.MountID, _ = strconv.Atoi(fields[0])
	e.ParentID, _ = strconv.Atoi(fields[1])
	mm := strings.SplitN(fields[2], ":", 2)
	if len(mm) == 2 {
		e.Major, _ = strconv.Atoi(mm[0])
		e.Minor, _ = strconv.Atoi(mm[1])
	}
	e.Root = fields[3]
	e.MountPoint = fields[4]
	e.Opts = fields[5]
	e.FSType = fields[sep+1]
	e.Source = fields[sep+2]
	return e, nil
}

// IsMountPoint reports whether p is itself the mount point of some
// filesystem, per the current process's mount table.
func IsMountPoint(p Path) (bool, error) {
	entries, err := MountInfo()
	if err != nil {
		return false, err
	}
	target := p.String()
	for _, e := range entries {
		if e.MountPoint == target {
			return true, nil
		}
	}
	return false, nil
}

// BindMount bind-mounts source onto target. If recursive, it uses MS_REC so
// nested mounts under source follow.
func BindMount(source, target Path, recursive, readOnly bool) error {
	flags := uintptr(unix.MS_BIND)
	if recursive {
		flags |= unix.MS_REC
	}
	if err := unix.Mount(source.String(), target.String(), "", flags, ""); err != nil {
		return classifyMountErr(err, "bind mount %s -> %s", source, target)
	}
	if readOnly {
		return RemountReadOnly(target)
	}
	return nil
}

// RemountReadOnly remounts an existing mount read-only in place.
func RemountReadOnly(target Path) error {
	flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY)
	if err := unix.Mount("", target.String(), "", flags, ""); err != nil {
		return classifyMountErr(err, "remount ro %s", target)
	}
	return nil
}

// RemountPropagation changes the propagation type of an existing mount
// (slave-rec before container setup, shared-rec afterward, per the mount
// preparation order in spec.md §4.3 steps 1 and 12).
func RemountPropagation(target Path, recursive bool, propagation uintptr) error {
	flags := propagation
	if recursive {
		flags |= unix.MS_REC
	}
	if err := unix.Mount("", target.String(), "", flags, ""); err != nil {
		return classifyMountErr(err, "remount propagation %s", target)
	}
	return nil
}

const (
	// PropagationSlave matches MS_SLAVE, used for step 1 of mount prep.
	PropagationSlave = unix.MS_SLAVE
	// PropagationShared matches MS_SHARED, used for step 12 of mount prep.
	PropagationShared = unix.MS_SHARED
)

// UnmountAll lazily unmounts target and anything mounted beneath it,
// deepest first, using a single MountInfo snapshot taken up front.
func UnmountAll(target Path) error {
	entries, err := MountInfo()
	if err != nil {
		return err
	}
	prefix := target.String()
	var under []string
	for _, e := range entries {
		if e.MountPoint == prefix || strings.HasPrefix(e.MountPoint, prefix+"/") {
			under = append(under, e.MountPoint)
		}
	}
	// Deepest (longest) path first so nested mounts are removed before
	// their parent.
	for i := 0; i < len(under); i++ {
		for j := i + 1; j < len(under); j++ {
			if len(under[j]) > len(under[i]) {
				under[i], under[j] = under[j], under[i]
			}
		}
	}
	var firstErr error
	for _, mp := range under {
		if err := unix.Unmount(mp, unix.MNT_DETACH); err != nil && firstErr == nil {
			firstErr = classifyMountErr(err, "unmount %s", mp)
		}
	}
	return firstErr
}

func classifyMountErr(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if errno, ok := err.(unix.Errno); ok && errno == unix.ENOSPC {
		return perr.Wrap(perr.NoSpace, err, msg).WithErrno(int(errno))
	}
	if errno, ok := err.(unix.Errno); ok {
		return perr.Wrap(perr.Unknown, err, msg).WithErrno(int(errno))
	}
	return perr.Wrap(perr.Unknown, err, msg)
}
