// Package cgroup implements the daemon's interface to Linux cgroup v1
// controller hierarchies: creating and removing per-container cgroups
// across multiple independently-mounted controllers, attaching tasks,
// reading and writing knobs, and the freezer/OOM-eventfd operations the
// launcher and event queue depend on.
package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/perr"
	"github.com/bowlofstew/porto/pkg/plog"
)

var log = plog.For("cgroup")

// Subsystem names a cgroup v1 controller this daemon knows how to manage.
// These match the controller directory names under cgroupRoot.
type Subsystem string

const (
	Freezer  Subsystem = "freezer"
	Memory   Subsystem = "memory"
	CPU      Subsystem = "cpu"
	CPUAcct  Subsystem = "cpuacct"
	Blkio    Subsystem = "blkio"
	NetCls   Subsystem = "net_cls"
	Devices  Subsystem = "devices"
)

// All is the full set of controllers the daemon manages per container,
// matching spec.md §4.2's enumerated list.
var All = []Subsystem{Freezer, Memory, CPU, CPUAcct, Blkio, NetCls, Devices}

// cgroupRoot is where the host mounts cgroup v1 controller hierarchies.
// Overridable for tests.
var cgroupRoot = "/sys/fs/cgroup"

// Cgroup identifies one controller's directory for one container.
type Cgroup struct {
	Subsystem Subsystem
	// Path is the controller-relative path, e.g. "porto/a%b/c", already
	// resolved through the "/" vs "%" flattening convention (see naming.go).
	Path string
}

func (c Cgroup) dir() string {
	return filepath.Join(cgroupRoot, string(c.Subsystem), c.Path)
}

// Create makes the cgroup directory if it does not already exist. Creating
// a cgroup directory implicitly creates the controller's default knobs;
// this returns once the kernel has done so.
func (c Cgroup) Create() error {
	if err := os.MkdirAll(c.dir(), 0755); err != nil {
		return classifyErr(err, "create cgroup %s", c.dir())
	}
	return nil
}

// Exists reports whether the cgroup directory is present.
func (c Cgroup) Exists() bool {
	_, err := os.Stat(c.dir())
	return err == nil
}

// Remove deletes the (now-empty) cgroup directory. The kernel refuses
// rmdir while tasks remain attached or child cgroups exist.
func (c Cgroup) Remove() error {
	if err := os.Remove(c.dir()); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return classifyErr(err, "remove cgroup %s", c.dir())
	}
	return nil
}

// Attach moves pid into this cgroup by writing it to the "tasks" file.
func (c Cgroup) Attach(pid int) error {
	return c.Set("tasks", strconv.Itoa(pid))
}

// GetTasks returns the pids currently attached to this cgroup.
func (c Cgroup) GetTasks() ([]int, error) {
	data, err := c.Get("tasks")
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, line := range strings.Fields(data) {
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// IsEmpty reports whether no tasks remain attached to this cgroup.
func (c Cgroup) IsEmpty() (bool, error) {
	pids, err := c.GetTasks()
	if err != nil {
		return false, err
	}
	return len(pids) == 0, nil
}

// Get reads a knob file's contents, trimmed of surrounding whitespace.
func (c Cgroup) Get(knob string) (string, error) {
	data, err := os.ReadFile(filepath.Join(c.dir(), knob))
	if err != nil {
		return "", classifyErr(err, "read %s/%s", c.dir(), knob)
	}
	return strings.TrimSpace(string(data)), nil
}

// Set writes value to a knob file.
func (c Cgroup) Set(knob, value string) error {
	path := filepath.Join(c.dir(), knob)
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return classifyErr(err, "write %s=%s", path, value)
	}
	return nil
}

// KillAll sends sig to every task in this cgroup, retrying while new tasks
// continue to appear (a process can fork between the read of "tasks" and
// the kill), until the cgroup drains or retries are exhausted.
func (c Cgroup) KillAll(sig unix.Signal) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 20)
	return backoff.Retry(func() error {
		pids, err := c.GetTasks()
		if err != nil {
			return backoff.Permanent(err)
		}
		if len(pids) == 0 {
			return nil
		}
		for _, pid := range pids {
			if err := unix.Kill(pid, sig); err != nil && err != unix.ESRCH {
				log.WithError(err).Warnf("kill %d in %s", pid, c.dir())
			}
		}
		return fmt.Errorf("cgroup %s still has %d tasks", c.dir(), len(pids))
	}, b)
}

// TaskCgroup reads /proc/<pid>/cgroup and returns the cgroup path this
// task belongs to for the given subsystem, as seen from the root cgroup
// namespace. Used by client-session identification (C7) and restore
// reconciliation (§4.7).
func TaskCgroup(pid int, subsystem Subsystem) (string, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return "", classifyErr(err, "open /proc/%d/cgroup", pid)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		controllers := strings.Split(parts[1], ",")
		for _, ctrl := range controllers {
			if ctrl == string(subsystem) {
				return parts[2], nil
			}
		}
	}
	return "", perr.New(perr.Unknown, "pid %d is not in any %s cgroup", pid, subsystem)
}

func classifyErr(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if os.IsNotExist(err) {
		return perr.Wrap(perr.ContainerDoesNotExist, err, msg)
	}
	if errno, ok := underlyingErrno(err); ok {
		if errno == unix.ENOSPC {
			return perr.Wrap(perr.NoSpace, err, msg).WithErrno(int(errno))
		}
		return perr.Wrap(perr.Unknown, err, msg).WithErrno(int(errno))
	}
	return perr.Wrap(perr.Unknown, err, msg)
}

func underlyingErrno(err error) (unix.Errno, bool) {
	type pathErrUnwrap interface{ Unwrap() error }
	for err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return errno, true
		}
		u, ok := err.(pathErrUnwrap)
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return 0, false
}

// pollDrain blocks until cond returns true or timeout elapses, used by
// freezer thaw/attach verification.
func pollDrain(timeout time.Duration, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = timeout
	return backoff.Retry(func() error {
		ok, err := cond()
		if err != nil {
			return backoff.Permanent(err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return backoff.Permanent(perr.New(perr.Busy, "condition not met within %s", timeout))
		}
		return fmt.Errorf("not yet")
	}, b)
}
