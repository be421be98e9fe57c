package cgroup

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/perr"
)

// MemoryCgroup wraps a Cgroup known to be on the memory controller, adding the
// knob helpers spec.md §4.2 calls out by name.
type MemoryCgroup struct{ Cgroup }

// AsMemory asserts that c is a memory-controller cgroup.
func AsMemory(c Cgroup) MemoryCgroup { return MemoryCgroup{c} }

func (m MemoryCgroup) SetHardLimit(bytes uint64) error {
	return m.Set("memory.limit_in_bytes", fmt.Sprintf("%d", bytes))
}

func (m MemoryCgroup) SetSoftLimit(bytes uint64) error {
	return m.Set("memory.soft_limit_in_bytes", fmt.Sprintf("%d", bytes))
}

func (m MemoryCgroup) SetAnonLimit(bytes uint64) error {
	// Not every kernel build exposes a dedicated anon-memory knob; fall
	// back to memory.memsw equivalents is intentionally not attempted
	// here -- the daemon surfaces NotSupported rather than silently
	// approximating a different limit.
	if err := m.Set("memory.anon.limit", fmt.Sprintf("%d", bytes)); err != nil {
		return perr.Wrap(perr.NotSupported, err, "anon limit not supported by this kernel")
	}
	return nil
}

func (m MemoryCgroup) SetDirtyLimit(ratio uint64) error {
	return m.Set("memory.dirty_ratio", fmt.Sprintf("%d", ratio))
}

func (m MemoryCgroup) SetIOPSLimit(iops uint64) error {
	return perr.New(perr.NotSupported, "iops limit is enforced by the blkio controller, not memory")
}

func (m MemoryCgroup) SetIOBytesLimit(bytesPerSec uint64) error {
	return perr.New(perr.NotSupported, "io-bytes limit is enforced by the blkio controller, not memory")
}

func (m MemoryCgroup) SetRechargeOnPageFault(enable bool) error {
	v := "0"
	if enable {
		v = "1"
	}
	return m.Set("memory.move_charge_at_immigrate", v)
}

func (m MemoryCgroup) SetUseHierarchy(enable bool) error {
	v := "0"
	if enable {
		v = "1"
	}
	return m.Set("memory.use_hierarchy", v)
}

func (m MemoryCgroup) Usage() (uint64, error) {
	s, err := m.Get("memory.usage_in_bytes")
	if err != nil {
		return 0, err
	}
	var v uint64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, perr.Wrap(perr.Unknown, err, "parse memory.usage_in_bytes")
	}
	return v, nil
}

// OOMEventFD installs an OOM notifier on this memory cgroup and returns an
// eventfd that becomes readable (one 8-byte counter increment) each time
// the kernel OOM-kills a task in the cgroup. Matches spec.md §3's
// Container.oom_eventfd and §4.2's "install OOM notifier returning an
// eventfd".
func (m MemoryCgroup) OOMEventFD() (*os.File, error) {
	oomControlPath := m.dir() + "/memory.oom_control"
	oomFd, err := unix.Open(oomControlPath, unix.O_RDONLY, 0)
	if err != nil {
		return nil, perr.Wrap(perr.Unknown, err, "open memory.oom_control")
	}
	defer unix.Close(oomFd)

	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return nil, perr.Wrap(perr.Unknown, err, "eventfd")
	}

	data := fmt.Sprintf("%d %d", efd, oomFd)
	if err := m.Set("cgroup.event_control", data); err != nil {
		unix.Close(efd)
		return nil, err
	}
	return os.NewFile(uintptr(efd), "oom-eventfd"), nil
}
