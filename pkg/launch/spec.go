// Package launch implements the multi-stage namespace/task launcher: it
// forks a helper process that clones a workload into new namespaces,
// synchronizes with it over a typed protocol, applies mounts, devices,
// hostname, cgroup membership, capabilities and rlimits inside the new
// namespaces, and hands control to the workload's execve.
//
// Go cannot safely raw-fork(2)/vfork(2) a running multi-threaded runtime
// the way the original C triple/quadro-fork trick does (the runtime's
// scheduler, GC and signal handling are not fork-safe past the point the
// runtime has started); os/exec's own fork+exec is the only fork Go
// supports safely. The triple/quadro fork is therefore realized here as a
// chain of self-re-exec stages (daemon -> helper -> child [-> waiter]),
// each an ordinary exec.Cmd with SysProcAttr.Cloneflags set for the
// namespaces that stage introduces, matching how the retrieval pack's own
// self-exec-based launchers (simple_runc, runc's nsenter-free callers) solve
// the same constraint. The daemon additionally calls
// prctl(PR_SET_CHILD_SUBREAPER) at startup so orphaned descendants are
// reparented to it directly, standing in for the literal vfork-then-_exit
// reparenting trick. See DESIGN.md.
package launch

import (
	"time"

	"github.com/bowlofstew/porto/pkg/cgroup"
)

// MountSpec describes one user-defined bind mount applied at mount
// preparation step 7.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// DeviceSpec describes one permitted device node created at mount
// preparation step 5.
type DeviceSpec struct {
	Path     string
	Type     rune // 'c' char, 'b' block
	Major    int64
	Minor    int64
	Mode     uint32
	ReadOnly bool
}

// Rlimit is one POSIX resource limit to apply before execve.
type Rlimit struct {
	Resource int
	Cur, Max uint64
}

// CapSpec is the capability discipline the daemon computed for this
// launch, per spec.md §4.3's "Capability discipline" paragraph.
type CapSpec struct {
	Bounding  []string
	Effective []string
	Ambient   []string
}

// Spec is everything the launcher needs to start one workload. It is built
// by pkg/tree from a container's resolved properties before calling Start.
type Spec struct {
	// Namespaces to unshare for the workload: any subset of
	// CLONE_NEWNS|CLONE_NEWPID|CLONE_NEWUTS|CLONE_NEWIPC|CLONE_NEWNET.
	CloneFlags uintptr
	// Isolate is spec.md's "isolate" flag: whether this container is its
	// own isolation domain. Launch does not read it: mount visibility
	// follows IsolateProc/IsolateSys, and the capability check takes its
	// own CapCheckInput.Isolate.
	Isolate bool
	// InDaemonPIDNS reports whether the parent container's pid namespace
	// is the daemon's own. Launch does not read it; the helper chain is
	// the same either way.
	InDaemonPIDNS bool
	// NeedSupervisor requests the quadro-fork: an inner pid-1 supervisor
	// inside the container's own pid namespace, so the workload sees
	// itself as pid 2.
	NeedSupervisor bool

	// Name is the container's full path name (e.g. "a/b/c"), exposed to the
	// workload as PORTO_NAME. Distinct from Hostname, which is the kernel
	// UTS hostname and is exposed as PORTO_HOST.
	Name string

	RootFS         string
	RootReadOnly   bool
	IsolateProc    bool
	IsolateSys     bool
	Mounts         []MountSpec
	Devices        []DeviceSpec
	Hostname       string
	ResolvConf     string // content to write; empty with BindHostDNS means bind from host
	BindHostDNS    bool
	WorkDir        string
	// OwnerUID is the owning credentials' uid, used to populate HOME/USER
	// in the workload's environment via an /etc/passwd lookup.
	OwnerUID uint32

	Env     []string
	Command string
	Args    []string

	Caps    CapSpec
	Rlimits []Rlimit

	// Cgroups the workload's pid must be attached to before execve, one
	// per enabled controller.
	Cgroups []cgroup.Cgroup

	StartTimeoutMs int64
}

// Result is returned to the caller (pkg/tree) once the workload has begun
// executing (or the launcher has given up and rolled back).
type Result struct {
	// WPid is the host-namespace pid the daemon waitpid()s, per spec.md's
	// WPid/VPid glossary entry.
	WPid int
	// VPid is the workload's pid as visible inside the container's pid
	// namespace.
	VPid int
}

func defaultStartTimeout() time.Duration { return 30 * time.Second }
