package store

import (
	"github.com/bowlofstew/porto/pkg/cgroup"
)

// ReconcileInput is everything Reconcile needs about one restored
// container's live kernel state, gathered by the daemon before calling in
// (pkg/store has no process/cgroup access of its own, so tests can supply
// fakes without any kernel dependency).
type ReconcileInput struct {
	State          string
	Isolate        bool
	WaitTaskPid    int
	FreezerExists  bool
	TaskExists     bool
	TaskIsZombie   bool
	TaskPPid       int
	DaemonPid      int
	TaskFreezerCg  string
	WantFreezerCg  string
}

// ReconcileAction is what the daemon must do to a restored container to
// bring its in-memory/on-disk record back in sync with the live kernel
// state, per spec.md §4.7.
type ReconcileAction struct {
	ForceStopped bool
	Reap         bool
	KillAndReap  bool
	DropTaskPid  bool
}

// Reconcile implements spec.md §4.7's restore-time state reconciliation,
// grounded directly on the original daemon's SyncState: check the freezer
// cgroup exists, the wait task exists with the right parent, isn't a
// zombie, and is in the container's own freezer cgroup.
func Reconcile(in ReconcileInput) ReconcileAction {
	if !in.FreezerExists {
		return ReconcileAction{ForceStopped: true}
	}
	if in.State == "meta" && in.WaitTaskPid == 0 && !in.Isolate {
		return ReconcileAction{}
	}
	if !in.TaskExists {
		return ReconcileAction{Reap: true}
	}
	if in.TaskPPid != in.DaemonPid {
		return ReconcileAction{Reap: true}
	}
	if in.TaskIsZombie {
		return ReconcileAction{DropTaskPid: true}
	}
	if in.TaskFreezerCg != in.WantFreezerCg {
		return ReconcileAction{KillAndReap: true}
	}
	return ReconcileAction{}
}

// StragglerTasks compares every pid currently in the container's freezer
// cgroup against its expected cgroup for each other controller, returning
// the (pid, subsystem, path) triples that need re-attaching. This mirrors
// the original's per-hierarchy straggler sweep at the end of SyncState.
func StragglerTasks(freezerPids []int, current map[int]map[cgroup.Subsystem]string, want map[cgroup.Subsystem]cgroup.Cgroup) []Straggler {
	var out []Straggler
	for _, pid := range freezerPids {
		for subsys, wantCg := range want {
			gotPath, ok := current[pid][subsys]
			if ok && gotPath == wantCg.Path {
				continue
			}
			out = append(out, Straggler{Pid: pid, Subsystem: subsys, Cgroup: wantCg})
		}
	}
	return out
}

// Straggler is one pid found outside its expected cgroup during restore
// reconciliation.
type Straggler struct {
	Pid       int
	Subsystem cgroup.Subsystem
	Cgroup    cgroup.Cgroup
}
