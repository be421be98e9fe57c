package cgroup

import (
	"strings"
	"time"

	"github.com/bowlofstew/porto/pkg/perr"
)

// FreezerCgroup wraps a Cgroup known to be on the freezer controller.
type FreezerCgroup struct{ Cgroup }

// AsFreezer asserts that c is a freezer-controller cgroup.
func AsFreezer(c Cgroup) FreezerCgroup { return FreezerCgroup{c} }

const (
	freezerStateThawed   = "THAWED"
	freezerStateFrozen   = "FROZEN"
	freezerStateFreezing = "FREEZING"
)

// Freeze requests the cgroup be frozen and blocks until the kernel reports
// FROZEN (not FREEZING, which means some task is not yet stoppable, e.g.
// stuck in an uninterruptible syscall) or timeout elapses.
func (f FreezerCgroup) Freeze(timeout time.Duration) error {
	if err := f.Set("freezer.state", freezerStateFrozen); err != nil {
		return err
	}
	return pollDrain(timeout, func() (bool, error) {
		state, err := f.Get("freezer.state")
		if err != nil {
			return false, err
		}
		return state == freezerStateFrozen, nil
	})
}

// Thaw requests the cgroup be thawed and blocks until it is.
func (f FreezerCgroup) Thaw(timeout time.Duration) error {
	if err := f.Set("freezer.state", freezerStateThawed); err != nil {
		return err
	}
	return pollDrain(timeout, func() (bool, error) {
		state, err := f.Get("freezer.state")
		if err != nil {
			return false, err
		}
		return state == freezerStateThawed, nil
	})
}

// IsFrozen reports whether the cgroup's current state is FROZEN.
func (f FreezerCgroup) IsFrozen() (bool, error) {
	state, err := f.Get("freezer.state")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(state) == freezerStateFrozen, nil
}

// IsSelfFreezing reports whether this cgroup itself was asked to freeze
// (as opposed to inheriting FROZEN state because an ancestor froze).
// cgroup v1 exposes this via freezer.self_freezing.
func (f FreezerCgroup) IsSelfFreezing() (bool, error) {
	v, err := f.Get("freezer.self_freezing")
	if err != nil {
		return false, perr.Wrap(perr.NotSupported, err, "freezer.self_freezing not available")
	}
	return strings.TrimSpace(v) == "1", nil
}

// IsParentFreezing reports whether an ancestor cgroup is freezing this one.
func (f FreezerCgroup) IsParentFreezing() (bool, error) {
	v, err := f.Get("freezer.parent_freezing")
	if err != nil {
		return false, perr.Wrap(perr.NotSupported, err, "freezer.parent_freezing not available")
	}
	return strings.TrimSpace(v) == "1", nil
}
