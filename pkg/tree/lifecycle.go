package tree

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/cgroup"
	"github.com/bowlofstew/porto/pkg/launch"
	"github.com/bowlofstew/porto/pkg/perr"
)

// Launcher is the subset of pkg/launch's API the tree needs to start a
// workload. It is an interface, not a direct pkg/launch.Launch call, so
// tests can exercise the state machine and rollback logic without actually
// forking namespaces.
type Launcher interface {
	Launch(ctx context.Context, spec *launch.Spec) (*launch.Result, error)
}

// SetLauncher wires the concrete launcher implementation; called once by
// the daemon during startup.
func (t *Tree) SetLauncher(l Launcher) { t.launcher = l }

// Start runs spec.md's Start lifecycle: resources are assumed already
// acquired by the caller (working directory, cgroups created, OOM eventfd
// registered) before Start is called; Start itself runs the launcher and
// either lands the container in Running (spec.Command != "") or Meta (no
// workload), or returns the launcher's error unchanged so the caller can
// roll the acquired resources back. Callers must hold c's write lock.
//
// If c's parent is Stopped, Start first recursively starts the parent with
// no workload of its own (landing it in Meta), mirroring the reference
// TContainer::Start()'s ancestor auto-start: starting a leaf container
// implicitly starts every Stopped ancestor above it, so a client never has
// to Start a meta container explicitly before starting a child underneath
// it. This recursive call does not separately acquire the parent's write
// lock: the caller's write lock on c already incremented every ancestor's
// lockState (see lock.go's applyLock), so no other WriteLock/TryWriteLock
// on the parent can succeed until c's own lock is released, which is the
// same exclusivity guarantee a direct write lock on the parent would give.
func (t *Tree) Start(ctx context.Context, c *Container, spec *launch.Spec) error {
	if c.State != Stopped {
		return perr.New(perr.InvalidState, "container %s must be Stopped to start, is %s", c.Name, c.State)
	}

	if c.Parent != nil && c.Parent.State == Stopped {
		if err := t.Start(ctx, c.Parent, nil); err != nil {
			return err
		}
	}

	hasWorkload := spec != nil && spec.Command != ""
	if hasWorkload {
		if t.launcher == nil {
			return perr.New(perr.Unknown, "no launcher wired")
		}
		spec.Name = c.Name
		spec.OwnerUID = c.OwnerCred.UID
		result, err := t.launcher.Launch(ctx, spec)
		if err != nil {
			return err
		}
		c.TaskPid = result.WPid
		c.TaskVPid = result.VPid
		c.WaitTaskPid = result.WPid
	}

	t.mu.Lock()
	err := t.Transition(c, TriggerStart, hasWorkload)
	t.mu.Unlock()
	return err
}

// Stop runs spec.md's Stop/Terminate lifecycle: the subtree is traversed
// post-order, each node's processes receive SIGTERM (if a deadline was
// given) then SIGKILL, with freezer-assisted escalation so processes stuck
// ignoring signals cannot dodge the kill by forking, then resources are
// released and state becomes Stopped. Callers must hold c's write lock.
func (t *Tree) Stop(c *Container, deadline time.Duration) error {
	order := postOrder(c)

	for _, n := range order {
		if n.State != Running && n.State != Paused && n.State != Meta {
			continue
		}
		if err := killContainer(n, deadline); err != nil {
			return err
		}
		n.TaskPid = 0
		n.WaitTaskPid = 0

		t.mu.Lock()
		trig := TriggerStop
		if n.State == Meta {
			trig = TriggerLastChildStopped
		}
		_ = t.Transition(n, trig, false)
		t.mu.Unlock()
	}
	return nil
}

// postOrder returns c's subtree (including c) with every node preceded by
// all of its descendants, so Stop can tear down children before their
// parent ever needs to observe "last child stopped".
func postOrder(c *Container) []*Container {
	var out []*Container
	for _, ch := range c.Children {
		out = append(out, postOrder(ch)...)
	}
	out = append(out, c)
	return out
}

// killContainer escalates SIGTERM -> SIGKILL across every pid in n's
// freezer cgroup, freezing first so a workload cannot dodge the kill by
// forking faster than the signal can be delivered to every descendant.
func killContainer(n *Container, deadline time.Duration) error {
	fz, ok := n.Cgroups[cgroup.Freezer]
	if !ok {
		return nil
	}
	freezer := cgroup.AsFreezer(fz)

	if deadline > 0 {
		if err := fz.KillAll(unix.SIGTERM); err != nil {
			return err
		}
		time.Sleep(deadline)
	}

	if err := freezer.Freeze(5 * time.Second); err == nil {
		defer freezer.Thaw(5 * time.Second)
	}
	return fz.KillAll(unix.SIGKILL)
}

// Pause freezes c's freezer cgroup and propagates the Paused state to
// descendants, per spec.md's Pause/Resume lifecycle.
func (t *Tree) Pause(c *Container) error {
	fz, ok := c.Cgroups[cgroup.Freezer]
	if !ok {
		return perr.New(perr.InvalidState, "container %s has no freezer cgroup", c.Name)
	}
	if err := cgroup.AsFreezer(fz).Freeze(10 * time.Second); err != nil {
		return err
	}
	t.mu.Lock()
	err := t.Transition(c, TriggerPause, c.State == Running)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	for _, d := range c.Descendants() {
		d.State = Paused
	}
	return nil
}

// Resume thaws c's freezer cgroup and propagates Running/Meta back to
// descendants depending on whether each had a workload.
func (t *Tree) Resume(c *Container) error {
	fz, ok := c.Cgroups[cgroup.Freezer]
	if !ok {
		return perr.New(perr.InvalidState, "container %s has no freezer cgroup", c.Name)
	}
	if err := cgroup.AsFreezer(fz).Thaw(10 * time.Second); err != nil {
		return err
	}
	t.mu.Lock()
	err := t.Transition(c, TriggerResume, c.TaskPid != 0)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	for _, d := range c.Descendants() {
		if d.TaskPid != 0 {
			d.State = Running
		} else {
			d.State = Meta
		}
	}
	return nil
}

// HandleExit implements spec.md's Exit event: a pid matching c.WaitTaskPid
// was reaped with the given status. It is idempotent -- a duplicate Exit
// for a pid that no longer matches WaitTaskPid is a no-op, per §4.5's
// event-queue idempotence requirement.
func (t *Tree) HandleExit(c *Container, pid int, status unix.WaitStatus, oomKilled bool) error {
	if c.WaitTaskPid != pid {
		return nil
	}
	c.ExitStatus = int(status)
	c.OOMKilled = oomKilled
	c.TaskPid = 0
	c.DeadSince = time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Transition(c, TriggerExit, false)
}

// ShouldRespawn reports whether c's respawn policy permits another attempt,
// per spec.md's Respawn policy paragraph.
func (c *Container) ShouldRespawn() bool {
	if !c.ToRespawn {
		return false
	}
	if c.MaxRespawns < 0 {
		return true
	}
	return c.RespawnCount < c.MaxRespawns
}

// Respawn transitions a Dead container back to Running/Meta and bumps its
// respawn counter. Callers are expected to have already re-run Start's
// resource acquisition and launcher call; this just records the
// transition and counter per spec.md's persisted-across-restart
// requirement.
func (t *Tree) Respawn(c *Container, hasWorkload bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.Transition(c, TriggerRespawn, hasWorkload); err != nil {
		return err
	}
	c.RespawnCount++
	return nil
}
