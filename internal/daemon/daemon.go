// Package daemon holds the daemon-context wiring value: the single place
// the container tree, event queue, persistence store, rate limiters and
// configuration are constructed and handed to everything else, replacing
// the package-level globals a C daemon would use.
package daemon

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/internal/daemonconfig"
	"github.com/bowlofstew/porto/pkg/cgroup"
	"github.com/bowlofstew/porto/pkg/clock"
	"github.com/bowlofstew/porto/pkg/events"
	"github.com/bowlofstew/porto/pkg/launch"
	"github.com/bowlofstew/porto/pkg/metrics"
	"github.com/bowlofstew/porto/pkg/perr"
	"github.com/bowlofstew/porto/pkg/plog"
	"github.com/bowlofstew/porto/pkg/session"
	"github.com/bowlofstew/porto/pkg/store"
	"github.com/bowlofstew/porto/pkg/tree"
)

var log = plog.For("daemon")

// Daemon is the process-wide context value: every other component is
// reached through it rather than through a package-level variable.
type Daemon struct {
	Config daemonconfig.Config

	Tree    *tree.Tree
	Queue   *events.Queue
	Pool    *events.Pool
	Store   *store.Store
	Limiter *session.Limiters
	Metrics *metrics.Collector

	cgroupNamesMu sync.Mutex
	cgroupNames   map[string]string // freezer cgroup path -> container name
}

// New wires a Daemon from cfg. It constructs the tree, the event queue and
// its worker pool, the on-disk store, the rate limiter and the metrics
// collector, but does not start anything (see Run) or touch the
// filesystem (see Restore).
func New(cfg daemonconfig.Config) *Daemon {
	t := tree.New(1 << 16)
	t.SetLauncher(launch.Default{})

	q := events.New(clock.Real{})
	st := store.New(cfg.KVRoot)

	d := &Daemon{
		Config:      cfg,
		Tree:        t,
		Queue:       q,
		Store:       st,
		Limiter:     session.NewLimiters(cfg.RequestsPerSecond, cfg.Burst),
		cgroupNames: make(map[string]string),
	}
	d.Metrics = metrics.NewCollector(t, q)
	d.Pool = events.NewPool(q, clock.Real{}, d.resolve, d.handlers())
	return d
}

// resolve is the events.Resolver: a container name is still live iff the
// tree can still find it.
func (d *Daemon) resolve(name string) bool {
	_, err := d.Tree.Get(name)
	return err == nil
}

func (d *Daemon) handlers() map[events.Kind]events.Handler {
	return map[events.Kind]events.Handler{
		events.Exit:        d.handleExit,
		events.OOM:         d.handleOOM,
		events.Respawn:     d.handleRespawn,
		events.WaitTimeout: d.handleWaitTimeout,
		events.RotateLogs:  d.handleRotateLogs,
		events.DestroyWeak: d.handleDestroyWeak,
	}
}

func (d *Daemon) handleExit(ctx context.Context, ev events.Event) error {
	c, err := d.Tree.Get(ev.ContainerName)
	if err != nil {
		return nil // already destroyed, implicitly cancelled
	}
	if err := d.Tree.TryWriteLock(c); err != nil {
		return err // perr.Busy, re-queued by the pool
	}
	defer d.Tree.UnlockWrite(c)

	status := unix.WaitStatus(ev.Status)
	if err := d.Tree.HandleExit(c, ev.Pid, status, ev.OOMKilled); err != nil {
		return err
	}
	return d.persist(c)
}

func (d *Daemon) handleOOM(ctx context.Context, ev events.Event) error {
	c, err := d.Tree.Get(ev.ContainerName)
	if err != nil {
		return nil
	}
	log.WithField("container", c.Name).Warn("oom event")
	return nil
}

func (d *Daemon) handleRespawn(ctx context.Context, ev events.Event) error {
	c, err := d.Tree.Get(ev.ContainerName)
	if err != nil {
		return nil
	}
	if err := d.Tree.TryWriteLock(c); err != nil {
		return err
	}
	defer d.Tree.UnlockWrite(c)

	if !c.ShouldRespawn() {
		return nil
	}
	hasWorkload := c.State != tree.Meta
	if err := d.Tree.Respawn(c, hasWorkload); err != nil {
		return err
	}
	d.Metrics.RecordRespawn(c.Name)
	return d.persist(c)
}

func (d *Daemon) handleWaitTimeout(ctx context.Context, ev events.Event) error {
	c, err := d.Tree.Get(ev.ContainerName)
	if err != nil {
		return nil
	}
	d.Tree.NotifyTimeout(c, ev.WaiterID)
	return nil
}

func (d *Daemon) handleRotateLogs(ctx context.Context, ev events.Event) error {
	return nil
}

func (d *Daemon) handleDestroyWeak(ctx context.Context, ev events.Event) error {
	c, err := d.Tree.Get(ev.ContainerName)
	if err != nil {
		return nil
	}
	if err := d.Tree.TryWriteLock(c); err != nil {
		return err
	}
	defer d.Tree.UnlockWrite(c)
	if err := d.Tree.Destroy(c); err != nil {
		return err
	}
	return d.Store.Remove(c.ID)
}

// persist writes c's current state to the store, the ambient persistence
// half of every state-changing event handler.
func (d *Daemon) persist(c *tree.Container) error {
	rec := store.Record{
		store.KeyID:    strconv.Itoa(c.ID),
		store.KeyName:  c.Name,
		"wait_task_pid": strconv.Itoa(c.WaitTaskPid),
	}
	rec[store.KeyState] = c.State.String()
	return d.Store.Save(c.ID, rec)
}

// RegisterCgroupPath records name's freezer cgroup path so ContainerOf can
// resolve a peer pid back to a container name; called once when a
// container's cgroups are created.
func (d *Daemon) RegisterCgroupPath(name, freezerPath string) {
	d.cgroupNamesMu.Lock()
	defer d.cgroupNamesMu.Unlock()
	d.cgroupNames[freezerPath] = name
}

// UnregisterCgroupPath drops the mapping once a container's cgroups are
// removed.
func (d *Daemon) UnregisterCgroupPath(freezerPath string) {
	d.cgroupNamesMu.Lock()
	defer d.cgroupNamesMu.Unlock()
	delete(d.cgroupNames, freezerPath)
}

// ContainerOf resolves peerPid to a container name via session.ContainerOf,
// using the reverse map RegisterCgroupPath maintains.
func (d *Daemon) ContainerOf(peerPid int) (string, error) {
	return session.ContainerOf(peerPid, func(path string) (string, error) {
		d.cgroupNamesMu.Lock()
		defer d.cgroupNamesMu.Unlock()
		name, ok := d.cgroupNames[path]
		if !ok {
			return "", perr.New(perr.ContainerDoesNotExist, "no container owns cgroup %s", path)
		}
		return name, nil
	})
}

// cgroupPathFor computes the freezer cgroup path a container's name
// resolves to, one directory level per name component.
func cgroupPathFor(name string) string {
	var comps []string
	for _, c := range strings.Split(name, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}
	return cgroup.ResolvePath("porto", comps, nil)
}

// Run marks the daemon as a child subreaper, starts the event worker pool
// and the aging sweep, and blocks until ctx is cancelled. It notifies systemd of readiness before entering the
// loop and pets the watchdog on a ticker tied to the aging sweep, matching
// how a privileged foreground daemon integrates with its supervisor; both
// calls are no-ops when NOTIFY_SOCKET is unset.
func (d *Daemon) Run(ctx context.Context) error {
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		log.WithError(err).Warn("prctl PR_SET_CHILD_SUBREAPER")
	}
	systemd.SdNotify(false, systemd.SdNotifyReady)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.Pool.Run(ctx, d.Config.EventWorkers); err != nil {
			log.WithError(err).Error("event pool exited")
		}
	}()

	if d.Config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, d.Config.MetricsAddr, d.Metrics); err != nil {
				log.WithError(err).Error("metrics server exited")
			}
		}()
	}

	interval := d.Config.AgingSweepInterval.Duration
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Queue.Close()
			wg.Wait()
			return nil
		case <-ticker.C:
			d.sweepAging()
			systemd.SdNotify(false, systemd.SdNotifyWatchdog)
		}
	}
}

// sweepAging walks Dead containers past their aging_time and pushes a
// DestroyWeak event for each, per spec.md's aging-reap rule.
func (d *Daemon) sweepAging() {
	now := time.Now()
	d.walk(d.Tree.Root(), func(c *tree.Container) {
		if c.State != tree.Dead || c.AgingTimeMs <= 0 {
			return
		}
		deadline := c.DeadSince.Add(time.Duration(c.AgingTimeMs) * time.Millisecond)
		if now.After(deadline) {
			d.Queue.Push(events.Event{Kind: events.DestroyWeak, ContainerName: c.Name})
		}
	})
}

func (d *Daemon) walk(c *tree.Container, fn func(*tree.Container)) {
	fn(c)
	for _, child := range c.Children {
		d.walk(child, fn)
	}
}

// Restore reconstructs the in-memory tree from the on-disk store at
// startup, per spec.md §4.7: containers are recreated oldest-parent-first,
// their live kernel state is checked against the persisted record, and any
// drift found by store.Reconcile is corrected before the daemon starts
// serving requests.
func (d *Daemon) Restore(ctx context.Context, daemonPid int) error {
	restored, err := d.Store.RestoreAll()
	if err != nil {
		return fmt.Errorf("restore: enumerate records: %w", err)
	}

	for _, r := range restored {
		name := r.Record[store.KeyName]
		if name == "" || name == "/" {
			continue
		}
		c, err := d.Tree.Create(name, tree.Credentials{})
		if err != nil {
			log.WithError(err).WithField("container", name).Warn("restore: recreate failed")
			continue
		}
		d.RegisterCgroupPath(name, cgroupPathFor(name))

		waitPid, _ := strconv.Atoi(r.Record["wait_task_pid"])
		in := store.ReconcileInput{
			State:         r.Record[store.KeyState],
			WaitTaskPid:   waitPid,
			DaemonPid:     daemonPid,
			FreezerExists: cgroup.Cgroup{Subsystem: cgroup.Freezer, Path: cgroupPathFor(name)}.Exists(),
		}
		action := store.Reconcile(in)
		d.applyReconcileAction(c, action)
	}
	return nil
}

func (d *Daemon) applyReconcileAction(c *tree.Container, action store.ReconcileAction) {
	switch {
	case action.ForceStopped:
		c.State = tree.Stopped
	case action.Reap, action.KillAndReap:
		c.State = tree.Dead
		c.DeadSince = time.Now()
	case action.DropTaskPid:
		c.TaskPid = 0
	}
}
