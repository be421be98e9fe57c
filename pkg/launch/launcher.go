package launch

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/cleanup"
	"github.com/bowlofstew/porto/pkg/perr"
	"github.com/bowlofstew/porto/pkg/plog"
)

var log = plog.For("launch")

// Default adapts the package-level Launch function to the one-method
// interface pkg/tree depends on, so the daemon can wire a real launcher
// with `tree.SetLauncher(launch.Default{})` without pkg/tree importing
// pkg/launch directly (it already does import it for Spec/Result, but the
// interface keeps the two testable independently).
type Default struct{}

// Launch implements the launcher interface by calling the package-level
// Launch function.
func (Default) Launch(ctx context.Context, spec *Spec) (*Result, error) {
	return Launch(ctx, spec)
}

// Launch starts one workload per spec, running the daemon's half of the
// synchronization protocol in syncproto.go and the mount/cgroup/capability
// setup in mountns.go and caps.go (executed in the helper process across
// the re-exec in helperproc.go). On any failure it rolls back everything it
// already did and returns a typed error; on success the workload is left
// running and Result identifies it for pkg/tree's waiter bookkeeping.
func Launch(ctx context.Context, spec *Spec) (*Result, error) {
	cu := cleanup.Make(func() {})
	defer cu.Clean()

	daemonSide, helperSide, err := newSyncPair()
	if err != nil {
		return nil, err
	}
	cu.Add(func() { daemonSide.Close() })

	cmd := exec.Command("/proc/self/exe", helperSentinelArg)
	cmd.Env = append(os.Environ(), "PORTO_LAUNCH_SPEC="+encodeSpec(spec))
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	cmd.ExtraFiles = []*os.File{helperSide}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: spec.CloneFlags,
		Pdeathsig:  unix.SIGKILL,
	}

	if err := cmd.Start(); err != nil {
		return nil, perr.Wrap(perr.Unknown, err, "start launch helper")
	}
	helperSide.Close()
	cu.Add(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	conn := newSyncConn(daemonSide)
	timeout := time.Duration(spec.StartTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultStartTimeout()
	}

	result, err := runHandshake(ctx, conn, cmd, timeout)
	if err != nil {
		return nil, err
	}

	for _, cg := range spec.Cgroups {
		if err := cg.Attach(result.WPid); err != nil {
			return nil, perr.Wrap(perr.Unknown, err, "daemon-side attach wpid %d to cgroup %s", result.WPid, cg.Path)
		}
	}

	// Wakeup #1: release the helper into namespace/cgroup/capability setup
	// now that WPid/VPid are recorded and the daemon-side cgroup attach
	// above (belt-and-suspenders alongside the helper's own attach) has
	// happened.
	if err := conn.sendWakeup(); err != nil {
		return nil, err
	}

	// Wakeup #2: release the pre-exec barrier. Nothing else needs to happen
	// daemon-side before the workload actually execve's, so this follows
	// immediately; callers that need to run something strictly-before
	// (e.g. marking the container Running) should do so between the two
	// wakeups in a future revision of this call's caller.
	if err := conn.sendWakeup(); err != nil {
		return nil, err
	}

	final, err := conn.recv()
	if err != nil {
		return nil, err
	}
	if final.Type != msgError {
		return nil, perr.New(perr.Unknown, "unexpected final message type %d", final.Type)
	}
	if final.Kind != perr.Success {
		return nil, perr.New(final.Kind, "%s", final.Text).WithErrno(int(final.Errno))
	}

	cu.Release()
	return result, nil
}

func runHandshake(ctx context.Context, conn *syncConn, cmd *exec.Cmd, timeout time.Duration) (*Result, error) {
	type step struct {
		msg syncMessage
		err error
	}
	ch := make(chan step, 2)
	go func() {
		m, err := conn.recv()
		ch <- step{m, err}
		if err == nil && m.Type != msgError {
			m2, err2 := conn.recv()
			ch <- step{m2, err2}
		}
	}()

	var wpid, vpid int
	haveWPid, haveVPid := false, false
	deadline := time.After(timeout)
	for !haveWPid || !haveVPid {
		select {
		case s := <-ch:
			if s.err != nil {
				return nil, s.err
			}
			switch s.msg.Type {
			case msgWPid:
				wpid = int(s.msg.Pid)
				haveWPid = true
			case msgVPid:
				vpid = int(s.msg.Pid)
				haveVPid = true
			case msgError:
				return nil, perr.New(s.msg.Kind, "%s", s.msg.Text).WithErrno(int(s.msg.Errno))
			}
		case <-deadline:
			log.Warn("launch handshake timed out")
			return nil, perr.New(perr.Unknown, "launch handshake timed out waiting for helper")
		case <-ctx.Done():
			return nil, perr.Wrap(perr.Unknown, ctx.Err(), "launch cancelled")
		}
	}
	return &Result{WPid: wpid, VPid: vpid}, nil
}
