package launch

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/perr"
	"github.com/bowlofstew/porto/pkg/plog"
)

// helperSentinelArg is argv[0]'s companion flag the re-exec'd binary checks
// at startup (see cmd/portod/main.go) to dispatch into RunHelper instead of
// the normal daemon entrypoint.
const helperSentinelArg = "--porto-launch-helper"

// IsHelperInvocation reports whether argv (as passed to main, including
// argv[0]) identifies this process as a re-exec'd launch helper, letting
// cmd/portod's main dispatch into RunHelper before any normal daemon
// initialization runs.
func IsHelperInvocation(argv []string) bool {
	return len(argv) > 1 && argv[1] == helperSentinelArg
}

// syncFD is the fd number the sync socket is always inherited on in the
// helper and child processes, by construction of the ExtraFiles slice built
// in startHelper.
const syncFD = 3

// RunHelper is the entrypoint of the re-exec'd helper process. It is called
// from cmd/portod/main.go when argv[1] == helperSentinelArg, before any
// normal daemon initialization runs.
//
// The helper is the middle stage of the chain described in spec.go's package
// doc: it was created with CLONE_NEWPID (and whichever other namespaces the
// launch requested) already applied via SysProcAttr.Cloneflags, so it is
// already running as the workload's eventual pid-namespace init if
// NeedSupervisor was requested, or can exec the workload directly otherwise.
func RunHelper() {
	log := plog.For("launch-helper")
	conn := newSyncConn(os.NewFile(syncFD, "sync"))
	defer conn.close()

	spec, err := decodeSpecEnv()
	if err != nil {
		conn.sendError(err)
		os.Exit(1)
	}

	if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGKILL), 0, 0, 0); err != nil {
		log.WithError(err).Warn("prctl PDEATHSIG failed")
	}

	if err := conn.sendWPid(os.Getpid()); err != nil {
		os.Exit(1)
	}

	vpid := os.Getpid()
	if spec.NeedSupervisor {
		// Quadro-fork: re-exec once more inside the pid namespace we're
		// already running in, so the workload becomes pid 2 and this
		// process becomes the namespace's pid-1 reaper, standing in for the
		// inner supervisor fork of the original triple/quadro-fork scheme.
		child, werr := startChild(spec)
		if werr != nil {
			conn.sendError(werr)
			os.Exit(1)
		}
		vpid = child.Process.Pid
	}

	if err := conn.sendVPid(vpid); err != nil {
		os.Exit(1)
	}

	// Wakeup #1: released once the daemon has recorded WPid/VPid and is
	// ready for us to proceed with namespace setup.
	if err := conn.recvWakeup(); err != nil {
		os.Exit(1)
	}

	if spec.NeedSupervisor {
		// We are the pid-1 supervisor; reap the workload and relay its
		// final status, we do not execve ourselves.
		runSupervisor(conn, vpid)
		return
	}

	if err := setupAndExec(conn, spec); err != nil {
		conn.sendError(err)
		os.Exit(1)
	}
}

// setupAndExec performs mount/device/hostname/cgroup/capability/rlimit
// setup inside the new namespaces, waits for wakeup #2, then execve's the
// workload. On success it never returns (execve replaces the process
// image); on failure it returns the error for the caller to report.
func setupAndExec(conn *syncConn, spec *Spec) error {
	if err := prepareMountNamespace(spec); err != nil {
		return err
	}
	for _, cg := range spec.Cgroups {
		if err := cg.Attach(os.Getpid()); err != nil {
			return perr.Wrap(perr.Unknown, err, "attach to cgroup %s", cg.Path)
		}
	}
	if err := applyRlimits(spec.Rlimits); err != nil {
		return err
	}
	if err := applyCaps(spec.Caps); err != nil {
		return err
	}

	// Wakeup #2: the pre-exec barrier. The daemon's Launch sends it right
	// after wakeup #1, without any daemon-side bookkeeping in between.
	if err := conn.recvWakeup(); err != nil {
		return err
	}

	env := environment(spec.Env, spec.Name, spec.Hostname, spec.OwnerUID)
	argv := append([]string{spec.Command}, spec.Args...)
	if err := conn.sendError(nil); err != nil {
		return err
	}
	if err := unix.Exec(spec.Command, argv, env); err != nil {
		return perr.Wrap(perr.Unknown, err, "execve %s", spec.Command)
	}
	return nil // unreachable
}

// startChild re-execs into a fresh process for the workload when a
// supervisor layer is needed, without further namespace unsharing (it
// inherits the helper's already-entered namespaces as a plain fork+exec).
func startChild(spec *Spec) (*exec.Cmd, error) {
	cmd := exec.Command("/proc/self/exe", helperSentinelArg)
	cmd.Env = append(os.Environ(), encodeSpecEnv(spec, false)...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: unix.SIGKILL}
	if err := cmd.Start(); err != nil {
		return nil, perr.Wrap(perr.Unknown, err, "start supervised child")
	}
	return cmd, nil
}

// runSupervisor is the quadro-fork's inner pid-1: it waits for the real
// workload to exit and relays the result to the daemon, then exits itself
// so the pid namespace tears down.
func runSupervisor(conn *syncConn, childPid int) {
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(childPid, &ws, 0, nil)
	if err != nil {
		conn.sendError(perr.Wrap(perr.Unknown, err, "wait4 supervised child"))
		os.Exit(1)
	}
	conn.sendError(nil)
	os.Exit(ws.ExitStatus())
}

// decodeSpecEnv and encodeSpecEnv carry the launch Spec across execve
// boundaries via a single environment variable, since the helper chain
// re-execs cmd/portod's own binary and cannot otherwise be handed a Go
// struct directly. The Spec is carried as base64-encoded JSON (see
// specenc.go).
func decodeSpecEnv() (*Spec, error) {
	raw := os.Getenv("PORTO_LAUNCH_SPEC")
	if raw == "" {
		return nil, perr.New(perr.Unknown, "missing PORTO_LAUNCH_SPEC")
	}
	return decodeSpec(raw)
}

func encodeSpecEnv(spec *Spec, includeFlags bool) []string {
	return []string{fmt.Sprintf("PORTO_LAUNCH_SPEC=%s", encodeSpec(spec))}
}
