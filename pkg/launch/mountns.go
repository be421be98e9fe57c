package launch

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/fsutil"
	"github.com/bowlofstew/porto/pkg/perr"
)

// prepareMountNamespace runs the ordered mount preparation sequence from
// spec.md §4.3, steps 1-12. It executes inside the child process after
// CLONE_NEWNS (and, if requested, CLONE_NEWUTS/NEWIPC/NEWPID) have taken
// effect, before execve.
func prepareMountNamespace(spec *Spec) error {
	// 1. remount / as slave-rec, so nothing we do here propagates back to
	// the host or sibling containers.
	if err := fsutil.RemountPropagation(fsutil.NewPath("/"), true, fsutil.PropagationSlave); err != nil {
		return perr.Wrap(perr.Unknown, err, "remount / slave-rec")
	}

	// 2. if isolating, mount a fresh /proc scoped to the new pid namespace.
	if spec.IsolateProc {
		procTarget := filepath.Join(spec.RootFS, "proc")
		if err := os.MkdirAll(procTarget, 0555); err != nil {
			return perr.Wrap(perr.Unknown, err, "mkdir proc")
		}
		if err := unix.Mount("proc", procTarget, "proc", 0, ""); err != nil {
			return perr.Wrap(perr.Unknown, err, "mount proc")
		}
	}

	// 3. if root is not host-root and IsolateSys is set, mount read-only /sys.
	if spec.RootFS != "/" && spec.IsolateSys {
		sysTarget := filepath.Join(spec.RootFS, "sys")
		if err := os.MkdirAll(sysTarget, 0555); err != nil {
			return perr.Wrap(perr.Unknown, err, "mkdir sys")
		}
		if err := unix.Mount("sysfs", sysTarget, "sysfs", unix.MS_RDONLY, ""); err != nil {
			return perr.Wrap(perr.Unknown, err, "mount sys")
		}
	}

	// 4. mount the container root filesystem (bind; pivot happens at step 9).
	if spec.RootFS != "/" {
		if err := unix.Mount(spec.RootFS, spec.RootFS, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return perr.Wrap(perr.Unknown, err, "bind root %s", spec.RootFS)
		}
	}

	// 5. create device nodes from the permitted device list.
	for _, d := range spec.Devices {
		if err := mknodDevice(spec.RootFS, d); err != nil {
			return err
		}
	}

	// 6. bind-mount /etc/resolv.conf from the host if requested and the
	// container did not supply its own.
	if spec.BindHostDNS && spec.ResolvConf == "" {
		target := filepath.Join(spec.RootFS, "etc/resolv.conf")
		if err := fsutil.BindMount(fsutil.NewPath("/etc/resolv.conf"), fsutil.NewPath(target), false, false); err != nil {
			return err
		}
	}

	// 7. apply user-defined bind mounts.
	for _, m := range spec.Mounts {
		target := filepath.Join(spec.RootFS, m.Target)
		if err := os.MkdirAll(target, 0755); err != nil {
			return perr.Wrap(perr.Unknown, err, "mkdir bind target %s", target)
		}
		if err := fsutil.BindMount(fsutil.NewPath(m.Source), fsutil.NewPath(target), false, m.ReadOnly); err != nil {
			return err
		}
	}

	// 8. remount root read-only if requested.
	if spec.RootReadOnly {
		if err := fsutil.RemountReadOnly(fsutil.NewPath(spec.RootFS)); err != nil {
			return err
		}
	}

	// 9. pivot into the new root and detach the old one.
	if spec.RootFS != "/" {
		if err := pivotInto(spec.RootFS); err != nil {
			return err
		}
	}

	// 10. write /etc/resolv.conf and /etc/hostname via the private-write
	// sequence.
	if spec.ResolvConf != "" {
		if err := fsutil.PrivateWrite(fsutil.NewPath("/etc/resolv.conf"), []byte(spec.ResolvConf), 0644); err != nil {
			return err
		}
	}
	if spec.Hostname != "" {
		if err := fsutil.PrivateWrite(fsutil.NewPath("/etc/hostname"), []byte(spec.Hostname+"\n"), 0644); err != nil {
			return err
		}
		if err := unix.Sethostname([]byte(spec.Hostname)); err != nil {
			return perr.Wrap(perr.Unknown, err, "sethostname")
		}
	}

	// 11. chdir to the container's working directory.
	workdir := spec.WorkDir
	if workdir == "" {
		workdir = "/"
	}
	if err := unix.Chdir(workdir); err != nil {
		return perr.Wrap(perr.Unknown, err, "chdir %s", workdir)
	}

	// 12. remount / as shared-rec so subcontainers get propagation.
	if err := fsutil.RemountPropagation(fsutil.NewPath("/"), true, fsutil.PropagationShared); err != nil {
		return perr.Wrap(perr.Unknown, err, "remount / shared-rec")
	}

	return nil
}

// pivotInto performs pivot_root(new, new) followed by detaching the old
// root mounted over itself, the standard "self-pivot" idiom for a root
// that was just bind-mounted over itself at step 4.
func pivotInto(newRoot string) error {
	if err := unix.Chdir(newRoot); err != nil {
		return perr.Wrap(perr.Unknown, err, "chdir new root %s", newRoot)
	}
	if err := unix.PivotRoot(".", "."); err != nil {
		return perr.Wrap(perr.Unknown, err, "pivot_root")
	}
	// After pivot_root(".", "."), the old root is mounted at the current
	// directory, shadowed by the new root. Lazily unmount it.
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return perr.Wrap(perr.Unknown, err, "detach old root")
	}
	return nil
}

func mknodDevice(rootfs string, d DeviceSpec) error {
	target := filepath.Join(rootfs, d.Path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return perr.Wrap(perr.Unknown, err, "mkdir device parent %s", target)
	}
	var mode uint32
	switch d.Type {
	case 'c':
		mode = unix.S_IFCHR
	case 'b':
		mode = unix.S_IFBLK
	default:
		return perr.New(perr.InvalidValue, "unknown device type %q for %s", string(d.Type), d.Path)
	}
	mode |= d.Mode
	dev := unix.Mkdev(uint32(d.Major), uint32(d.Minor))
	if err := unix.Mknod(target, mode, int(dev)); err != nil {
		if err == unix.EEXIST {
			return nil
		}
		return perr.Wrap(perr.Unknown, err, "mknod %s", target)
	}
	return nil
}

// applyRlimits applies spec.Rlimits before execve.
func applyRlimits(limits []Rlimit) error {
	for _, l := range limits {
		rl := syscall.Rlimit{Cur: l.Cur, Max: l.Max}
		if err := unix.Setrlimit(l.Resource, (*unix.Rlimit)(&rl)); err != nil {
			return perr.Wrap(perr.Unknown, err, "setrlimit %d", l.Resource)
		}
	}
	return nil
}

// environment builds the workload's environ, locking PORTO_NAME and
// PORTO_HOST against user override per spec.md §6. name is the container's
// path name, host its UTS hostname, passed as two separate values; any
// PORTO_NAME or PORTO_HOST entry in userEnv is dropped. PATH/HOME/USER are filled in from uid's passwd entry, falling back to
// root's defaults when the uid has none visible (the common case inside a
// fresh mount namespace with no /etc/passwd of its own).
func environment(userEnv []string, name, host string, uid uint32) []string {
	home, username := "/root", "root"
	if u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10)); err == nil {
		home, username = u.HomeDir, u.Username
	}

	env := make([]string, 0, len(userEnv)+6)
	for _, kv := range userEnv {
		if strings.HasPrefix(kv, "PORTO_NAME=") || strings.HasPrefix(kv, "PORTO_HOST=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env,
		"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		fmt.Sprintf("HOME=%s", home),
		fmt.Sprintf("USER=%s", username),
		"container=lxc",
		fmt.Sprintf("PORTO_NAME=%s", name),
		fmt.Sprintf("PORTO_HOST=%s", host),
	)
	return env
}
