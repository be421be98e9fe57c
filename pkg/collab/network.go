package collab

import (
	"context"
	"time"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/bowlofstew/porto/pkg/perr"
)

// NetworkSpec is one container's requested network configuration: the
// interfaces it should see and the traffic-class limits applied to them,
// the group spec.md §4.4 calls out as applied together
// ({net_prio, net_limit, net_guarantee}).
type NetworkSpec struct {
	Interfaces    []string
	NetPrio       int
	NetLimitBps   int64
	NetGuarBps    int64
	AutoconfWait  time.Duration // 0 disables waiting for autoconf
}

// NetworkBackend attaches/detaches a container's network configuration and
// waits for interface autoconf when requested, grounded on the
// docker-archive-libcontainer NetworkStrategy interface's
// Create/Initialize split (Create does the privileged setup before the
// workload's namespaces are entered; Initialize runs traffic-class limits
// that can be applied any time after).
type NetworkBackend interface {
	Create(ctx context.Context, netnsPath string, spec NetworkSpec) error
	Initialize(ctx context.Context, netnsPath string, spec NetworkSpec) error
	Detach(ctx context.Context, netnsPath string) error
}

// LoopbackBackend is a stub NetworkBackend that only brings the loopback
// interface up inside the target network namespace, standing in for the
// teacher's own Loopback strategy. It ignores NetPrio/NetLimitBps/
// NetGuarBps since those require a real traffic-class backend this
// project does not ship; Initialize is a no-op beyond validating the
// namespace is reachable.
type LoopbackBackend struct{}

func (LoopbackBackend) Create(ctx context.Context, netnsPath string, spec NetworkSpec) error {
	return withNetNS(netnsPath, func() error {
		link, err := netlink.LinkByName("lo")
		if err != nil {
			return perr.Wrap(perr.Unknown, err, "lookup loopback link")
		}
		if err := netlink.LinkSetUp(link); err != nil {
			return perr.Wrap(perr.Unknown, err, "set loopback up")
		}
		return nil
	})
}

func (LoopbackBackend) Initialize(ctx context.Context, netnsPath string, spec NetworkSpec) error {
	return nil
}

func (LoopbackBackend) Detach(ctx context.Context, netnsPath string) error {
	return nil
}

// withNetNS runs fn with the calling goroutine's thread switched into the
// network namespace at path, restoring the original namespace afterward.
// Callers must not migrate goroutines across OS threads concurrently with
// this call (runtime.LockOSThread discipline is the caller's
// responsibility, matching netns's own documented usage).
func withNetNS(path string, fn func() error) error {
	target, err := netns.GetFromPath(path)
	if err != nil {
		return perr.Wrap(perr.Unknown, err, "open netns %s", path)
	}
	defer target.Close()

	orig, err := netns.Get()
	if err != nil {
		return perr.Wrap(perr.Unknown, err, "get current netns")
	}
	defer orig.Close()

	if err := netns.Set(target); err != nil {
		return perr.Wrap(perr.Unknown, err, "enter netns %s", path)
	}
	defer netns.Set(orig)

	return fn()
}
