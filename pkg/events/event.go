// Package events implements the daemon's due_ms-ordered event queue: Exit,
// OOM, Respawn, WaitTimeout, RotateLogs and DestroyWeak notifications,
// dispatched by a worker pool that re-queues on lock contention and treats
// events for already-destroyed containers as implicitly cancelled.
package events

// Kind tags an Event's variant, matching spec.md's tagged-union Event
// entity.
type Kind int

const (
	Exit Kind = iota
	OOM
	Respawn
	WaitTimeout
	RotateLogs
	DestroyWeak
)

func (k Kind) String() string {
	switch k {
	case Exit:
		return "exit"
	case OOM:
		return "oom"
	case Respawn:
		return "respawn"
	case WaitTimeout:
		return "wait_timeout"
	case RotateLogs:
		return "rotate_logs"
	case DestroyWeak:
		return "destroy_weak"
	default:
		return "unknown"
	}
}

// Event is one queued occurrence. ContainerName is a weak reference: the
// dispatch-time Resolver is the only thing that turns it back into a live
// container, and a name no longer present in the tree (because the
// container reached Destroyed) makes the event a no-op, implementing
// spec.md §4.5's implicit-cancellation rule without any direct pointer
// from Event back into pkg/tree.
type Event struct {
	Kind          Kind
	DueMs         int64
	ContainerName string

	Pid       int    // Exit
	Status    int    // Exit
	OOMKilled bool   // Exit, when the exit was caused by an OOM kill
	OOMFD     int    // OOM
	WaiterID  uint64 // WaitTimeout
}
