package tree

import "github.com/bowlofstew/porto/pkg/perr"

// Trigger names the cause of a state transition, used to select the right
// edge from the transition table and to log a meaningful reason.
type Trigger int

const (
	TriggerStart Trigger = iota
	TriggerPause
	TriggerResume
	TriggerExit // workload exit or OOM
	TriggerLastChildStopped
	TriggerStop
	TriggerAgingReap
	TriggerRespawn
	TriggerDestroy
)

// transitions is the state machine table from spec.md §4.4. Each entry maps
// (from, trigger) to the single valid "to" state; Start, Resume and
// Respawn each have two valid outcomes (Running for a workload container,
// Meta for one with no workload), disambiguated by the hasWorkload argument
// to Transition.
var transitions = map[State]map[Trigger]State{
	Stopped: {
		TriggerStart:   Running, // or Meta, see Transition
		TriggerDestroy: Destroyed,
	},
	Running: {
		TriggerPause: Paused,
		TriggerExit:  Dead,
	},
	Meta: {
		TriggerPause:            Paused,
		TriggerLastChildStopped: Stopped,
	},
	Paused: {
		TriggerResume: Running, // or Meta, see Transition
	},
	Dead: {
		TriggerStop:      Stopped,
		TriggerAgingReap: Stopped,
		TriggerRespawn:   Running, // or Meta, see Transition
	},
}

// terminal states for the purposes of "terminal for the workload" waiter
// notification: anything other than Running or Meta.
func isWorkloadTerminal(s State) bool {
	return s != Running && s != Meta
}

// Transition validates and applies a state change on c, adjusting
// RunningChildren on every ancestor, cascading Meta ancestors into Stopped
// once their last running descendant exits, and waking waiters when the
// new state is terminal for the workload. hasWorkload disambiguates the
// three triggers (Start, Resume, Respawn) that can land on either Running
// or Meta.
func (t *Tree) Transition(c *Container, trig Trigger, hasWorkload bool) error {
	edges, ok := transitions[c.State]
	if !ok {
		return perr.New(perr.InvalidState, "container %s in state %s accepts no transitions", c.Name, c.State)
	}
	to, ok := edges[trig]
	if !ok {
		return perr.New(perr.InvalidState, "container %s cannot transition from %s on trigger %d", c.Name, c.State, trig)
	}
	if to == Running && !hasWorkload {
		to = Meta
	}

	wasRunning := c.State == Running
	c.State = to
	nowRunning := c.State == Running

	if wasRunning && !nowRunning {
		t.adjustRunningChildren(c, -1)
		if to == Dead {
			t.cascadeLastChildStopped(c)
		}
	} else if !wasRunning && nowRunning {
		t.adjustRunningChildren(c, +1)
	}

	if isWorkloadTerminal(to) {
		t.wakeWaiters(c)
	}
	return nil
}

// cascadeLastChildStopped fires TriggerLastChildStopped on every Meta
// ancestor of c whose RunningChildren just reached zero as a result of c's
// own transition out of Running, per spec.md §4.4 invariant 7: a Meta
// container with no running descendants left anywhere in its subtree is
// itself Stopped, without the client having to call Stop on it separately.
// Ancestors() is nearest-first, and each ancestor's RunningChildren was
// already decremented once (by adjustRunningChildren, before this runs), so
// a single pass transitioning every zeroed-out Meta ancestor in turn is
// enough -- a Meta->Stopped transition does not itself change any
// RunningChildren count, so it cannot zero out a further ancestor that
// wasn't already zeroed by the original decrement.
func (t *Tree) cascadeLastChildStopped(c *Container) {
	for _, a := range c.Ancestors() {
		if a.State == Meta && a.RunningChildren == 0 {
			_ = t.Transition(a, TriggerLastChildStopped, false)
		}
	}
}

// adjustRunningChildren propagates a Running/not-Running transition on c to
// every ancestor's RunningChildren count, not just the immediate parent, so
// a grandparent meta container sees the same count it would if it were
// counting its whole subtree directly (mirrors the reference
// TContainer::UpdateRunningChildren's unconditional recursion through
// Parent).
func (t *Tree) adjustRunningChildren(c *Container, delta int) {
	for _, a := range c.Ancestors() {
		a.RunningChildren += delta
	}
}
