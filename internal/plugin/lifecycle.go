package plugin

import (
	"slices"

	"github.com/pkg/errors"
)

// State is a position in the plugin call-order state machine.
type State int

// Lifecycle states.
const (
	Unregistered State = iota
	Constructed
	Negotiating
	Configured
	Executable
	Destroyed
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Constructed:
		return "constructed"
	case Negotiating:
		return "negotiating"
	case Configured:
		return "configured"
	case Executable:
		return "executable"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// transitions lists the states reachable from each state. Destroyed is
// reachable from everywhere and handled separately.
var transitions = map[State][]State{
	Unregistered: {Constructed},
	Constructed:  {Negotiating, Configured},
	Negotiating:  {Negotiating, Configured},
	Configured:   {Negotiating, Configured, Executable},
	Executable:   {Configured, Executable},
}

// Lifecycle tracks the state of one plugin instance. The zero value is
// Unregistered. It is not safe for concurrent use; hosts serialise calls on
// an instance.
type Lifecycle struct {
	state State
}

// NewLifecycle returns a lifecycle in state s.
func NewLifecycle(s State) Lifecycle {
	return Lifecycle{state: s}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return l.state
}

// CanMove reports whether a transition to next is legal.
func (l *Lifecycle) CanMove(next State) bool {
	if next == Destroyed {
		return l.state != Destroyed
	}
	return slices.Contains(transitions[l.state], next)
}

// Move transitions to next, or returns an error wrapping ErrContract.
func (l *Lifecycle) Move(next State) error {
	if !l.CanMove(next) {
		return errors.Wrapf(ErrContract, "illegal transition %s -> %s", l.state, next)
	}
	l.state = next
	return nil
}

// Require returns an error wrapping ErrContract unless the current state is
// one of allowed.
func (l *Lifecycle) Require(op string, allowed ...State) error {
	if slices.Contains(allowed, l.state) {
		return nil
	}
	return errors.Wrapf(ErrContract, "%s called in state %s", op, l.state)
}
