// Package tradlet hosts the trading-episode core: playbooks and their stop
// policies, tradlet groups, and the per-group sequential event engine fed by
// the process-wide dispatcher.
package tradlet

import (
	"errors"
	"fmt"
)

// GroupState orders group capability: a higher state permits everything the
// lower states permit, plus more.
type GroupState int

const (
	// GroupDisabled stops market-data and trade processing entirely.
	GroupDisabled GroupState = iota
	// GroupSuspended keeps internal state warm from market data but forbids
	// opening and closing positions.
	GroupSuspended
	// GroupCloseOnly forbids new playbooks but allows closing existing ones.
	GroupCloseOnly
	// GroupEnabled permits normal open and close activity.
	GroupEnabled
)

func (s GroupState) String() string {
	switch s {
	case GroupDisabled:
		return "Disabled"
	case GroupSuspended:
		return "Suspended"
	case GroupCloseOnly:
		return "CloseOnly"
	case GroupEnabled:
		return "Enabled"
	}
	return fmt.Sprintf("GroupState(%d)", int(s))
}

// ParseGroupState converts the configuration spelling of a group state.
func ParseGroupState(s string) (GroupState, error) {
	switch s {
	case "Disabled":
		return GroupDisabled, nil
	case "Suspended":
		return GroupSuspended, nil
	case "CloseOnly":
		return GroupCloseOnly, nil
	case "Enabled":
		return GroupEnabled, nil
	}
	return GroupDisabled, fmt.Errorf("tradlet: unknown group state %q", s)
}

// PlaybookState tracks one open-to-close trading episode.
type PlaybookState int

const (
	// StateOpening: open order in flight. Next: Opened, Canceling, Failed.
	StateOpening PlaybookState = iota
	// StateOpened: position held. Next: Closing, Failed.
	StateOpened
	// StateClosing: close order in flight. Next: Closed, ForceClosing, Failed.
	StateClosing
	// StateForceClosing: emergency close after an ordinary close failed.
	// Next: Closed, Failed.
	StateForceClosing
	// StateClosed is terminal: position fully closed.
	StateClosed
	// StateCanceling: open order being canceled (failure or timeout before
	// any fill). Next: Canceled, Failed.
	StateCanceling
	// StateCanceled is terminal: episode canceled with zero position.
	StateCanceled
	// StateFailed is terminal: unrecoverable, needs manual intervention.
	StateFailed
)

// Done reports whether the state is terminal. Terminal states are absorbing.
func (s PlaybookState) Done() bool {
	switch s {
	case StateClosed, StateCanceled, StateFailed:
		return true
	}
	return false
}

func (s PlaybookState) String() string {
	switch s {
	case StateOpening:
		return "Opening"
	case StateOpened:
		return "Opened"
	case StateClosing:
		return "Closing"
	case StateForceClosing:
		return "ForceClosing"
	case StateClosed:
		return "Closed"
	case StateCanceling:
		return "Canceling"
	case StateCanceled:
		return "Canceled"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("PlaybookState(%d)", int(s))
}

var (
	// ErrPlaybookDone rejects any mutator called on a terminal playbook.
	ErrPlaybookDone = errors.New("tradlet: playbook already in terminal state")
	// ErrBadTransition rejects a state transition the machine does not allow.
	ErrBadTransition = errors.New("tradlet: transition not allowed")
	// ErrGroupState rejects an operation the group's current state forbids.
	ErrGroupState = errors.New("tradlet: operation not allowed in group state")
)
