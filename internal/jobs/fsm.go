package jobs

import "fmt"

// transitionTable is the declarative state -> event -> target lookup from
// spec §4.1. It is consulted, never mutated, by every public mutator. Kept
// as a two-level map rather than nested conditionals so the invariants in
// §8 (any transition not listed here is rejected) follow directly from its
// shape.
var transitionTable = map[Status]map[Event]Status{
	StatusAccepted: {
		EventStart:            StatusRunning,
		EventStartWithPreview: StatusPreviewing,
	},
	StatusRunning: {
		EventComplete:           StatusSuccessful,
		EventCompleteWithErrors: StatusCompleteWithErrors,
		EventCancel:             StatusCanceled,
		EventFail:               StatusFailed,
		EventPause:              StatusPaused,
	},
	StatusRunningWithErrors: {
		EventComplete:           StatusSuccessful,
		EventCompleteWithErrors: StatusCompleteWithErrors,
		EventCancel:             StatusCanceled,
		EventFail:               StatusFailed,
		EventPause:              StatusPaused,
	},
	StatusPreviewing: {
		EventSkipPreview: StatusRunning,
		EventCancel:      StatusCanceled,
		EventFail:        StatusFailed,
		EventPause:       StatusPaused,
	},
	StatusPaused: {
		EventSkipPreview: StatusRunning,
		EventResume:      StatusRunning,
		EventCancel:      StatusCanceled,
		EventFail:        StatusFailed,
	},
	// Terminal states accept no events except the idempotent re-fail.
	StatusFailed: {
		EventFail: StatusFailed,
	},
}

// CanTransition reports whether firing event in current moves the machine to
// desired. It never consults or mutates a Job - the FSM is pure data.
func CanTransition(current Status, desired Status, event Event) bool {
	target, ok := transitionTable[current][event]
	return ok && target == desired
}

// ConflictError names a disallowed transition. It is returned by
// ValidateTransition and by the terminal-state write barrier
// (Job.checkWriteBarrier and Repository.Save).
type ConflictError struct {
	Current Status
	Desired Status
	Event   Event
}

func (e *ConflictError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("job is in terminal status %q and cannot be updated to %q", e.Current, e.Desired)
	}
	return fmt.Sprintf("cannot transition job from %q to %q via %s", e.Current, e.Desired, e.Event)
}

// ValidateTransition is CanTransition plus a ConflictError on rejection,
// naming the offending current/desired pair per §7.
func ValidateTransition(current Status, desired Status, event Event) error {
	if !CanTransition(current, desired, event) {
		return &ConflictError{Current: current, Desired: desired, Event: event}
	}
	return nil
}
