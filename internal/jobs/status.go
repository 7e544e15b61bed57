package jobs

// Status is the finite set of states a Job can occupy.
type Status string

const (
	StatusAccepted            Status = "accepted"
	StatusRunning             Status = "running"
	StatusRunningWithErrors   Status = "running_with_errors"
	StatusPreviewing          Status = "previewing"
	StatusPaused              Status = "paused"
	StatusSuccessful          Status = "successful"
	StatusCompleteWithErrors  Status = "complete_with_errors"
	StatusCanceled            Status = "canceled"
	StatusFailed              Status = "failed"
)

// Event names the transitions accepted by the state machine in fsm.go.
type Event string

const (
	EventStart              Event = "START"
	EventStartWithPreview   Event = "START_WITH_PREVIEW"
	EventSkipPreview        Event = "SKIP_PREVIEW"
	EventResume             Event = "RESUME"
	EventComplete           Event = "COMPLETE"
	EventCompleteWithErrors Event = "COMPLETE_WITH_ERRORS"
	EventCancel             Event = "CANCEL"
	EventFail               Event = "FAIL"
	EventPause              Event = "PAUSE"
)

// activeStatuses mirrors the GLOSSARY's definition of "Active state": work
// may still be dispatched for a Job in one of these. Paused is deliberately
// excluded - it is neither active nor terminal.
var activeStatuses = map[Status]bool{
	StatusAccepted:          true,
	StatusRunning:           true,
	StatusRunningWithErrors: true,
	StatusPreviewing:        true,
}

var terminalStatuses = map[Status]bool{
	StatusSuccessful:         true,
	StatusCompleteWithErrors: true,
	StatusCanceled:           true,
	StatusFailed:             true,
}

// IsActive reports whether a Job in this status may still have work dispatched.
func IsActive(s Status) bool { return activeStatuses[s] }

// IsTerminal reports whether a Job in this status accepts no further mutation.
func IsTerminal(s Status) bool { return terminalStatuses[s] }

// defaultMessages supplies the per-status message returned when the Job's
// statusMessages map has no entry for the current status (§4.1).
var defaultMessages = map[Status]string{
	StatusAccepted:           "The job has been accepted and is queued for processing",
	StatusRunning:            "The job is being processed",
	StatusRunningWithErrors:  "The job is being processed but has encountered errors",
	StatusPreviewing:         "The job is generating a preview",
	StatusPaused:             "The job has been paused",
	StatusSuccessful:         "The job has completed successfully",
	StatusCompleteWithErrors: "The job has completed with errors",
	StatusCanceled:           "The job has been canceled",
	StatusFailed:             "The job has failed",
}

// DefaultMessage returns the canned message for a status.
func DefaultMessage(s Status) string {
	return defaultMessages[s]
}
