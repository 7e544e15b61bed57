package jobs

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/jobflow/internal/metrics"
)

const (
	// MaxRequestLength is the column width for the stored request URL (§3, §6).
	MaxRequestLength = 4096
	// maxMessageBlobLength is the column width for the serialized message blob (§6).
	maxMessageBlobLength = 4096
	// reservedForOtherStatuses leaves room in the blob for every other
	// status's message once the failed message is truncated (§4.1).
	reservedForOtherStatuses = 1000
	// MaxFailedMessageLength is the truncation length applied to the
	// failed-status message before serialization.
	MaxFailedMessageLength = maxMessageBlobLength - reservedForOtherStatuses
)

// Job is the entity and state machine described in spec §3/§4.1. Its status
// is only ever changed through the mutators in this file, each of which
// consults the FSM in fsm.go before touching j.Status.
type Job struct {
	JobID     string
	RequestID string
	Username  string

	Status         Status
	StatusMessages StatusMessages
	Progress       int

	BatchesCompleted int
	Request          string
	NumInputGranules int
	CollectionIDs    []string

	IsAsync      bool
	IgnoreErrors bool

	DestinationURL string
	ServiceName    string
	ProviderID     string

	Labels map[string]struct{}

	CreatedAt time.Time
	UpdatedAt time.Time

	// originalStatus is the status this Job held when it was loaded from
	// the store. It is never serialized and never mutated after load; it
	// is the write barrier described in §4.1 that stops a mutator from
	// overwriting a Job that another actor has since finalized.
	originalStatus Status
}

// New creates a Job in its initial accepted state (§3 Lifecycle).
func New(username, request string, numInputGranules int, collectionIDs []string) *Job {
	id := uuid.New().String()
	return &Job{
		JobID:            id,
		RequestID:        id,
		Username:         username,
		Status:           StatusAccepted,
		StatusMessages:   StatusMessages{},
		Progress:         0,
		Request:          request,
		NumInputGranules: numInputGranules,
		CollectionIDs:    append([]string(nil), collectionIDs...),
		Labels:           map[string]struct{}{},
		originalStatus:   StatusAccepted,
	}
}

// SetOriginalStatus records the status the Job held at load time. Called
// exclusively by the repository after a row scan; never by application code.
func (j *Job) SetOriginalStatus(s Status) { j.originalStatus = s }

// OriginalStatus returns the status recorded at load time.
func (j *Job) OriginalStatus() Status { return j.originalStatus }

// HasTerminalStatus reports whether the Job accepts no further mutation.
func (j *Job) HasTerminalStatus() bool { return IsTerminal(j.Status) }

// IsPaused reports whether the Job is currently paused.
func (j *Job) IsPaused() bool { return j.Status == StatusPaused }

// Message returns the message reserved for the Job's current status,
// falling back to the canned default (§4.1).
func (j *Job) Message() string {
	if j.StatusMessages == nil {
		return DefaultMessage(j.Status)
	}
	return j.StatusMessages.MessageFor(j.Status)
}

// checkWriteBarrier enforces the terminal write barrier: a Job whose
// originalStatus was terminal rejects any further status write, except the
// idempotent failed -> failed re-fail (§4.1).
func (j *Job) checkWriteBarrier(desired Status) error {
	if !IsTerminal(j.originalStatus) {
		return nil
	}
	if j.originalStatus == StatusFailed && desired == StatusFailed {
		return nil
	}
	return &ConflictError{Current: j.originalStatus, Desired: desired}
}

// updateStatus is the single internal gate every mutator routes through. It
// is the "updateStatus(status, message)" operation named in §6: message is
// set for the destination status when non-empty, and progress is forced to
// 100 on transition into either terminal success state.
func (j *Job) updateStatus(event Event, status Status, message string) error {
	if err := j.checkWriteBarrier(status); err != nil {
		return err
	}
	if err := ValidateTransition(j.Status, status, event); err != nil {
		return err
	}
	j.Status = status
	if j.StatusMessages == nil {
		j.StatusMessages = StatusMessages{}
	}
	if message != "" {
		j.StatusMessages.Set(status, message)
	}
	if status == StatusSuccessful || status == StatusCompleteWithErrors {
		j.Progress = 100
	}
	metrics.JobTransitions.WithLabelValues(string(status)).Inc()
	return nil
}

// UpdateStatus is the public form of the same operation, for callers (e.g.
// a generic admin endpoint) that already know which event authorizes the
// transition they're requesting.
func (j *Job) UpdateStatus(event Event, status Status, message string) error {
	return j.updateStatus(event, status, message)
}

// Start moves an accepted Job into running.
func (j *Job) Start(message string) error {
	return j.updateStatus(EventStart, StatusRunning, message)
}

// StartWithPreview moves an accepted Job into previewing.
func (j *Job) StartWithPreview(message string) error {
	return j.updateStatus(EventStartWithPreview, StatusPreviewing, message)
}

// Pause moves a running, running_with_errors or previewing Job to paused.
func (j *Job) Pause(message string) error {
	return j.updateStatus(EventPause, StatusPaused, message)
}

// Resume moves a paused Job back to running.
func (j *Job) Resume(message string) error {
	return j.updateStatus(EventResume, StatusRunning, message)
}

// SkipPreview moves a previewing or paused Job to running.
func (j *Job) SkipPreview(message string) error {
	return j.updateStatus(EventSkipPreview, StatusRunning, message)
}

// Fail moves the Job to failed. Idempotent when already failed.
func (j *Job) Fail(message string) error {
	return j.updateStatus(EventFail, StatusFailed, message)
}

// Cancel moves the Job to canceled.
func (j *Job) Cancel(message string) error {
	return j.updateStatus(EventCancel, StatusCanceled, message)
}

// Succeed moves the Job to successful and forces progress to 100.
func (j *Job) Succeed(message string) error {
	return j.updateStatus(EventComplete, StatusSuccessful, message)
}

// CompleteWithErrors moves the Job to complete_with_errors and forces
// progress to 100.
func (j *Job) CompleteWithErrors(message string) error {
	return j.updateStatus(EventCompleteWithErrors, StatusCompleteWithErrors, message)
}

// SetProgressIfGreater applies the monotonicity rule from §4.4: progress
// only ever moves forward except at the terminal-success reset to 100,
// which is handled by updateStatus rather than this method.
func (j *Job) SetProgressIfGreater(candidate int) bool {
	if candidate > j.Progress {
		j.Progress = candidate
		return true
	}
	return false
}

// AddLabel adds a label; duplicates are suppressed (§3 Invariants).
func (j *Job) AddLabel(label string) {
	if j.Labels == nil {
		j.Labels = map[string]struct{}{}
	}
	j.Labels[label] = struct{}{}
}

// LabelList returns the Job's labels as a sorted-by-insertion-unspecified slice.
func (j *Job) LabelList() []string {
	out := make([]string, 0, len(j.Labels))
	for l := range j.Labels {
		out = append(out, l)
	}
	return out
}

// shareLabelPrefix namespaces the label used to record a sharing token.
// The data model (§3) has no dedicated sharing-token column; a label is the
// smallest addition consistent with the existing "labels is a set of
// strings" storage.
const shareLabelPrefix = "share-token:"

// GrantShareToken records a token that IsShareable will later accept.
func (j *Job) GrantShareToken(token string) {
	j.AddLabel(shareLabelPrefix + token)
}

// IsShareable reports whether token was granted access to this Job via a
// share label.
func (j *Job) IsShareable(token string) bool {
	if token == "" {
		return false
	}
	_, ok := j.Labels[shareLabelPrefix+token]
	return ok
}

// BelongsToOrIsAdmin reports whether user may act on this Job.
func (j *Job) BelongsToOrIsAdmin(user string, isAdmin bool) bool {
	return isAdmin || j.Username == user
}

// dataExpirationWindow is the retention window applied when a Job has no
// destination_url (§6).
const dataExpirationWindow = 30 * 24 * time.Hour

// GetDataExpiration returns createdAt+30 days when the Job has no
// destination_url, else nil (§6).
func (j *Job) GetDataExpiration() *time.Time {
	if strings.TrimSpace(j.DestinationURL) != "" {
		return nil
	}
	t := j.CreatedAt.Add(dataExpirationWindow)
	return &t
}

// TruncateRequest enforces the 4096-character cap on the request URL (§3, §6).
func TruncateRequest(request string) string {
	if len(request) <= MaxRequestLength {
		return request
	}
	return request[:MaxRequestLength]
}
