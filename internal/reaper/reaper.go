// Package reaper implements the background cleanup loop described in spec
// §4.5: periodically delete work items and workflow steps belonging to
// jobs that are both terminal and idle past a configured age.
package reaper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobflow/internal/metrics"
	"github.com/ternarybob/jobflow/internal/store"
)

// Config bounds the Reaper's behavior: the age past which a terminal job's
// derived rows are eligible for deletion, and the pause between ticks.
type Config struct {
	ReapableWorkAge time.Duration
	Period          time.Duration
}

// DefaultConfig matches the values named in spec examples (S6): a one hour
// idle threshold checked once a minute.
func DefaultConfig() Config {
	return Config{ReapableWorkAge: time.Hour, Period: time.Minute}
}

// terminalStatuses are the job states eligible for reaping. Kept local to
// avoid an import of internal/jobs purely for three string constants.
var terminalStatuses = []string{"failed", "successful", "canceled"}

// Reaper is the sleep-based loop from §4.5: start() loops while isRunning
// is set, stop() clears the flag, and the current tick always finishes
// before the loop exits. Cancelling the context passed to Start also ends
// the wait between ticks and exits the loop, and bounds each tick's queries.
type Reaper struct {
	db     *store.DB
	cfg    Config
	logger arbor.ILogger

	isRunning int32
	done      chan struct{}
}

// New constructs a Reaper bound to db.
func New(db *store.DB, cfg Config, logger arbor.ILogger) *Reaper {
	return &Reaper{db: db, cfg: cfg, logger: logger}
}

// Start runs the reap loop until Stop is called or ctx is cancelled. After
// Stop, the loop exits once the current wait between ticks has elapsed.
// Intended to be launched in its own goroutine by the caller.
func (r *Reaper) Start(ctx context.Context) {
	atomic.StoreInt32(&r.isRunning, 1)
	r.done = make(chan struct{})
	defer close(r.done)

	for atomic.LoadInt32(&r.isRunning) == 1 {
		r.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.Period):
		}
	}
}

// Stop clears the running flag. The in-flight tick, if any, completes
// before Start returns.
func (r *Reaper) Stop() {
	atomic.StoreInt32(&r.isRunning, 0)
}

// Wait blocks until a running loop's Start call has returned. Safe to call
// even if Start was never invoked.
func (r *Reaper) Wait() {
	if r.done == nil {
		return
	}
	<-r.done
}

// tick performs one reap pass: delete reapable work items, then reapable
// workflow steps, each its own short transaction, logging and swallowing
// any error so the loop keeps running (§4.5 step 3).
func (r *Reaper) tick(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.ReapableWorkAge)

	itemCount, err := r.deleteReapableWorkItems(ctx, cutoff)
	if err != nil {
		metrics.ReaperTickErrors.WithLabelValues("work_items").Inc()
		r.logger.Error().Err(err).Msg("reaper: failed to delete work items")
	} else if itemCount > 0 {
		metrics.ReaperDeletions.WithLabelValues("work_items").Add(float64(itemCount))
		r.logger.Info().Int("count", int(itemCount)).Msg("reaper: deleted work items")
	}

	stepCount, err := r.deleteReapableWorkflowSteps(ctx, cutoff)
	if err != nil {
		metrics.ReaperTickErrors.WithLabelValues("workflow_steps").Inc()
		r.logger.Error().Err(err).Msg("reaper: failed to delete workflow steps")
	} else if stepCount > 0 {
		metrics.ReaperDeletions.WithLabelValues("workflow_steps").Add(float64(stepCount))
		r.logger.Info().Int("count", int(stepCount)).Msg("reaper: deleted workflow steps")
	}
}

func (r *Reaper) deleteReapableWorkItems(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
		DELETE FROM work_items
		WHERE job_id IN (
			SELECT job_id FROM jobs WHERE status = ANY($1) AND updated_at < $2
		)`
	res, err := r.db.ExecContext(ctx, q, terminalStatuses, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Reaper) deleteReapableWorkflowSteps(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
		DELETE FROM workflow_steps
		WHERE job_id IN (
			SELECT job_id FROM jobs WHERE status = ANY($1) AND updated_at < $2
		)`
	res, err := r.db.ExecContext(ctx, q, terminalStatuses, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
