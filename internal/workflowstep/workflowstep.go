// Package workflowstep implements the per-service progress accounting
// described in spec §4.4: each WorkflowStep tracks how much of its own work
// has completed, and a Job's overall progress is a weighted rollup across
// its steps.
package workflowstep

import (
	"context"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"

	"github.com/ternarybob/jobflow/internal/store"
)

// Step is one (jobID, serviceID) row: how many work items it owns, how many
// have completed, and the weight it contributes to the job-level rollup.
type Step struct {
	ID                     int64   `db:"id"`
	JobID                  string  `db:"job_id"`
	ServiceID              string  `db:"service_id"`
	StepIndex              int     `db:"step_index"`
	WorkItemCount          int     `db:"work_item_count"`
	CompletedWorkItemCount int     `db:"completed_work_item_count"`
	ProgressWeight         float64 `db:"progress_weight"`
}

// updateProgress computes this step's own completion ratio in [0,1].
// prevStep is accepted to match the §4.4 contract ("each step's
// updateProgress(prevStep) uses the previous step's state") but the ratio
// itself only depends on the step's own counts: a later step's work items
// aren't materialized until the step ahead of it has produced them, so an
// empty WorkItemCount before that happens reads as 0 progress rather than
// the step appearing complete.
func (s Step) updateProgress(prevStep *Step) float64 {
	if s.WorkItemCount <= 0 {
		return 0
	}
	ratio := float64(s.CompletedWorkItemCount) / float64(s.WorkItemCount)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// Progress returns the step's own completion ratio, exported for callers
// (display, tests) that want the per-step figure without performing a
// full rollup.
func (s Step) Progress(prevStep *Step) float64 {
	return s.updateProgress(prevStep)
}

// Store is the WorkflowStep persistence layer.
type Store struct{}

// NewStore constructs a Store.
func NewStore() *Store { return &Store{} }

// StepsForJob loads every WorkflowStep for jobID, ordered by stepIndex.
func (s *Store) StepsForJob(ctx context.Context, q sqlx.QueryerContext, jobID string) ([]Step, error) {
	var steps []Step
	err := sqlx.SelectContext(ctx, q, &steps,
		"SELECT * FROM workflow_steps WHERE job_id = $1 ORDER BY step_index", jobID)
	if err != nil {
		return nil, fmt.Errorf("load workflow steps for job %s: %w", jobID, err)
	}
	return steps, nil
}

// IncrementCompletedWorkItemCount records n completed work items against a step.
func (s *Store) IncrementCompletedWorkItemCount(ctx context.Context, ext store.Ext, jobID, serviceID string, n int) error {
	const q = `
		UPDATE workflow_steps
		SET completed_work_item_count = completed_work_item_count + $3
		WHERE job_id = $1 AND service_id = $2`
	if _, err := ext.ExecContext(ctx, q, jobID, serviceID, n); err != nil {
		return fmt.Errorf("increment completed count for job %s/%s: %w", jobID, serviceID, err)
	}
	return nil
}

// Rollup is the candidate overall progress computed across a job's steps
// (§4.4 steps 1-3), prior to the monotonicity check in §4.4 step 4.
func Rollup(steps []Step) int {
	var weighted, totalWeight float64
	var prev *Step
	for i := range steps {
		step := steps[i]
		ratio := step.updateProgress(prev)
		weighted += step.ProgressWeight * ratio
		totalWeight += step.ProgressWeight
		prev = &steps[i]
	}
	if totalWeight < 1 {
		totalWeight = 1
	}
	candidate := int(math.Floor(weighted / totalWeight))
	if candidate < 0 {
		candidate = 0
	}
	if candidate > 99 {
		candidate = 99
	}
	return candidate
}
