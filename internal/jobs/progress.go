package jobs

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ternarybob/jobflow/internal/workflowstep"
)

// UpdateProgress implements §4.4: load every WorkflowStep for the Job,
// compute the weighted rollup, and apply it only if it advances progress.
// Only Succeed/CompleteWithErrors are permitted to set progress to 100;
// this path never exceeds 99 (workflowstep.Rollup clamps to that range).
func (j *Job) UpdateProgress(ctx context.Context, q sqlx.QueryerContext, steps *workflowstep.Store) error {
	if IsTerminal(j.Status) {
		return nil
	}
	rows, err := steps.StepsForJob(ctx, q, j.JobID)
	if err != nil {
		return fmt.Errorf("update progress for job %s: %w", j.JobID, err)
	}
	candidate := workflowstep.Rollup(rows)
	j.SetProgressIfGreater(candidate)
	return nil
}

// CompleteBatch records one finished batch of work, the telemetry-only
// counter carried alongside progress (§3 batchesCompleted).
func (j *Job) CompleteBatch() {
	j.BatchesCompleted++
}
