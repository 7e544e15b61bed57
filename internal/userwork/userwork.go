// Package userwork is the per-(job, service) fairness queue described in
// spec §4.3: ready/running counters plus a last-worked timestamp, and the
// nextUser/nextJobId selection that the Dispatcher builds on.
package userwork

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ternarybob/jobflow/internal/store"
)

// Record is one (jobID, serviceID) row.
type Record struct {
	JobID        string    `db:"job_id"`
	ServiceID    string    `db:"service_id"`
	Username     string    `db:"username"`
	ReadyCount   int       `db:"ready_count"`
	RunningCount int       `db:"running_count"`
	LastWorked   time.Time `db:"last_worked"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Store is the UserWork persistence layer. Every method is safe to call
// with either a *sqlx.DB or a *sqlx.Tx via the store.Ext interface.
type Store struct{}

// NewStore constructs a Store. It carries no state of its own; every method
// takes the executor (db or tx) explicitly, matching the teacher's
// repository-as-stateless-function-bag convention.
func NewStore() *Store { return &Store{} }

// IncrementReadyCount adds n (default 1 when n<=0) to the ready counter for
// (jobID, serviceID), creating the row with username if it doesn't exist yet.
func (s *Store) IncrementReadyCount(ctx context.Context, ext store.Ext, jobID, serviceID, username string, n int) error {
	if n <= 0 {
		n = 1
	}
	const q = `
		INSERT INTO user_work (job_id, service_id, username, ready_count, running_count, last_worked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, now(), now(), now())
		ON CONFLICT (job_id, service_id) DO UPDATE
			SET ready_count = user_work.ready_count + $4, updated_at = now()`
	if _, err := ext.ExecContext(ctx, q, jobID, serviceID, username, n); err != nil {
		return fmt.Errorf("increment ready count for job %s/%s: %w", jobID, serviceID, err)
	}
	return nil
}

// IncrementRunningAndDecrementReady moves one unit of work from ready to
// running and stamps last_worked, the step a claimant takes after winning
// nextWorkItem.
func (s *Store) IncrementRunningAndDecrementReady(ctx context.Context, ext store.Ext, jobID, serviceID string) error {
	const q = `
		UPDATE user_work
		SET ready_count = ready_count - 1, running_count = running_count + 1, last_worked = now(), updated_at = now()
		WHERE job_id = $1 AND service_id = $2 AND ready_count > 0`
	res, err := ext.ExecContext(ctx, q, jobID, serviceID)
	if err != nil {
		return fmt.Errorf("claim work for job %s/%s: %w", jobID, serviceID, err)
	}
	return requireRowsAffected(res, "claim work for job %s/%s", jobID, serviceID)
}

// IncrementReadyAndDecrementRunning reverses a claim, e.g. on worker failure.
func (s *Store) IncrementReadyAndDecrementRunning(ctx context.Context, ext store.Ext, jobID, serviceID string) error {
	const q = `
		UPDATE user_work
		SET ready_count = ready_count + 1, running_count = running_count - 1, updated_at = now()
		WHERE job_id = $1 AND service_id = $2 AND running_count > 0`
	res, err := ext.ExecContext(ctx, q, jobID, serviceID)
	if err != nil {
		return fmt.Errorf("requeue work for job %s/%s: %w", jobID, serviceID, err)
	}
	return requireRowsAffected(res, "requeue work for job %s/%s", jobID, serviceID)
}

// DecrementRunningCount records a completed unit of work.
func (s *Store) DecrementRunningCount(ctx context.Context, ext store.Ext, jobID, serviceID string) error {
	const q = `
		UPDATE user_work
		SET running_count = running_count - 1, updated_at = now()
		WHERE job_id = $1 AND service_id = $2 AND running_count > 0`
	res, err := ext.ExecContext(ctx, q, jobID, serviceID)
	if err != nil {
		return fmt.Errorf("complete work for job %s/%s: %w", jobID, serviceID, err)
	}
	return requireRowsAffected(res, "complete work for job %s/%s", jobID, serviceID)
}

// SetReadyCountToZero zeroes every service row for jobID, called on pause
// so a paused job stops offering itself to the dispatcher (§4.3, §8 invariant 4).
func (s *Store) SetReadyCountToZero(ctx context.Context, ext store.Ext, jobID string) error {
	const q = `UPDATE user_work SET ready_count = 0, updated_at = now() WHERE job_id = $1 AND ready_count <> 0`
	if _, err := ext.ExecContext(ctx, q, jobID); err != nil {
		return fmt.Errorf("zero ready counts for job %s: %w", jobID, err)
	}
	return nil
}

// DeleteUserWorkForJob removes every row belonging to jobID.
func (s *Store) DeleteUserWorkForJob(ctx context.Context, ext store.Ext, jobID string) error {
	if _, err := ext.ExecContext(ctx, "DELETE FROM user_work WHERE job_id = $1", jobID); err != nil {
		return fmt.Errorf("delete user_work for job %s: %w", jobID, err)
	}
	return nil
}

// DeleteUserWorkForJobAndService removes the single (jobID, serviceID) row.
func (s *Store) DeleteUserWorkForJobAndService(ctx context.Context, ext store.Ext, jobID, serviceID string) error {
	const q = `DELETE FROM user_work WHERE job_id = $1 AND service_id = $2`
	if _, err := ext.ExecContext(ctx, q, jobID, serviceID); err != nil {
		return fmt.Errorf("delete user_work for job %s/%s: %w", jobID, serviceID, err)
	}
	return nil
}

// DeleteOrphanedRows removes rows where both counters have settled at zero
// (§3 invariant, §8 invariant 9). Returns the number of rows removed.
func (s *Store) DeleteOrphanedRows(ctx context.Context, ext store.Ext) (int64, error) {
	res, err := ext.ExecContext(ctx, "DELETE FROM user_work WHERE ready_count = 0 AND running_count = 0")
	if err != nil {
		return 0, fmt.Errorf("delete orphaned user_work rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted orphaned rows: %w", err)
	}
	return n, nil
}

// GetQueuedAndRunningCountForService returns sum(ready)+sum(running) across
// every row for serviceID.
func (s *Store) GetQueuedAndRunningCountForService(ctx context.Context, q sqlx.QueryerContext, serviceID string) (int, error) {
	var total int
	err := sqlx.GetContext(ctx, q, &total, `
		SELECT COALESCE(SUM(ready_count), 0) + COALESCE(SUM(running_count), 0)
		FROM user_work WHERE service_id = $1`, serviceID)
	if err != nil {
		return 0, fmt.Errorf("sum queued/running for service %s: %w", serviceID, err)
	}
	return total, nil
}

// RecalculateReadyCount resets readyCount for every (jobID, serviceID) row
// to the live count of that job's ready-state work items, used to recover
// from a partial failure where the counters and the work-item table have
// drifted apart.
func (s *Store) RecalculateReadyCount(ctx context.Context, ext store.Ext, jobID string) error {
	const q = `
		UPDATE user_work uw
		SET ready_count = (
			SELECT COUNT(*)
			FROM work_items wi
			WHERE wi.job_id = uw.job_id AND wi.service_id = uw.service_id AND wi.status = 'ready'
		), updated_at = now()
		WHERE uw.job_id = $1`
	if _, err := ext.ExecContext(ctx, q, jobID); err != nil {
		return fmt.Errorf("recalculate ready count for job %s: %w", jobID, err)
	}
	return nil
}

// PopulateFromWorkItems rebuilds the entire user_work table from work_items,
// excluding jobs in paused/previewing and counting only ready/running items.
// A bootstrap/recovery operation, never called on the request path.
func (s *Store) PopulateFromWorkItems(ctx context.Context, ext store.Ext) error {
	const q = `
		INSERT INTO user_work (job_id, service_id, username, ready_count, running_count, last_worked, created_at, updated_at)
		SELECT
			wi.job_id, wi.service_id, j.username,
			COUNT(*) FILTER (WHERE wi.status = 'ready'),
			COUNT(*) FILTER (WHERE wi.status = 'running'),
			now(), now(), now()
		FROM work_items wi
		JOIN jobs j ON j.job_id = wi.job_id
		WHERE j.status NOT IN ('paused', 'previewing')
		  AND wi.status IN ('ready', 'running')
		GROUP BY wi.job_id, wi.service_id, j.username
		ON CONFLICT (job_id, service_id) DO UPDATE
			SET ready_count = EXCLUDED.ready_count,
			    running_count = EXCLUDED.running_count,
			    updated_at = now()`
	if _, err := ext.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("populate user_work from work_items: %w", err)
	}
	return nil
}

func requireRowsAffected(res interface{ RowsAffected() (int64, error) }, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
	if n == 0 {
		return fmt.Errorf(format+": no matching row", args...)
	}
	return nil
}
