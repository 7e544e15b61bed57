package userwork

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"github.com/ternarybob/jobflow/internal/metrics"
	"github.com/ternarybob/jobflow/internal/store"
)

// Claim is the result of a successful nextWorkItem selection: the user and
// job a caller should materialize a work item for.
type Claim struct {
	Username string
	JobID    string
}

// Dispatcher implements the fair-selection algorithm from §4.3. It holds no
// state beyond a query executor; fairness is entirely expressed by the two
// SQL-style set operations in nextUser and nextJobID, per the design note
// that an in-memory reimplementation must preserve their exact ordering
// (sum(running_count) ascending, then max(last_worked) ascending).
type Dispatcher struct {
	q       sqlx.QueryerContext
	limiter *rate.Limiter
}

// NewDispatcher builds a Dispatcher reading through q (a *sqlx.DB is typical;
// selection itself performs no writes, so it does not require a transaction).
// limiter throttles how often NextWorkItem may be called on this Dispatcher;
// one limiter is shared by every service. It is a polling courtesy, not part
// of the fairness algorithm. A nil limiter disables throttling.
func NewDispatcher(q sqlx.QueryerContext, limiter *rate.Limiter) *Dispatcher {
	return &Dispatcher{q: q, limiter: limiter}
}

// NextUser selects the least-loaded username with ready work for serviceID,
// tie-broken by the oldest max(last_worked) (§4.3 step 1, §8 invariant 10).
// Returns ok=false when no username has any ready work for the service.
func (d *Dispatcher) NextUser(ctx context.Context, serviceID string) (username string, ok bool, err error) {
	const q = `
		SELECT username
		FROM user_work
		WHERE service_id = $1 AND ready_count > 0
		GROUP BY username
		ORDER BY SUM(running_count) ASC, MAX(last_worked) ASC
		LIMIT 1`
	err = sqlx.GetContext(ctx, d.q, &username, q, serviceID)
	if err != nil {
		if store.IsNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select next user for service %s: %w", serviceID, err)
	}
	return username, true, nil
}

// NextJobID selects, among username's rows for serviceID with ready work,
// the one with the smallest (oldest) last_worked (§4.3 step 2).
func (d *Dispatcher) NextJobID(ctx context.Context, username, serviceID string) (jobID string, ok bool, err error) {
	const q = `
		SELECT job_id
		FROM user_work
		WHERE service_id = $1 AND username = $2 AND ready_count > 0
		ORDER BY last_worked ASC
		LIMIT 1`
	err = sqlx.GetContext(ctx, d.q, &jobID, q, serviceID, username)
	if err != nil {
		if store.IsNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select next job for user %s/service %s: %w", username, serviceID, err)
	}
	return jobID, true, nil
}

// NextWorkItem composes NextUser and NextJobID into the full selection
// named in §4.3 step 3. The caller is responsible for claiming an actual
// work item for the returned (jobID, serviceID) and then calling
// Store.IncrementRunningAndDecrementReady; claim mechanics are outside the
// core (§4.3).
func (d *Dispatcher) NextWorkItem(ctx context.Context, serviceID string) (Claim, bool, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return Claim{}, false, fmt.Errorf("wait for dispatcher rate limiter: %w", err)
		}
	}

	username, ok, err := d.NextUser(ctx, serviceID)
	if err != nil || !ok {
		if err == nil {
			metrics.DispatcherEmptyPolls.WithLabelValues(serviceID).Inc()
		}
		return Claim{}, false, err
	}
	jobID, ok, err := d.NextJobID(ctx, username, serviceID)
	if err != nil || !ok {
		if err == nil {
			metrics.DispatcherEmptyPolls.WithLabelValues(serviceID).Inc()
		}
		return Claim{}, false, err
	}
	metrics.DispatcherClaims.WithLabelValues(serviceID).Inc()
	return Claim{Username: username, JobID: jobID}, true, nil
}
