package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobflow/internal/providers"
	"github.com/ternarybob/jobflow/internal/store"
)

// Repository is the Job persistence layer described in §4.2/§6. It talks to
// Postgres exclusively through sqlx and the shared store.Constraints query
// builder; every mutating operation that reads a row before writing it runs
// inside a single transaction per §5.
type Repository struct {
	db               *store.DB
	logger           arbor.ILogger
	providerSnapshot providers.Snapshot
}

// NewRepository constructs a Repository bound to db.
func NewRepository(db *store.DB, logger arbor.ILogger) *Repository {
	return &Repository{db: db, logger: logger}
}

// GetProviderIdsSnapshot delegates to the repository's process-local
// provider-id cache (§5, §6). q is typically tx but any queryer works; the
// snapshot is populated at most once regardless of how many transactions
// call this.
func (r *Repository) GetProviderIdsSnapshot(ctx context.Context, q sqlx.QueryerContext) []string {
	return r.providerSnapshot.Get(ctx, q, r.logger)
}

type jobRow struct {
	ID               int64          `db:"id"`
	JobID            string         `db:"job_id"`
	RequestID        string         `db:"request_id"`
	Username         string         `db:"username"`
	Status           string         `db:"status"`
	Message          string         `db:"message"`
	Progress         int            `db:"progress"`
	BatchesCompleted int            `db:"batches_completed"`
	Request          string         `db:"request"`
	IsAsync          bool           `db:"is_async"`
	IgnoreErrors     bool           `db:"ignore_errors"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
	NumInputGranules int            `db:"num_input_granules"`
	CollectionIDs    string         `db:"collection_ids"`
	ProviderID       sql.NullString `db:"provider_id"`
	DestinationURL   sql.NullString `db:"destination_url"`
	ServiceName      sql.NullString `db:"service_name"`
}

func (r jobRow) toJob() (*Job, error) {
	messages, err := ParseStatusMessages(r.Message, Status(r.Status))
	if err != nil {
		return nil, fmt.Errorf("parse status messages for job %s: %w", r.JobID, err)
	}

	var collectionIDs []string
	if r.CollectionIDs != "" {
		if err := json.Unmarshal([]byte(r.CollectionIDs), &collectionIDs); err != nil {
			return nil, fmt.Errorf("parse collection ids for job %s: %w", r.JobID, err)
		}
	}

	j := &Job{
		JobID:            r.JobID,
		RequestID:        r.RequestID,
		Username:         r.Username,
		Status:           Status(r.Status),
		StatusMessages:   messages,
		Progress:         r.Progress,
		BatchesCompleted: r.BatchesCompleted,
		Request:          r.Request,
		NumInputGranules: r.NumInputGranules,
		CollectionIDs:    collectionIDs,
		IsAsync:          r.IsAsync,
		IgnoreErrors:     r.IgnoreErrors,
		DestinationURL:   r.ProviderString(r.DestinationURL),
		ServiceName:      r.ProviderString(r.ServiceName),
		ProviderID:       r.ProviderString(r.ProviderID),
		Labels:           map[string]struct{}{},
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	j.SetOriginalStatus(j.Status)
	return j, nil
}

func (jobRow) ProviderString(n sql.NullString) string {
	if n.Valid {
		return n.String
	}
	return ""
}

// Create inserts a brand-new Job row. j.Status must be StatusAccepted; use
// Save for subsequent mutations.
func (r *Repository) Create(ctx context.Context, j *Job) error {
	return store.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return r.insert(ctx, tx, j)
	})
}

func (r *Repository) insert(ctx context.Context, tx *sqlx.Tx, j *Job) error {
	messageBlob, err := j.StatusMessages.MarshalBlob()
	if err != nil {
		return fmt.Errorf("marshal status messages: %w", err)
	}
	collectionBlob, err := json.Marshal(j.CollectionIDs)
	if err != nil {
		return fmt.Errorf("marshal collection ids: %w", err)
	}

	const q = `
		INSERT INTO jobs (
			job_id, request_id, username, status, message, progress,
			batches_completed, request, is_async, ignore_errors,
			num_input_granules, collection_ids, provider_id,
			destination_url, service_name, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''), now(), now()
		) RETURNING created_at, updated_at`

	row := tx.QueryRowxContext(ctx, q,
		j.JobID, j.RequestID, j.Username, string(j.Status), messageBlob, j.Progress,
		j.BatchesCompleted, TruncateRequest(j.Request), j.IsAsync, j.IgnoreErrors,
		j.NumInputGranules, string(collectionBlob), j.ProviderID, j.DestinationURL, j.ServiceName,
	)
	if err := row.Scan(&j.CreatedAt, &j.UpdatedAt); err != nil {
		return fmt.Errorf("insert job %s: %w", j.JobID, err)
	}
	return r.reconcileLabels(ctx, tx, j)
}

// Save persists j within tx, per the six steps in §4.2: enforce the
// terminal write barrier, truncate the failure message and request URL,
// serialize collectionIds/statusMessages, write the row, insert any
// unsaved links, and reconcile labels.
func (r *Repository) Save(ctx context.Context, tx *sqlx.Tx, j *Job, links []Link) error {
	if err := r.validateStatus(j); err != nil {
		return err
	}

	messages := j.StatusMessages.Clone()
	if failMsg, ok := messages[StatusFailed]; ok && len(failMsg) > MaxFailedMessageLength {
		messages[StatusFailed] = failMsg[:MaxFailedMessageLength]
	}
	messageBlob, err := messages.MarshalBlob()
	if err != nil {
		return fmt.Errorf("marshal status messages: %w", err)
	}

	collectionBlob, err := json.Marshal(j.CollectionIDs)
	if err != nil {
		return fmt.Errorf("marshal collection ids: %w", err)
	}

	const q = `
		UPDATE jobs SET
			status = $1, message = $2, progress = $3, batches_completed = $4,
			request = $5, is_async = $6, ignore_errors = $7,
			collection_ids = $8, provider_id = NULLIF($9, ''),
			destination_url = NULLIF($10, ''), service_name = NULLIF($11, ''),
			updated_at = now()
		WHERE job_id = $12
		RETURNING updated_at`

	row := tx.QueryRowxContext(ctx, q,
		string(j.Status), messageBlob, j.Progress, j.BatchesCompleted,
		TruncateRequest(j.Request), j.IsAsync, j.IgnoreErrors, string(collectionBlob),
		j.ProviderID, j.DestinationURL, j.ServiceName, j.JobID,
	)
	if err := row.Scan(&j.UpdatedAt); err != nil {
		if store.IsNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("save job %s: %w", j.JobID, err)
	}

	for i := range links {
		if links[i].ID != "" {
			continue // links with an existing identifier are not updated (§8 invariant 5)
		}
		if err := r.insertLink(ctx, tx, &links[i]); err != nil {
			return err
		}
	}

	return r.reconcileLabels(ctx, tx, j)
}

// validateStatus is the terminal write-barrier check performed at the top
// of Save (§4.2 step 1, §4.1): a Job whose originalStatus is terminal
// refuses to persist, except the idempotent failed -> failed case.
func (r *Repository) validateStatus(j *Job) error {
	if !IsTerminal(j.OriginalStatus()) {
		return nil
	}
	if j.OriginalStatus() == StatusFailed && j.Status == StatusFailed {
		return nil
	}
	return &ConflictError{Current: j.OriginalStatus(), Desired: j.Status}
}

func (r *Repository) insertLink(ctx context.Context, tx *sqlx.Tx, l *Link) error {
	const q = `
		INSERT INTO job_links (job_id, href, title, type, rel, bbox, temporal_start, temporal_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var bbox interface{}
	if len(l.BBox) > 0 {
		b, err := json.Marshal(l.BBox)
		if err != nil {
			return fmt.Errorf("marshal bbox: %w", err)
		}
		bbox = string(b)
	}
	var start, end interface{}
	if l.Temporal != nil {
		start, end = l.Temporal.Start, l.Temporal.End
	}

	row := tx.QueryRowxContext(ctx, q, l.JobID, l.Href, l.Title, l.Type, l.Rel, bbox, start, end)
	if err := row.Scan(&l.ID); err != nil {
		return fmt.Errorf("insert link for job %s: %w", l.JobID, err)
	}
	return nil
}

// AddLink appends a single link to jobID within tx and assigns it an ID.
func (r *Repository) AddLink(ctx context.Context, tx *sqlx.Tx, l *Link) error {
	return r.insertLink(ctx, tx, l)
}

// AddStagingBucketLink is a convenience wrapper around AddLink for the
// conventional "staging bucket" output link every job produces, named
// "s3-access" so the display layer leaves it untouched (§6).
func (r *Repository) AddStagingBucketLink(ctx context.Context, tx *sqlx.Tx, jobID, location string) error {
	l := &Link{JobID: jobID, Href: location, Title: "Staging location", Rel: s3AccessRel, Type: "application/x-directory"}
	return r.insertLink(ctx, tx, l)
}

func (r *Repository) reconcileLabels(ctx context.Context, tx *sqlx.Tx, j *Job) error {
	for label := range j.Labels {
		var labelID int64
		err := tx.GetContext(ctx, &labelID, `
			INSERT INTO labels (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, label)
		if err != nil {
			return fmt.Errorf("reconcile label %q: %w", label, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO jobs_labels (job_id, label_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, j.JobID, labelID); err != nil {
			return fmt.Errorf("join label %q to job %s: %w", label, j.JobID, err)
		}
	}
	return nil
}

// ByJobID loads a Job by its UUID. When lock is true the row is selected
// FOR UPDATE and must be called within tx (§4.2, §5).
func (r *Repository) ByJobID(ctx context.Context, q sqlx.QueryerContext, jobID string, lock bool) (*Job, error) {
	query := "SELECT * FROM jobs WHERE job_id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	var row jobRow
	if err := sqlx.GetContext(ctx, q, &row, query, jobID); err != nil {
		if store.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return row.toJob()
}

// ByUsernameAndJobID loads a Job, scoping the lookup to a username so a
// caller can enforce ownership without a separate authorization query.
func (r *Repository) ByUsernameAndJobID(ctx context.Context, q sqlx.QueryerContext, username, jobID string) (*Job, error) {
	var row jobRow
	err := sqlx.GetContext(ctx, q, &row, "SELECT * FROM jobs WHERE job_id = $1 AND username = $2", jobID, username)
	if err != nil {
		if store.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load job %s for user %s: %w", jobID, username, err)
	}
	return row.toJob()
}

// ForUser lists every Job owned by username, newest first.
func (r *Repository) ForUser(ctx context.Context, q sqlx.QueryerContext, username string) ([]*Job, error) {
	return r.QueryAll(ctx, q, store.Constraints{Equals: map[string]interface{}{"username": username}})
}

// QueryAll lists jobs matching c without pagination metadata; callers that
// need a page count should use QueryPage.
func (r *Repository) QueryAll(ctx context.Context, q sqlx.QueryerContext, c store.Constraints) ([]*Job, error) {
	sqlStr, args, err := c.Apply(store.Select("*").From("jobs")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build job query: %w", err)
	}
	var rows []jobRow
	if err := sqlx.SelectContext(ctx, q, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	out := make([]*Job, 0, len(rows))
	for _, row := range rows {
		j, err := row.toJob()
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// QueryPage lists jobs matching c and also returns pagination metadata
// computed from a COUNT(*) over the same (unpaginated) filter set (§4.2).
func (r *Repository) QueryPage(ctx context.Context, q sqlx.QueryerContext, c store.Constraints) ([]*Job, store.Pagination, error) {
	countOnly := c
	countOnly.PerPage = 0
	countOnly.OrderByCol = ""
	countSQL, countArgs, err := countOnly.Apply(store.Select("count(*)").From("jobs")).ToSql()
	if err != nil {
		return nil, store.Pagination{}, fmt.Errorf("build job count query: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, q, &total, countSQL, countArgs...); err != nil {
		return nil, store.Pagination{}, fmt.Errorf("count jobs: %w", err)
	}

	jobs, err := r.QueryAll(ctx, q, c)
	if err != nil {
		return nil, store.Pagination{}, err
	}
	return jobs, store.NewPagination(c.CurrentPage, c.PerPage, total), nil
}

// HasLinks reports whether jobID has at least one link, optionally filtered
// by rel and by whether the link carries spatio-temporal metadata (§6).
func (r *Repository) HasLinks(ctx context.Context, q sqlx.QueryerContext, jobID string, rel *string, spatioTemporal *bool) (bool, error) {
	sb := store.Select("1").From("job_links").Where("job_id = ?", jobID)
	if rel != nil {
		sb = sb.Where("rel = ?", *rel)
	}
	if spatioTemporal != nil {
		if *spatioTemporal {
			sb = sb.Where("(bbox IS NOT NULL OR temporal_start IS NOT NULL)")
		} else {
			sb = sb.Where("(bbox IS NULL AND temporal_start IS NULL)")
		}
	}
	sqlStr, args, err := sb.Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build has-links query: %w", err)
	}
	var exists int
	err = sqlx.GetContext(ctx, q, &exists, sqlStr, args...)
	if store.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check links for job %s: %w", jobID, err)
	}
	return true, nil
}

// LinksForJob returns every link attached to jobID, ordered by link id. Link
// ids are random UUIDs, so this order is stable but is not insertion order.
func (r *Repository) LinksForJob(ctx context.Context, q sqlx.QueryerContext, jobID string) ([]Link, error) {
	type linkRow struct {
		ID            string         `db:"id"`
		JobID         string         `db:"job_id"`
		Href          string         `db:"href"`
		Title         string         `db:"title"`
		Type          string         `db:"type"`
		Rel           string         `db:"rel"`
		BBox          sql.NullString `db:"bbox"`
		TemporalStart sql.NullString `db:"temporal_start"`
		TemporalEnd   sql.NullString `db:"temporal_end"`
	}
	var rows []linkRow
	err := sqlx.SelectContext(ctx, q, &rows, "SELECT * FROM job_links WHERE job_id = $1 ORDER BY id", jobID)
	if err != nil {
		return nil, fmt.Errorf("list links for job %s: %w", jobID, err)
	}
	out := make([]Link, 0, len(rows))
	for _, row := range rows {
		l := Link{ID: row.ID, JobID: row.JobID, Href: row.Href, Title: row.Title, Type: row.Type, Rel: row.Rel}
		if row.BBox.Valid {
			_ = json.Unmarshal([]byte(row.BBox.String), &l.BBox)
		}
		if row.TemporalStart.Valid || row.TemporalEnd.Valid {
			t := &TemporalExtent{}
			if row.TemporalStart.Valid {
				t.Start = &row.TemporalStart.String
			}
			if row.TemporalEnd.Valid {
				t.End = &row.TemporalEnd.String
			}
			l.Temporal = t
		}
		out = append(out, l)
	}
	return out, nil
}

// AddError appends a JobError row. Outside the transition machine: it
// never touches Job.Status (§7).
func (r *Repository) AddError(ctx context.Context, q sqlx.ExtContext, e *Error) error {
	row := sqlx.QueryRowxContext(ctx, q, "INSERT INTO job_errors (job_id, message, url) VALUES ($1, $2, $3) RETURNING id", e.JobID, e.Message, e.URL)
	if err := row.Scan(&e.ID); err != nil {
		return fmt.Errorf("insert error for job %s: %w", e.JobID, err)
	}
	return nil
}

// ErrorsForJob lists every JobError recorded for jobID.
func (r *Repository) ErrorsForJob(ctx context.Context, q sqlx.QueryerContext, jobID string) ([]Error, error) {
	var out []Error
	err := sqlx.SelectContext(ctx, q, &out, "SELECT id, job_id, message, url FROM job_errors WHERE job_id = $1 ORDER BY id", jobID)
	if err != nil {
		return nil, fmt.Errorf("list errors for job %s: %w", jobID, err)
	}
	return out, nil
}

// GetNumInputGranules returns the immutable input-granule count for jobID.
// Resolved Open Question (SPEC_FULL.md §13.2): rather than assume the row
// exists and error otherwise, ok is false when jobID does not match any Job.
func (r *Repository) GetNumInputGranules(ctx context.Context, q sqlx.QueryerContext, jobID string) (count int, ok bool, err error) {
	err = sqlx.GetContext(ctx, q, &count, "SELECT num_input_granules FROM jobs WHERE job_id = $1", jobID)
	if store.IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load num_input_granules for job %s: %w", jobID, err)
	}
	return count, true, nil
}

// fetchAllPages is a bulk loader over QueryAll; nothing in the repository
// calls it. Open Question (SPEC_FULL.md §13.1): preserved verbatim from the source
// implementation's querySource, whose loop body always exits after its
// first iteration regardless of maxPages. This is intentional - do not
// "fix" it into a real multi-page loop without revisiting the pagination
// design first.
func (r *Repository) fetchAllPages(ctx context.Context, q sqlx.QueryerContext, c store.Constraints, maxPages int) ([]*Job, error) {
	var all []*Job
	for page := 0; page < maxPages; page++ {
		c.CurrentPage = page + 1
		batch, err := r.QueryAll(ctx, q, c)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		break // verbatim one-page termination, see doc comment above
	}
	return all, nil
}
