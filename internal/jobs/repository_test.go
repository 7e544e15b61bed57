package jobs

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobflow/internal/store"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock, *sqlx.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	repo := NewRepository(&store.DB{DB: db}, arbor.NewNoOpLogger())
	return repo, mock, db
}

func TestRepository_ByJobID_NotFound(t *testing.T) {
	repo, mock, db := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM jobs WHERE job_id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}))
	_ = db

	_, err := repo.ByJobID(context.Background(), db, "missing", false)
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepository_ByJobID_Found(t *testing.T) {
	repo, mock, db := newMockRepo(t)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "job_id", "request_id", "username", "status", "message", "progress",
		"batches_completed", "request", "is_async", "ignore_errors", "created_at",
		"updated_at", "num_input_granules", "collection_ids", "provider_id",
		"destination_url", "service_name",
	}).AddRow(
		1, "job-1", "req-1", "alice", "running", `{"running":"halfway"}`, 40,
		0, "https://example.com", false, false, now, now, 5, "[]", nil, nil, nil,
	)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM jobs WHERE job_id = $1")).
		WithArgs("job-1").
		WillReturnRows(rows)

	j, err := repo.ByJobID(context.Background(), db, "job-1", false)
	if err != nil {
		t.Fatalf("ByJobID: %v", err)
	}
	if j.JobID != "job-1" || j.Status != StatusRunning || j.Progress != 40 {
		t.Errorf("unexpected job: %+v", j)
	}
	if j.OriginalStatus() != StatusRunning {
		t.Errorf("originalStatus = %s, want running", j.OriginalStatus())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepository_ByJobID_Lock_AppendsForUpdate(t *testing.T) {
	repo, mock, db := newMockRepo(t)

	rows := sqlmock.NewRows([]string{
		"id", "job_id", "request_id", "username", "status", "message", "progress",
		"batches_completed", "request", "is_async", "ignore_errors", "created_at",
		"updated_at", "num_input_granules", "collection_ids", "provider_id",
		"destination_url", "service_name",
	}).AddRow(1, "job-1", "req-1", "alice", "accepted", "", 0, 0, "https://example.com",
		false, false, time.Now(), time.Now(), 0, "[]", nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM jobs WHERE job_id = $1 FOR UPDATE")).
		WithArgs("job-1").
		WillReturnRows(rows)

	if _, err := repo.ByJobID(context.Background(), db, "job-1", true); err != nil {
		t.Fatalf("ByJobID with lock: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepository_Save_WriteBarrier_RejectsTerminalJob(t *testing.T) {
	repo, mock, db := newMockRepo(t)

	// A Job reloaded from a store row that was already terminal, with a
	// caller attempting to push it to a different status; Save's barrier
	// trips before issuing any SQL, so the only expectation is the Begin.
	j := New("alice", "https://example.com", 0, nil)
	j.Status = StatusFailed
	j.SetOriginalStatus(StatusCanceled)

	mock.ExpectBegin()
	tx, err := db.BeginTxx(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginTxx: %v", err)
	}

	err = repo.Save(context.Background(), tx, j, nil)
	if err == nil {
		t.Fatal("expected the terminal write barrier to reject this save")
	}
	if _, ok := err.(*ConflictError); !ok {
		t.Errorf("expected *ConflictError, got %T: %v", err, err)
	}
}

func TestRepository_GetNumInputGranules_DriverErrorPropagates(t *testing.T) {
	repo, mock, db := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT num_input_granules FROM jobs WHERE job_id = $1")).
		WithArgs("missing").
		WillReturnError(sqlmock.ErrCancelled)

	_, ok, err := repo.GetNumInputGranules(context.Background(), db, "missing")
	if err == nil {
		t.Fatal("expected an error for a non-sentinel driver failure")
	}
	if ok {
		t.Error("expected ok=false")
	}
}

func TestRepository_GetNumInputGranules_Found(t *testing.T) {
	repo, mock, db := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT num_input_granules FROM jobs WHERE job_id = $1")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"num_input_granules"}).AddRow(42))

	count, ok, err := repo.GetNumInputGranules(context.Background(), db, "job-1")
	if err != nil {
		t.Fatalf("GetNumInputGranules: %v", err)
	}
	if !ok || count != 42 {
		t.Errorf("got count=%d ok=%v, want 42/true", count, ok)
	}
}

func TestRepository_HasLinks_True(t *testing.T) {
	repo, mock, db := newMockRepo(t)

	mock.ExpectQuery("SELECT 1 FROM job_links").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	has, err := repo.HasLinks(context.Background(), db, "job-1", nil, nil)
	if err != nil {
		t.Fatalf("HasLinks: %v", err)
	}
	if !has {
		t.Error("expected HasLinks to report true")
	}
}

func TestRepository_HasLinks_DriverErrorPropagates(t *testing.T) {
	repo, mock, db := newMockRepo(t)

	mock.ExpectQuery("SELECT 1 FROM job_links").
		WithArgs("job-1").
		WillReturnError(sqlmock.ErrCancelled)

	_, err := repo.HasLinks(context.Background(), db, "job-1", nil, nil)
	if err == nil {
		t.Fatal("expected a non-no-rows driver error to propagate")
	}
}

func TestRepository_ErrorsForJob(t *testing.T) {
	repo, mock, db := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, job_id, message, url FROM job_errors WHERE job_id = $1 ORDER BY id")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "message", "url"}).
			AddRow("e1", "job-1", "boom", "").
			AddRow("e2", "job-1", "boom again", "https://example.com/log"))

	errs, err := repo.ErrorsForJob(context.Background(), db, "job-1")
	if err != nil {
		t.Fatalf("ErrorsForJob: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2", len(errs))
	}
	if errs[0].Message != "boom" || errs[1].URL != "https://example.com/log" {
		t.Errorf("unexpected errors: %+v", errs)
	}
}
