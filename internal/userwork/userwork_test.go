package userwork

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sqlx.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewStore(), mock, db
}

func TestIncrementReadyCount_DefaultsNToOne(t *testing.T) {
	s, mock, db := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_work")).
		WithArgs("job-1", "svc-a", "alice", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.IncrementReadyCount(context.Background(), db, "job-1", "svc-a", "alice", 0); err != nil {
		t.Fatalf("IncrementReadyCount: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestIncrementRunningAndDecrementReady_NoMatchingRowErrors(t *testing.T) {
	s, mock, db := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_work")).
		WithArgs("job-1", "svc-a").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.IncrementRunningAndDecrementReady(context.Background(), db, "job-1", "svc-a")
	if err == nil {
		t.Fatal("expected an error when no row has ready_count > 0")
	}
}

func TestIncrementRunningAndDecrementReady_Succeeds(t *testing.T) {
	s, mock, db := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_work")).
		WithArgs("job-1", "svc-a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.IncrementRunningAndDecrementReady(context.Background(), db, "job-1", "svc-a"); err != nil {
		t.Fatalf("IncrementRunningAndDecrementReady: %v", err)
	}
}

func TestDeleteOrphanedRows_ReturnsCount(t *testing.T) {
	s, mock, db := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_work WHERE ready_count = 0 AND running_count = 0")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.DeleteOrphanedRows(context.Background(), db)
	if err != nil {
		t.Fatalf("DeleteOrphanedRows: %v", err)
	}
	if n != 3 {
		t.Errorf("got %d, want 3", n)
	}
}

func TestGetQueuedAndRunningCountForService(t *testing.T) {
	s, mock, db := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(ready_count), 0) + COALESCE(SUM(running_count), 0)")).
		WithArgs("svc-a").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(7))

	total, err := s.GetQueuedAndRunningCountForService(context.Background(), db, "svc-a")
	if err != nil {
		t.Fatalf("GetQueuedAndRunningCountForService: %v", err)
	}
	if total != 7 {
		t.Errorf("got %d, want 7", total)
	}
}

func TestSetReadyCountToZero(t *testing.T) {
	s, mock, db := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_work SET ready_count = 0")).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := s.SetReadyCountToZero(context.Background(), db, "job-1"); err != nil {
		t.Fatalf("SetReadyCountToZero: %v", err)
	}
}
