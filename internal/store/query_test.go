package store

import (
	"strings"
	"testing"
	"time"
)

func TestConstraints_Apply_WhitelistsEqualsColumns(t *testing.T) {
	c := Constraints{Equals: map[string]interface{}{
		"status":      "running",
		"description": "should be dropped",
	}}

	sql, args, err := c.Apply(Select("*").From("jobs")).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.Contains(sql, "status") {
		t.Errorf("expected whitelisted column in SQL, got %q", sql)
	}
	if strings.Contains(sql, "description") {
		t.Errorf("expected non-whitelisted column to be dropped, got %q", sql)
	}
	if len(args) != 1 || args[0] != "running" {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestConstraints_Apply_DefaultsOrderByCreatedAtDesc(t *testing.T) {
	c := Constraints{}
	sql, _, err := c.Apply(Select("*").From("jobs")).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.Contains(sql, "ORDER BY created_at DESC") {
		t.Errorf("expected default ordering by created_at DESC, got %q", sql)
	}
}

func TestConstraints_Apply_ExplicitOrderByAscends(t *testing.T) {
	c := Constraints{OrderByCol: "username"}
	sql, _, err := c.Apply(Select("*").From("jobs")).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.Contains(sql, "ORDER BY username ASC") {
		t.Errorf("expected explicit ascending order, got %q", sql)
	}
}

func TestConstraints_Apply_LockAppendsForUpdate(t *testing.T) {
	c := Constraints{Lock: true}
	sql, _, err := c.Apply(Select("*").From("jobs")).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(sql), "FOR UPDATE") {
		t.Errorf("expected a FOR UPDATE suffix, got %q", sql)
	}
}

func TestConstraints_Apply_PaginatesWithLimitAndOffset(t *testing.T) {
	c := Constraints{CurrentPage: 3, PerPage: 10}
	sql, _, err := c.Apply(Select("*").From("jobs")).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.Contains(sql, "LIMIT") || !strings.Contains(sql, "OFFSET") {
		t.Errorf("expected LIMIT/OFFSET clauses, got %q", sql)
	}
	// squirrel writes LIMIT and OFFSET into the SQL text, not as bound args.
	if !strings.Contains(sql, "LIMIT 10 OFFSET 20") {
		t.Errorf("expected LIMIT 10 OFFSET 20 for page 3 of 10, got %q", sql)
	}
}

func TestConstraints_Apply_DateRange(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	c := Constraints{DateColumn: "created_at", DateFrom: &from, DateTo: &to}

	sql, args, err := c.Apply(Select("*").From("jobs")).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	// Two bounds plus the default ORDER BY created_at DESC.
	if strings.Count(sql, "created_at") != 3 {
		t.Errorf("expected both date bounds applied, got %q", sql)
	}
	if len(args) != 2 {
		t.Errorf("expected 2 args for the date range, got %v", args)
	}
}

func TestNewPagination_ComputesTotalPages(t *testing.T) {
	p := NewPagination(2, 10, 25)
	if p.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", p.TotalPages)
	}
	if p.CurrentPage != 2 || p.PerPage != 10 || p.TotalItems != 25 {
		t.Errorf("unexpected pagination: %+v", p)
	}
}

func TestNewPagination_ZeroPerPageDefaultsToSinglePage(t *testing.T) {
	p := NewPagination(1, 0, 25)
	if p.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1", p.TotalPages)
	}
	if p.PerPage != 25 {
		t.Errorf("PerPage = %d, want 25 (falls back to totalItems)", p.PerPage)
	}
}

func TestNewPagination_ClampsCurrentPageBelowOne(t *testing.T) {
	p := NewPagination(0, 10, 5)
	if p.CurrentPage != 1 {
		t.Errorf("CurrentPage = %d, want 1", p.CurrentPage)
	}
}

func TestNewPagination_ZeroTotalItemsStillReportsOnePage(t *testing.T) {
	p := NewPagination(1, 10, 0)
	if p.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1 even with zero items", p.TotalPages)
	}
}
