package store

import (
	"time"

	sq "github.com/Masterminds/squirrel"
)

// psql is the squirrel statement builder configured for Postgres's $N
// placeholders, shared by every repository's dynamic query assembly (§4.2).
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Select starts a SELECT statement using the shared placeholder format.
func Select(columns ...string) sq.SelectBuilder { return psql.Select(columns...) }

// Constraints is the optional filter/sort/pagination bag accepted by every
// listing query (§4.2): exact-match fields on a whitelist, whereIn/
// whereNotIn over value lists, a created/updated date range, and an
// orderBy, applied through a squirrel SelectBuilder rather than manual
// string concatenation.
type Constraints struct {
	Equals      map[string]interface{}
	WhereIn     map[string][]interface{}
	WhereNotIn  map[string][]interface{}
	DateColumn  string // "created_at" or "updated_at"
	DateFrom    *time.Time
	DateTo      *time.Time
	OrderByCol  string
	OrderByDesc bool

	CurrentPage int // 1-indexed
	PerPage     int

	// Lock acquires a row-level exclusive lock on the selected rows within
	// the caller's transaction (§4.2); only meaningful combined with a tx.
	Lock bool
}

// allowedEqualsColumns is the exact-match whitelist from §4.2: status,
// service_name, provider_id, username, job_id are also the whereIn/
// whereNotIn columns.
var allowedEqualsColumns = map[string]bool{
	"status":       true,
	"service_name": true,
	"provider_id":  true,
	"username":     true,
	"job_id":       true,
}

// Apply layers c onto b, returning the augmented builder. Unknown columns in
// Equals/WhereIn/WhereNotIn that aren't in the whitelist are silently
// ignored rather than erroring, matching a defensive query layer that
// should never let a caller probe arbitrary columns.
func (c Constraints) Apply(b sq.SelectBuilder) sq.SelectBuilder {
	for col, val := range c.Equals {
		if allowedEqualsColumns[col] {
			b = b.Where(sq.Eq{col: val})
		}
	}
	for col, vals := range c.WhereIn {
		if allowedEqualsColumns[col] && len(vals) > 0 {
			b = b.Where(sq.Eq{col: vals})
		}
	}
	for col, vals := range c.WhereNotIn {
		if allowedEqualsColumns[col] && len(vals) > 0 {
			b = b.Where(sq.NotEq{col: vals})
		}
	}
	if c.DateColumn != "" {
		if c.DateFrom != nil {
			b = b.Where(sq.GtOrEq{c.DateColumn: *c.DateFrom})
		}
		if c.DateTo != nil {
			b = b.Where(sq.LtOrEq{c.DateColumn: *c.DateTo})
		}
	}

	orderBy := c.OrderByCol
	if orderBy == "" {
		orderBy = "created_at"
	}
	dir := "ASC"
	if c.OrderByDesc || c.OrderByCol == "" {
		dir = "DESC"
	}
	b = b.OrderBy(orderBy + " " + dir)

	if c.Lock {
		b = b.Suffix("FOR UPDATE")
	}

	return c.paginate(b)
}

func (c Constraints) paginate(b sq.SelectBuilder) sq.SelectBuilder {
	perPage := c.PerPage
	if perPage <= 0 {
		return b
	}
	page := c.CurrentPage
	if page < 1 {
		page = 1
	}
	return b.Limit(uint64(perPage)).Offset(uint64((page - 1) * perPage))
}

// Pagination is the length-aware metadata returned alongside a listing
// query's page of results (§4.2).
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	PerPage     int `json:"perPage"`
	TotalItems  int `json:"totalItems"`
	TotalPages  int `json:"totalPages"`
}

// NewPagination computes TotalPages from totalItems/perPage, defaulting to
// a single page of results when perPage is unset.
func NewPagination(currentPage, perPage, totalItems int) Pagination {
	if perPage <= 0 {
		perPage = totalItems
	}
	totalPages := 1
	if perPage > 0 {
		totalPages = (totalItems + perPage - 1) / perPage
		if totalPages == 0 {
			totalPages = 1
		}
	}
	if currentPage < 1 {
		currentPage = 1
	}
	return Pagination{CurrentPage: currentPage, PerPage: perPage, TotalItems: totalItems, TotalPages: totalPages}
}
