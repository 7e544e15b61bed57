package jobs

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by repository lookups instead of a typed error;
// callers test with errors.Is. A query-by-id that finds nothing returns
// (nil, ErrNotFound) rather than panicking (§7).
var ErrNotFound = errors.New("job not found")

// ValidationError collects the human-readable problems found by Job.Validate.
// It implements error so callers that only check `err != nil` still work,
// while callers that need the full list can type-assert to ValidationError.
type ValidationError []string

func (v ValidationError) Error() string {
	return "job validation failed: " + strings.Join(v, "; ")
}

// Empty reports whether no problems were found.
func (v ValidationError) Empty() bool { return len(v) == 0 }
