package jobs

import "testing"

// S3: a non-http(s) request URL produces a non-empty ValidationError
// containing a request-URL complaint.
func TestJob_Validate_ScenarioS3_RejectsNonHTTPRequest(t *testing.T) {
	j := New("alice", "ftp://x", 0, nil)

	errs := j.Validate()
	if errs.Empty() {
		t.Fatal("expected validation errors for a non-http(s) request URL")
	}

	found := false
	for _, e := range errs {
		if e == fieldDescriptions["Request"] {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a request-URL error among %v", errs)
	}
}

func TestJob_Validate_AcceptsWellFormedJob(t *testing.T) {
	j := New("alice", "https://example.com/request", 5, []string{"c1"})
	if errs := j.Validate(); !errs.Empty() {
		t.Errorf("expected no validation errors, got %v", errs)
	}
}

func TestJob_Validate_RejectsNegativeCounters(t *testing.T) {
	j := New("alice", "https://example.com", 0, nil)
	j.BatchesCompleted = -1

	errs := j.Validate()
	if errs.Empty() {
		t.Fatal("expected a validation error for a negative batchesCompleted")
	}
}

func TestJob_Validate_RejectsOutOfRangeProgress(t *testing.T) {
	j := New("alice", "https://example.com", 0, nil)
	j.Progress = 101

	errs := j.Validate()
	if errs.Empty() {
		t.Fatal("expected a validation error for progress > 100")
	}
}
