package jobs

import "testing"

func TestParseStatusMessages_NewFormat(t *testing.T) {
	raw := `{"running":"halfway there","failed":"boom"}`
	m, err := ParseStatusMessages(raw, StatusFailed)
	if err != nil {
		t.Fatalf("ParseStatusMessages: %v", err)
	}
	if m.MessageFor(StatusRunning) != "halfway there" {
		t.Errorf("running message = %q", m.MessageFor(StatusRunning))
	}
	if m.MessageFor(StatusFailed) != "boom" {
		t.Errorf("failed message = %q", m.MessageFor(StatusFailed))
	}
}

func TestParseStatusMessages_LegacyPlainString(t *testing.T) {
	m, err := ParseStatusMessages("the old plain message", StatusRunning)
	if err != nil {
		t.Fatalf("ParseStatusMessages: %v", err)
	}
	if got := m.MessageFor(StatusRunning); got != "the old plain message" {
		t.Errorf("got %q, want legacy message assigned to current status", got)
	}
}

func TestParseStatusMessages_LegacyJSONQuotedString(t *testing.T) {
	m, err := ParseStatusMessages(`"quoted legacy message"`, StatusPaused)
	if err != nil {
		t.Fatalf("ParseStatusMessages: %v", err)
	}
	if got := m.MessageFor(StatusPaused); got != "quoted legacy message" {
		t.Errorf("got %q, want quoted legacy message assigned to current status", got)
	}
}

func TestParseStatusMessages_Empty(t *testing.T) {
	m, err := ParseStatusMessages("", StatusAccepted)
	if err != nil {
		t.Fatalf("ParseStatusMessages: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("expected empty map, got %v", m)
	}
}

func TestStatusMessages_MessageFor_FallsBackToDefault(t *testing.T) {
	m := StatusMessages{}
	if got := m.MessageFor(StatusRunning); got != DefaultMessage(StatusRunning) {
		t.Errorf("got %q, want default message", got)
	}
}

func TestStatusMessages_Clone_IsIndependent(t *testing.T) {
	m := StatusMessages{StatusRunning: "a"}
	c := m.Clone()
	c[StatusRunning] = "b"

	if m[StatusRunning] != "a" {
		t.Errorf("original mutated: %q", m[StatusRunning])
	}
}
