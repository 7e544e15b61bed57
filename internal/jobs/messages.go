package jobs

import "encoding/json"

// StatusMessages maps a Status to the human-readable message reserved for
// it. At most one entry per status (§3). It is persisted as a JSON object;
// a legacy deployment may have persisted a bare JSON string instead, which
// is interpreted as the message for whatever status the row is in when
// loaded (§4.1, §7).
type StatusMessages map[Status]string

// MessageFor returns the message reserved for status, falling back to the
// canned default when no entry exists.
func (m StatusMessages) MessageFor(status Status) string {
	if msg, ok := m[status]; ok && msg != "" {
		return msg
	}
	return DefaultMessage(status)
}

// Set records the message reserved for status, replacing any prior entry.
func (m StatusMessages) Set(status Status, message string) {
	m[status] = message
}

// Clone returns a deep copy.
func (m StatusMessages) Clone() StatusMessages {
	out := make(StatusMessages, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MarshalBlob serializes the map form for the `message` column.
func (m StatusMessages) MarshalBlob() (string, error) {
	if m == nil {
		m = StatusMessages{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseStatusMessages decodes the `message` column. A syntactic failure
// (the column holds a legacy plain string rather than a JSON object) is
// treated as the message for currentStatus rather than an error; any other
// failure is returned to the caller (§7). An empty blob yields an empty map.
func ParseStatusMessages(raw string, currentStatus Status) (StatusMessages, error) {
	if raw == "" {
		return StatusMessages{}, nil
	}

	var m StatusMessages
	err := json.Unmarshal([]byte(raw), &m)
	if err == nil {
		if m == nil {
			m = StatusMessages{}
		}
		return m, nil
	}

	if _, isSyntax := err.(*json.SyntaxError); isSyntax {
		// Legacy format: the column is a plain, non-JSON string.
		return StatusMessages{currentStatus: raw}, nil
	}

	// A well-formed JSON value that isn't an object (e.g. a quoted legacy
	// string written by an older writer that did JSON-encode it) is the
	// same legacy case in practice.
	var legacy string
	if jsonErr := json.Unmarshal([]byte(raw), &legacy); jsonErr == nil {
		return StatusMessages{currentStatus: legacy}, nil
	}

	return nil, err
}
