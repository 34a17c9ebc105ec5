package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Role identifies who a chat participant is.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSupplier Role = "supplier"
	RoleSystem   Role = "system"
	// RoleGuest is the wire identity of a viewer that has not chosen a role.
	RoleGuest Role = "guest"
)

// ParseRole maps user input to a selectable role. Only buyer and supplier
// can be chosen by a viewer.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleBuyer, RoleSupplier:
		return Role(s), nil
	default:
		return "", fmt.Errorf("models: invalid role %q (valid: buyer, supplier)", s)
	}
}

// ChatMessage is one immutable entry of a negotiation's chat history.
type ChatMessage struct {
	Sender    Role      `json:"sender"`
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
}

// Timestamp is an ISO-8601 instant carried verbatim as received. Numeric
// values (epoch milliseconds) are normalized to RFC 3339 on decode.
type Timestamp string

// NewTimestamp formats t the way outbound messages are stamped.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

// UnmarshalJSON accepts a string or an epoch-millisecond number. Anything
// else decodes to the empty timestamp instead of failing the whole record.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*ts = ""
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
	case data[0] == '"':
		var s string
		if json.Unmarshal(data, &s) == nil {
			*ts = Timestamp(s)
		}
	default:
		if ms, err := strconv.ParseFloat(string(data), 64); err == nil {
			*ts = NewTimestamp(time.UnixMilli(int64(ms)))
		}
	}
	return nil
}

// Time parses the timestamp. The boolean is false when it is empty or not a
// recognizable ISO-8601 instant.
func (ts Timestamp) Time() (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, string(ts)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Display renders the timestamp in the viewer's local time, falling back to
// the raw value when it cannot be parsed.
func (ts Timestamp) Display() string {
	t, ok := ts.Time()
	if !ok {
		return string(ts)
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
