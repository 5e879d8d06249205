package model

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp decodes the timestamp forms the task API produces: RFC 3339,
// zone-less ISO 8601 (read as local time), datetime-local and plain dates.
type Timestamp struct {
	time.Time
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func ParseTimestamp(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return parsed, nil
	}
	for _, layout := range localLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		ts.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	ts.Time = parsed
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.Time.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + ts.Time.Format(time.RFC3339) + `"`), nil
}

// Ptr returns nil for a nil or zero timestamp.
func (ts *Timestamp) Ptr() *time.Time {
	if ts == nil || ts.Time.IsZero() {
		return nil
	}
	value := ts.Time
	return &value
}

func TimestampOf(value *time.Time) *Timestamp {
	if value == nil {
		return nil
	}
	return &Timestamp{Time: *value}
}
