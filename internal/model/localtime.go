package model

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// LocalLayout is the timestamp format exchanged with clients: local wall
// clock time without any zone designator.
const LocalLayout = "2006-01-02T15:04:05"

// ErrInvalidTimestamp is returned for timestamps that match none of the
// accepted layouts.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

var lenientLayouts = []string{
	LocalLayout,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// FormatLocal renders t as wall-clock time in loc.
func FormatLocal(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(LocalLayout)
}

// ParseLocal reads a client timestamp as wall-clock time in loc. Values
// that do carry a zone (RFC 3339) are converted into loc rather than
// rejected, since some clients append one.
func ParseLocal(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.Wrap(ErrInvalidTimestamp, "empty")
	}
	for _, layout := range lenientLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, errors.Wrapf(ErrInvalidTimestamp, "%q", s)
}

// WallClock reinterprets the wall-clock fields of t in loc. Postgres
// returns "timestamp without time zone" columns as UTC values whose
// fields are the stored local time.
func WallClock(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
