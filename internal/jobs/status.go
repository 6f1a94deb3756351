package jobs

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Status is the lifecycle state of a job transaction within one stage.
// The numeric values are the status ids stored in status_log.status_id
// and transmitted to clients as the strings "1", "2" and "3".
// NotStarted has no wire code and travels as null.
type Status int

const (
	StatusNotStarted Status = 0
	StatusStarted    Status = 1
	StatusPaused     Status = 2
	StatusCompleted  Status = 3
)

// ErrInvalidStatus is returned when a wire value does not name a known status.
var ErrInvalidStatus = errors.New("invalid status code")

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "NotStarted"
	case StatusStarted:
		return "Started"
	case StatusPaused:
		return "Paused"
	case StatusCompleted:
		return "Completed"
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s >= StatusNotStarted && s <= StatusCompleted
}

// IsStop reports whether s closes a running interval.
func (s Status) IsStop() bool {
	return s == StatusPaused || s == StatusCompleted
}

// Code returns the wire code ("1".."3"), or "" for NotStarted.
func (s Status) Code() string {
	if s == StatusNotStarted || !s.Valid() {
		return ""
	}
	return strconv.Itoa(int(s))
}

// ParseStatus normalizes a wire status. Clients and legacy rows send the
// code as a numeric string, a bare number, or nothing at all; all of them
// map onto the same Status.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") || raw == "0" {
		return StatusNotStarted, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return StatusNotStarted, errors.Wrapf(ErrInvalidStatus, "%q", raw)
	}
	s := Status(n)
	if !s.Valid() {
		return StatusNotStarted, errors.Wrapf(ErrInvalidStatus, "%q", raw)
	}
	return s, nil
}

// MarshalJSON renders the wire code as a string, or null when not started.
func (s Status) MarshalJSON() ([]byte, error) {
	if s == StatusNotStarted {
		return []byte("null"), nil
	}
	return json.Marshal(s.Code())
}

// UnmarshalJSON accepts "1", 1, null and "" alike.
func (s *Status) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = StatusNotStarted
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Stage is the gating stage a transaction is currently in. Each open
// stage keeps its own status log.
type Stage string

const (
	StageProduction Stage = "production"
	StageQC         Stage = "qc"
	StageVerify     Stage = "verify"
	StageClosed     Stage = "closed"
)

// ErrInvalidStage is returned for unknown stage names.
var ErrInvalidStage = errors.New("invalid stage")

// ParseStage normalizes a stage name; empty means production.
func ParseStage(raw string) (Stage, error) {
	switch Stage(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StageProduction:
		return StageProduction, nil
	case StageQC:
		return StageQC, nil
	case StageVerify:
		return StageVerify, nil
	case StageClosed:
		return StageClosed, nil
	}
	return "", errors.Wrapf(ErrInvalidStage, "%q", raw)
}

// Open reports whether work can still be logged against the stage.
func (s Stage) Open() bool {
	return s == StageProduction || s == StageQC || s == StageVerify
}
