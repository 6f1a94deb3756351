package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"shopfloor/internal/db"
)

// GetEmployee fetches an employee by code.
func (s *Store) GetEmployee(ctx context.Context, code string) (db.Employee, error) {
	var out db.Employee
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		out, err = q.GetEmployee(ctx, strings.TrimSpace(code))
		return mapErr(err)
	})
	return out, err
}

func (s *Store) ListEmployees(ctx context.Context) ([]db.Employee, error) {
	var out []db.Employee
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		out, err = q.ListEmployees(ctx)
		return err
	})
	return out, err
}

func (s *Store) UpsertEmployee(ctx context.Context, arg db.UpsertEmployeeParams) (db.Employee, error) {
	var out db.Employee
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		out, err = q.UpsertEmployee(ctx, arg)
		return err
	})
	return out, err
}

// EnsureEmployee creates the employee if missing and leaves an existing
// row untouched. It reports whether a row was created.
func (s *Store) EnsureEmployee(ctx context.Context, arg db.InsertEmployeeIfMissingParams) (bool, error) {
	var created bool
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		n, err := q.InsertEmployeeIfMissing(ctx, arg)
		created = n > 0
		return err
	})
	return created, err
}

func (s *Store) ListMachines(ctx context.Context) ([]db.Machine, error) {
	var out []db.Machine
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		out, err = q.ListMachines(ctx)
		return err
	})
	return out, err
}

func (s *Store) UpsertMachine(ctx context.Context, arg db.UpsertMachineParams) (db.Machine, error) {
	var out db.Machine
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		out, err = q.UpsertMachine(ctx, arg)
		return err
	})
	return out, err
}

func (s *Store) AddAssignment(ctx context.Context, a db.Assignment) error {
	return s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		return q.InsertAssignment(ctx, a)
	})
}

// Assignments returns the machines and employees assigned to a job
// operation. Empty slices mean no restriction.
func (s *Store) Assignments(ctx context.Context, job string, oper int32) (machines, employees []string, err error) {
	err = s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		rows, err := q.ListAssignments(ctx, db.ListAssignmentsParams{JobNum: job, OperNum: oper})
		if err != nil {
			return err
		}
		machines, employees = SplitAssignments(rows)
		return nil
	})
	return machines, employees, err
}

// SplitAssignments partitions assignment rows into machine and employee
// codes.
func SplitAssignments(rows []db.Assignment) (machines, employees []string) {
	machines = []string{}
	employees = []string{}
	for _, r := range rows {
		switch r.Kind {
		case "machine":
			machines = append(machines, r.Code)
		case "employee":
			employees = append(employees, r.Code)
		}
	}
	return machines, employees
}

// AuditEvent describes one recorded request.
type AuditEvent struct {
	Action    string
	Actor     string
	TransNum  int64
	IP        string
	UserAgent string
	Metadata  any
}

// RecordAuditEvent stores an audit event. Metadata is stored as JSON;
// values that do not marshal are stored as null.
func (s *Store) RecordAuditEvent(ctx context.Context, ev AuditEvent) error {
	meta := pqtype.NullRawMessage{}
	if ev.Metadata != nil {
		if b, err := json.Marshal(ev.Metadata); err == nil {
			meta = pqtype.NullRawMessage{RawMessage: b, Valid: true}
		}
	}
	transNum := sql.NullInt64{}
	if ev.TransNum > 0 {
		transNum = sql.NullInt64{Int64: ev.TransNum, Valid: true}
	}
	return s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		return q.InsertAuditEvent(ctx, db.InsertAuditEventParams{
			ID:        uuid.New(),
			Action:    ev.Action,
			Actor:     nullString(ev.Actor),
			TransNum:  transNum,
			Ip:        nullString(ev.IP),
			UserAgent: nullString(ev.UserAgent),
			Metadata:  meta,
		})
	})
}

// DeleteExpiredAuditEvents removes audit events older than cutoff.
func (s *Store) DeleteExpiredAuditEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		n, err = q.DeleteAuditEventsBefore(ctx, cutoff)
		return err
	})
	return n, err
}
