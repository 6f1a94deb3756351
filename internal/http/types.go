package http

import (
	"time"

	"shopfloor/internal/db"
	"shopfloor/internal/jobs"
	"shopfloor/internal/model"
	"shopfloor/internal/services"
	"shopfloor/internal/store"
)

// ScanCheckRequest is the body of POST /api/scan/check.
type ScanCheckRequest struct {
	TransNum int64  `json:"transNum"`
	Step     string `json:"step"`
	QR       string `json:"qr"`
}

// ScanCheckResponse reports whether a scan satisfies the wizard step.
type ScanCheckResponse struct {
	Valid   bool   `json:"valid"`
	Step    string `json:"step"`
	Message string `json:"message,omitempty"`
}

// EmployeeRequest is the body of POST /api/employees. Active defaults to
// true.
type EmployeeRequest struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active *bool  `json:"active,omitempty"`
}

// PoolActionResponse extends the action envelope with per-member detail.
type PoolActionResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Applied []int64             `json:"applied"`
	Skipped []PoolSkippedMember `json:"skipped,omitempty"`
}

type PoolSkippedMember struct {
	TransNum int64  `json:"transNum"`
	Reason   string `json:"reason"`
}

// ReleaseResponse returns the created transaction.
type ReleaseResponse struct {
	Success     bool                 `json:"success"`
	Message     string               `json:"message"`
	Transaction model.TransactionRow `json:"transaction"`
}

// transactionRow renders a stored transaction on the wire. Times are
// wall-clock in loc; elapsed includes the open interval up to now.
func transactionRow(t db.JobTransaction, loc *time.Location, now time.Time) model.TransactionRow {
	row := model.TransactionRow{
		TransNum:           t.TransNum,
		Job:                t.JobNum,
		SerialNo:           t.SerialNo,
		OperationNumber:    int(t.OperNum),
		WorkCenter:         t.WorkCenter,
		Item:               t.Item,
		QtyReleased:        int(t.QtyReleased),
		QtyScrapped:        int(t.QtyScrapped),
		Employee:           t.Employee.String,
		Machine:            t.Machine.String,
		Stage:              t.Stage,
		Status:             jobs.Status(t.StatusID),
		AccumulatedSeconds: t.AccumulatedSeconds,
	}
	if t.PoolNum.Valid {
		pool := t.PoolNum.String
		row.Pool = &pool
	}
	el := jobs.Elapsed{
		Accumulated: time.Duration(t.AccumulatedSeconds) * time.Second,
		State:       row.Status,
	}
	if rs := store.RunStart(t, loc); rs != nil && row.Status == jobs.StatusStarted {
		s := model.FormatLocal(*rs, loc)
		row.StartTime = &s
		el.Live = true
		el.RunningSince = *rs
	}
	row.Elapsed = jobs.FormatHMS(el.Seconds(now))
	return row
}

func transactionRows(ts []db.JobTransaction, loc *time.Location, now time.Time) []model.TransactionRow {
	out := make([]model.TransactionRow, 0, len(ts))
	for _, t := range ts {
		out = append(out, transactionRow(t, loc, now))
	}
	return out
}

func logResponse(transNum int64, stage jobs.Stage, entries []jobs.LogEntry, loc *time.Location, now time.Time) model.LogResponse {
	el := jobs.Reconcile(entries, now)
	resp := model.LogResponse{
		TransNum:           transNum,
		Stage:              string(stage),
		Entries:            make([]model.LogEntryRow, 0, len(entries)),
		State:              el.State,
		Live:               el.Live,
		AccumulatedSeconds: el.AccumulatedSeconds(),
		Elapsed:            jobs.FormatHMS(el.Seconds(now)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, model.LogEntryRow{
			StatusID:   e.StatusID,
			StatusTime: model.FormatLocal(e.StatusTime, loc),
			Actor:      e.Actor,
			Machine:    e.Machine,
			Stage:      string(e.Stage),
		})
	}
	if el.Live {
		s := model.FormatLocal(el.RunningSince, loc)
		resp.RunningSince = &s
	}
	return resp
}

func poolActionResponse(out *services.PoolOutcome) PoolActionResponse {
	resp := PoolActionResponse{Success: true, Message: out.Message, Applied: []int64{}}
	for _, a := range out.Applied {
		resp.Applied = append(resp.Applied, a.TransNum)
	}
	for _, s := range out.Skipped {
		resp.Skipped = append(resp.Skipped, PoolSkippedMember{TransNum: s.TransNum, Reason: s.Reason})
	}
	return resp
}
