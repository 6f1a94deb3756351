package store

import (
	"context"
	"database/sql"
	"time"

	"shopfloor/internal/db"
	"shopfloor/internal/jobs"
	"shopfloor/internal/model"
)

// TransactionFilter narrows ListTransactions. Empty fields do not filter.
type TransactionFilter struct {
	Employee string
	// IncludeUnassigned also returns rows with no employee when filtering
	// by employee; operators may pick up unassigned work.
	IncludeUnassigned bool
	Machine           string
	Status            *jobs.Status
	Stage             string
	Pool              string
	Limit             int32
	Offset            int32
}

func (f TransactionFilter) params() db.ListTransactionsParams {
	p := db.ListTransactionsParams{
		Employee:          nullString(f.Employee),
		IncludeUnassigned: f.IncludeUnassigned,
		Machine:           nullString(f.Machine),
		Stage:             nullString(f.Stage),
		PoolNum:           nullString(f.Pool),
		Limit:             f.Limit,
		Offset:            f.Offset,
	}
	if f.Status != nil {
		p.StatusID = sql.NullInt16{Int16: int16(*f.Status), Valid: true}
	}
	return p
}

// ListTransactions returns one page of transactions and the total number
// of rows matching the filter.
func (s *Store) ListTransactions(ctx context.Context, f TransactionFilter) ([]db.JobTransaction, int64, error) {
	var (
		rows  []db.JobTransaction
		total int64
	)
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		params := f.params()
		rows, err = q.ListTransactions(ctx, params)
		if err != nil {
			return err
		}
		total, err = q.CountTransactions(ctx, params)
		return err
	})
	return rows, total, err
}

// GetTransaction fetches a transaction by its number.
func (s *Store) GetTransaction(ctx context.Context, transNum int64) (db.JobTransaction, error) {
	var out db.JobTransaction
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		out, err = q.GetTransaction(ctx, transNum)
		return mapErr(err)
	})
	return out, err
}

// ReleaseTransaction creates a transaction for released work.
func (s *Store) ReleaseTransaction(ctx context.Context, arg db.InsertTransactionParams) (db.JobTransaction, error) {
	var out db.JobTransaction
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		out, err = q.InsertTransaction(ctx, arg)
		return mapErr(err)
	})
	return out, err
}

// StatusLog returns the log of one stage, oldest first.
func (s *Store) StatusLog(ctx context.Context, transNum int64, stage jobs.Stage) ([]db.StatusLog, error) {
	var out []db.StatusLog
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		out, err = q.ListStatusLog(ctx, db.ListStatusLogParams{TransNum: transNum, Stage: string(stage)})
		return err
	})
	return out, err
}

// ClosingLog returns the status log of the last stage a closed
// transaction logged work in, or nil when it never logged any.
func (s *Store) ClosingLog(ctx context.Context, transNum int64) ([]db.StatusLog, error) {
	for _, stage := range []jobs.Stage{jobs.StageVerify, jobs.StageQC, jobs.StageProduction} {
		rows, err := s.StatusLog(ctx, transNum, stage)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, nil
}

// PoolMembers returns every transaction of a pool.
func (s *Store) PoolMembers(ctx context.Context, pool string) ([]db.JobTransaction, error) {
	var out []db.JobTransaction
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		out, err = q.ListPoolMembers(ctx, pool)
		return err
	})
	return out, err
}

// LiveCounts returns the number of running transactions per stage.
func (s *Store) LiveCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		rows, err := q.CountLiveTransactions(ctx)
		if err != nil {
			return err
		}
		for _, r := range rows {
			out[r.Stage] = r.Count
		}
		return nil
	})
	return out, err
}

// DeleteExpiredClosedTransactions removes closed transactions (and their
// logs, by cascade) closed before cutoff.
func (s *Store) DeleteExpiredClosedTransactions(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		n, err = q.DeleteClosedTransactionsBefore(ctx, Wall(cutoff))
		return err
	})
	return n, err
}

// LogEntries converts stored log rows into reconciler input, reading the
// wall-clock timestamps in loc.
func LogEntries(rows []db.StatusLog, loc *time.Location) []jobs.LogEntry {
	out := make([]jobs.LogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, jobs.LogEntry{
			StatusID:   jobs.Status(r.StatusID),
			StatusTime: model.WallClock(r.StatusTime, loc),
			Actor:      r.Actor,
			Machine:    r.Machine.String,
			Stage:      jobs.Stage(r.Stage),
		})
	}
	return out
}

// RunStart returns the open-interval start of a transaction in loc.
func RunStart(t db.JobTransaction, loc *time.Location) *time.Time {
	if !t.RunStart.Valid {
		return nil
	}
	v := model.WallClock(t.RunStart.Time, loc)
	return &v
}
