// Package board keeps the client-side view of a list of transactions.
// Every live row owns one Ticker that publishes its elapsed time; the
// ticker lives exactly as long as the row stays live.
package board

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"shopfloor/internal/jobs"
	"shopfloor/internal/model"
)

var (
	ErrClosed     = errors.New("board closed")
	ErrUnknownRow = errors.New("unknown transaction")
)

// Actions is the part of the API client the board drives.
type Actions interface {
	Start(ctx context.Context, req model.ActionRequest) (string, error)
	Pause(ctx context.Context, req model.ActionRequest) (string, error)
	Complete(ctx context.Context, req model.ActionRequest) (string, error)
}

type Options struct {
	// Interval between elapsed updates of a live row. Defaults to 1s.
	Interval time.Duration
	Location *time.Location
	Now      func() time.Time
	// OnTick receives every published elapsed string. It runs on the
	// row's ticker goroutine and must not call back into the board.
	OnTick func(transNum int64, elapsed string)
}

// Row is the view model of one transaction.
type Row struct {
	mu      sync.Mutex
	tx      model.Transaction
	ticker  *Ticker
	elapsed atomic.Value
}

// Transaction returns a snapshot of the row's transaction.
func (r *Row) Transaction() model.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tx
}

// Elapsed returns the last published HH:MM:SS string.
func (r *Row) Elapsed() string {
	s, _ := r.elapsed.Load().(string)
	return s
}

// Live reports whether the row currently owns a ticker.
func (r *Row) Live() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticker != nil
}

type Board struct {
	mu      sync.Mutex
	rows    map[int64]*Row
	closed  bool
	actions Actions
	opts    Options
}

func New(actions Actions, opts Options) *Board {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Board{rows: map[int64]*Row{}, actions: actions, opts: opts}
}

// Load replaces the board's rows with txs. Rows that disappear are
// removed and their tickers stopped; rows that remain are updated in
// place.
func (b *Board) Load(txs []model.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	seen := make(map[int64]bool, len(txs))
	for _, tx := range txs {
		seen[tx.TransNum] = true
		row, ok := b.rows[tx.TransNum]
		if !ok {
			row = &Row{}
			b.rows[tx.TransNum] = row
		}
		row.mu.Lock()
		row.tx = tx
		b.sync(row)
		row.mu.Unlock()
	}
	for num, row := range b.rows {
		if !seen[num] {
			row.mu.Lock()
			b.stopTicker(row)
			row.mu.Unlock()
			delete(b.rows, num)
		}
	}
	return nil
}

// Rows returns the rows ordered by job, serial, operation and
// transaction number.
func (b *Board) Rows() []*Row {
	b.mu.Lock()
	out := make([]*Row, 0, len(b.rows))
	for _, r := range b.rows {
		out = append(out, r)
	}
	b.mu.Unlock()

	snaps := make(map[*Row]model.Transaction, len(out))
	for _, r := range out {
		snaps[r] = r.Transaction()
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := snaps[out[i]], snaps[out[j]]
		if a.Key.Job != c.Key.Job {
			return a.Key.Job < c.Key.Job
		}
		if a.Key.SerialNo != c.Key.SerialNo {
			return a.Key.SerialNo < c.Key.SerialNo
		}
		if a.Key.Operation != c.Key.Operation {
			return a.Key.Operation < c.Key.Operation
		}
		return a.TransNum < c.TransNum
	})
	return out
}

// Row returns the row of transNum.
func (b *Board) Row(transNum int64) (*Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	r, ok := b.rows[transNum]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRow, "%d", transNum)
	}
	return r, nil
}

// Remove drops a row and stops its ticker.
func (b *Board) Remove(transNum int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rows[transNum]; ok {
		r.mu.Lock()
		b.stopTicker(r)
		r.mu.Unlock()
		delete(b.rows, transNum)
	}
}

// Close stops every ticker. The board is unusable afterwards.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, r := range b.rows {
		r.mu.Lock()
		b.stopTicker(r)
		r.mu.Unlock()
	}
	b.rows = map[int64]*Row{}
}

// Start asks the server to start a row. The row changes only after the
// server confirms; on failure it is untouched and the error is returned.
func (b *Board) Start(ctx context.Context, req model.ActionRequest) (string, error) {
	return b.transition(ctx, req, b.actions.Start, jobs.StatusStarted)
}

func (b *Board) Pause(ctx context.Context, req model.ActionRequest) (string, error) {
	return b.transition(ctx, req, b.actions.Pause, jobs.StatusPaused)
}

func (b *Board) Complete(ctx context.Context, req model.ActionRequest) (string, error) {
	return b.transition(ctx, req, b.actions.Complete, jobs.StatusCompleted)
}

type actionFunc func(context.Context, model.ActionRequest) (string, error)

func (b *Board) transition(ctx context.Context, req model.ActionRequest, call actionFunc, to jobs.Status) (string, error) {
	row, err := b.Row(req.TransNum)
	if err != nil {
		return "", err
	}

	at := b.opts.Now().In(b.opts.Location)
	if req.StartTime == "" {
		req.StartTime = model.FormatLocal(at, b.opts.Location)
	} else if at, err = model.ParseLocal(req.StartTime, b.opts.Location); err != nil {
		return "", err
	}

	msg, err := call(ctx, req)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return msg, nil
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	row.tx = project(row.tx, to, at)
	b.sync(row)
	return msg, nil
}

// project applies a confirmed status change to the local record: an open
// interval is folded into the accumulated time when the row stops.
func project(tx model.Transaction, to jobs.Status, at time.Time) model.Transaction {
	if tx.Live() && to != jobs.StatusStarted {
		if d := at.Sub(*tx.RunningSince); d > 0 {
			tx.Accumulated += d
		}
	}
	tx.Status = to
	if to == jobs.StatusStarted {
		start := at
		tx.RunningSince = &start
	} else {
		tx.RunningSince = nil
	}
	return tx
}

// sync makes the row's ticker match its status. The caller holds
// row.mu.
func (b *Board) sync(row *Row) {
	b.stopTicker(row)
	el := row.tx.Elapsed()
	row.elapsed.Store(jobs.FormatHMS(el.Seconds(b.opts.Now())))
	if !el.Live {
		return
	}

	transNum := row.tx.TransNum
	now := b.opts.Now
	onTick := b.opts.OnTick
	row.ticker = newTicker(b.opts.Interval, func() {
		s := jobs.FormatHMS(el.Seconds(now()))
		row.elapsed.Store(s)
		if onTick != nil {
			onTick(transNum, s)
		}
	})
}

func (b *Board) stopTicker(row *Row) {
	if row.ticker != nil {
		row.ticker.Stop()
		row.ticker = nil
	}
}
