package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"shopfloor/internal/db"
	"shopfloor/internal/jobs"
	"shopfloor/internal/metrics"
	"shopfloor/internal/model"
	"shopfloor/internal/store"
	"shopfloor/internal/transition"
)

var (
	// ErrRejected marks business-rule rejections; the error text is the
	// reason shown to the operator.
	ErrRejected = errors.New("rejected")
	// ErrInvalid marks malformed requests.
	ErrInvalid = errors.New("invalid request")
	// ErrNotFound marks requests for unknown transactions or pools.
	ErrNotFound = errors.New("not found")
)

func rejected(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrRejected)
}

func invalid(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalid)
}

func notFound(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Outcome is the state of one transaction after a successful action.
type Outcome struct {
	TransNum    int64
	Stage       jobs.Stage
	Status      jobs.Status
	Accumulated time.Duration
	RunStart    *time.Time
	Message     string
}

// Skipped names a pool member an action did not apply to.
type Skipped struct {
	TransNum int64
	Reason   string
}

// PoolOutcome is the result of a pool action.
type PoolOutcome struct {
	Pool    string
	Applied []Outcome
	Skipped []Skipped
	Message string
}

// TransitionService applies status transitions. Each call evaluates the
// guards, appends the status log entry, recomputes accumulated time from
// the log and persists the new state in one database transaction.
type TransitionService interface {
	Start(ctx context.Context, req model.ActionRequest) (*Outcome, error)
	Pause(ctx context.Context, req model.ActionRequest) (*Outcome, error)
	Complete(ctx context.Context, req model.ActionRequest) (*Outcome, error)
	QC(ctx context.Context, req model.QCRequest) (*Outcome, error)
	Verify(ctx context.Context, req model.ActionRequest) (*Outcome, error)
	Scrap(ctx context.Context, req model.ScrapRequest) (*Outcome, error)

	StartPool(ctx context.Context, req model.PoolActionRequest) (*PoolOutcome, error)
	PausePool(ctx context.Context, req model.PoolActionRequest) (*PoolOutcome, error)
	CompletePool(ctx context.Context, req model.PoolActionRequest) (*PoolOutcome, error)
}

// TransitionOptions configures NewTransitionService. Zero values select
// NoopLocker, time.Local, slog.Default and time.Now.
type TransitionOptions struct {
	Workflow transition.Workflow
	Location *time.Location
	Locker   Locker
	Logger   *slog.Logger
	Now      func() time.Time
}

type transitionService struct {
	st     *store.Store
	wf     transition.Workflow
	loc    *time.Location
	locker Locker
	logger *slog.Logger
	now    func() time.Time
}

func NewTransitionService(st *store.Store, opts TransitionOptions) TransitionService {
	s := &transitionService{
		st:     st,
		wf:     opts.Workflow,
		loc:    opts.Location,
		locker: opts.Locker,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.locker == nil {
		s.locker = NoopLocker{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// rowFunc performs one action on a locked transaction row.
type rowFunc func(ctx context.Context, q *db.Queries, row db.JobTransaction) (*Outcome, error)

func (s *transitionService) Start(ctx context.Context, req model.ActionRequest) (*Outcome, error) {
	return s.withTransaction(ctx, "start", req, func(ctx context.Context, q *db.Queries, row db.JobTransaction) (*Outcome, error) {
		at, err := s.eventTime(req.StartTime)
		if err != nil {
			return nil, err
		}
		return s.startRow(ctx, q, row, at, req.Employee, req.Machine)
	})
}

func (s *transitionService) Pause(ctx context.Context, req model.ActionRequest) (*Outcome, error) {
	return s.withTransaction(ctx, "pause", req, func(ctx context.Context, q *db.Queries, row db.JobTransaction) (*Outcome, error) {
		at, err := s.eventTime(req.StartTime)
		if err != nil {
			return nil, err
		}
		return s.pauseRow(ctx, q, row, at, req.Employee, req.Machine)
	})
}

func (s *transitionService) Complete(ctx context.Context, req model.ActionRequest) (*Outcome, error) {
	return s.withTransaction(ctx, "complete", req, func(ctx context.Context, q *db.Queries, row db.JobTransaction) (*Outcome, error) {
		at, err := s.eventTime(req.StartTime)
		if err != nil {
			return nil, err
		}
		return s.completeRow(ctx, q, row, at, req.Employee, req.Machine)
	})
}

func (s *transitionService) QC(ctx context.Context, req model.QCRequest) (*Outcome, error) {
	return s.withTransaction(ctx, "qc", req.ActionRequest, func(ctx context.Context, q *db.Queries, row db.JobTransaction) (*Outcome, error) {
		result := strings.ToLower(strings.TrimSpace(req.Result))
		if result != model.QCResultPass && result != model.QCResultReject {
			return nil, invalid("result must be %q or %q", model.QCResultPass, model.QCResultReject)
		}
		at, err := s.eventTime(req.StartTime)
		if err != nil {
			return nil, err
		}
		stage := jobs.Stage(row.Stage)
		if g := transition.CanQC(statusContext(row)); !g.Allowed {
			return nil, rejected("%s", g.Reason)
		}
		if err := s.appendStatus(ctx, q, row.TransNum, stage, jobs.StatusCompleted, at, req.Employee, req.Machine); err != nil {
			return nil, err
		}
		if err := q.InsertQCResult(ctx, db.InsertQCResultParams{
			TransNum:   row.TransNum,
			Result:     result,
			Remarks:    strings.TrimSpace(req.Remarks),
			Actor:      req.Employee,
			RecordedAt: store.Wall(at),
		}); err != nil {
			return nil, errors.Wrap(err, "insert qc result")
		}
		if result == model.QCResultReject {
			out, err := s.enterStage(ctx, q, row, transition.RejectStage(), at, req.Employee, req.Machine)
			if err != nil {
				return nil, err
			}
			out.Message = fmt.Sprintf("QC rejected; transaction %d returned to production", row.TransNum)
			return out, nil
		}
		return s.advance(ctx, q, row, stage, at, req.Employee, req.Machine)
	})
}

func (s *transitionService) Verify(ctx context.Context, req model.ActionRequest) (*Outcome, error) {
	return s.withTransaction(ctx, "verify", req, func(ctx context.Context, q *db.Queries, row db.JobTransaction) (*Outcome, error) {
		at, err := s.eventTime(req.StartTime)
		if err != nil {
			return nil, err
		}
		if g := transition.CanVerify(statusContext(row)); !g.Allowed {
			return nil, rejected("%s", g.Reason)
		}
		stage := jobs.Stage(row.Stage)
		if err := s.appendStatus(ctx, q, row.TransNum, stage, jobs.StatusCompleted, at, req.Employee, req.Machine); err != nil {
			return nil, err
		}
		return s.advance(ctx, q, row, stage, at, req.Employee, req.Machine)
	})
}

// Scrap records scrapped pieces. A running row is stopped by the scrap;
// scrapping the whole remaining quantity closes the transaction.
func (s *transitionService) Scrap(ctx context.Context, req model.ScrapRequest) (*Outcome, error) {
	return s.withTransaction(ctx, "scrap", req.ActionRequest, func(ctx context.Context, q *db.Queries, row db.JobTransaction) (*Outcome, error) {
		at, err := s.eventTime(req.StartTime)
		if err != nil {
			return nil, err
		}
		g := transition.CanScrap(transition.ScrapContext{
			StatusContext: statusContext(row),
			Qty:           req.Qty,
			QtyReleased:   int(row.QtyReleased),
			QtyScrapped:   int(row.QtyScrapped),
		})
		if !g.Allowed {
			return nil, rejected("%s", g.Reason)
		}

		scrapped, err := q.AddScrappedQty(ctx, db.AddScrappedQtyParams{
			TransNum:  row.TransNum,
			Qty:       int32(req.Qty),
			UpdatedAt: store.Wall(s.now().In(s.loc)),
		})
		if err != nil {
			return nil, errors.Wrap(err, "add scrapped quantity")
		}
		stage := jobs.Stage(row.Stage)
		if err := q.InsertScrapRecord(ctx, db.InsertScrapRecordParams{
			TransNum:   row.TransNum,
			Stage:      string(stage),
			Qty:        int32(req.Qty),
			Reason:     strings.TrimSpace(req.Reason),
			Actor:      req.Employee,
			RecordedAt: store.Wall(at),
		}); err != nil {
			return nil, errors.Wrap(err, "insert scrap record")
		}

		closing := scrapped >= row.QtyReleased
		status := jobs.Status(row.StatusID)
		if status == jobs.StatusStarted {
			stop := jobs.StatusPaused
			if closing {
				stop = jobs.StatusCompleted
			}
			if err := s.appendStatus(ctx, q, row.TransNum, stage, stop, at, req.Employee, req.Machine); err != nil {
				return nil, err
			}
			status = stop
		}
		el, err := s.reconcileStage(ctx, q, row.TransNum, stage, at)
		if err != nil {
			return nil, err
		}
		if closing {
			out, err := s.persist(ctx, q, row, jobs.StageClosed, jobs.StatusCompleted, el, at, req.Employee, req.Machine)
			if err != nil {
				return nil, err
			}
			out.Message = fmt.Sprintf("scrapped %d; transaction %d closed", req.Qty, row.TransNum)
			return out, nil
		}
		out, err := s.persist(ctx, q, row, stage, status, el, at, req.Employee, req.Machine)
		if err != nil {
			return nil, err
		}
		out.Message = fmt.Sprintf("scrapped %d", req.Qty)
		return out, nil
	})
}

func (s *transitionService) StartPool(ctx context.Context, req model.PoolActionRequest) (*PoolOutcome, error) {
	return s.withPool(ctx, "pool_start", "started", req, s.startRow)
}

func (s *transitionService) PausePool(ctx context.Context, req model.PoolActionRequest) (*PoolOutcome, error) {
	return s.withPool(ctx, "pool_pause", "paused", req, s.pauseRow)
}

func (s *transitionService) CompletePool(ctx context.Context, req model.PoolActionRequest) (*PoolOutcome, error) {
	return s.withPool(ctx, "pool_complete", "completed", req, s.completeRow)
}

type memberFunc func(ctx context.Context, q *db.Queries, row db.JobTransaction, at time.Time, actor, machine string) (*Outcome, error)

func (s *transitionService) withPool(ctx context.Context, action, verb string, req model.PoolActionRequest, fn memberFunc) (*PoolOutcome, error) {
	out, err := s.runPool(ctx, verb, req, fn)
	s.record(action, 0, req.Employee, err)
	return out, err
}

func (s *transitionService) runPool(ctx context.Context, verb string, req model.PoolActionRequest, fn memberFunc) (*PoolOutcome, error) {
	pool := strings.TrimSpace(req.Pool)
	if pool == "" {
		return nil, invalid("pool is required")
	}
	if strings.TrimSpace(req.Employee) == "" {
		return nil, invalid("employee is required")
	}
	at, err := s.eventTime(req.StartTime)
	if err != nil {
		return nil, err
	}

	release, err := s.lock(ctx, poolLockKey(pool))
	if err != nil {
		return nil, err
	}
	defer release()

	result := &PoolOutcome{Pool: pool}
	err = s.st.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		members, err := q.ListPoolMembersForUpdate(ctx, pool)
		if err != nil {
			return errors.Wrap(err, "load pool members")
		}
		if len(members) == 0 {
			return notFound("pool %s not found", pool)
		}
		for _, row := range members {
			o, err := fn(ctx, q, row, at, req.Employee, req.Machine)
			if errors.Is(err, ErrRejected) {
				result.Skipped = append(result.Skipped, Skipped{TransNum: row.TransNum, Reason: err.Error()})
				continue
			}
			if err != nil {
				return err
			}
			result.Applied = append(result.Applied, *o)
		}
		if len(result.Applied) == 0 {
			return rejected("no transaction in pool %s can be %s: %s", pool, verb, result.Skipped[0].Reason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Message = fmt.Sprintf("%d of %d transactions in pool %s %s", len(result.Applied), len(result.Applied)+len(result.Skipped), pool, verb)
	return result, nil
}

func (s *transitionService) startRow(ctx context.Context, q *db.Queries, row db.JobTransaction, at time.Time, actor, machine string) (*Outcome, error) {
	if strings.TrimSpace(machine) == "" {
		machine = row.Machine.String
	}
	gctx := transition.StartContext{
		StatusContext: statusContext(row),
		Machine:       machine,
		Employee:      actor,
	}

	if strings.TrimSpace(actor) != "" {
		emp, err := q.GetEmployee(ctx, strings.TrimSpace(actor))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, rejected("unknown employee %s", actor)
		case err != nil:
			return nil, errors.Wrap(err, "load employee")
		}
		gctx.EmployeeActive = emp.Active
	}

	prev, err := q.GetPreviousOperation(ctx, db.GetPreviousOperationParams{
		JobNum:   row.JobNum,
		SerialNo: row.SerialNo,
		OperNum:  row.OperNum,
	})
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, errors.Wrap(err, "load previous operation")
	default:
		gctx.PreviousOperation = int(prev.OperNum)
		gctx.PreviousOperationComplete = productionComplete(prev)
	}

	assigned, err := q.ListAssignments(ctx, db.ListAssignmentsParams{JobNum: row.JobNum, OperNum: row.OperNum})
	if err != nil {
		return nil, errors.Wrap(err, "load assignments")
	}
	gctx.AllowedMachines, gctx.AllowedEmployees = store.SplitAssignments(assigned)

	if g := transition.CanStart(gctx); !g.Allowed {
		return nil, rejected("%s", g.Reason)
	}
	out, err := s.apply(ctx, q, row, jobs.StatusStarted, at, actor, machine)
	if err != nil {
		return nil, err
	}
	out.Message = "job started"
	return out, nil
}

func (s *transitionService) pauseRow(ctx context.Context, q *db.Queries, row db.JobTransaction, at time.Time, actor, machine string) (*Outcome, error) {
	if g := transition.CanPause(statusContext(row)); !g.Allowed {
		return nil, rejected("%s", g.Reason)
	}
	out, err := s.apply(ctx, q, row, jobs.StatusPaused, at, actor, machine)
	if err != nil {
		return nil, err
	}
	out.Message = "job paused"
	return out, nil
}

func (s *transitionService) completeRow(ctx context.Context, q *db.Queries, row db.JobTransaction, at time.Time, actor, machine string) (*Outcome, error) {
	if g := transition.CanComplete(statusContext(row)); !g.Allowed {
		return nil, rejected("%s", g.Reason)
	}
	stage := jobs.Stage(row.Stage)
	if err := s.appendStatus(ctx, q, row.TransNum, stage, jobs.StatusCompleted, at, actor, machine); err != nil {
		return nil, err
	}
	return s.advance(ctx, q, row, stage, at, actor, machine)
}

// apply appends status to the current stage log and persists the
// reconciled result without changing stage.
func (s *transitionService) apply(ctx context.Context, q *db.Queries, row db.JobTransaction, status jobs.Status, at time.Time, actor, machine string) (*Outcome, error) {
	stage := jobs.Stage(row.Stage)
	if err := s.appendStatus(ctx, q, row.TransNum, stage, status, at, actor, machine); err != nil {
		return nil, err
	}
	el, err := s.reconcileStage(ctx, q, row.TransNum, stage, at)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, q, row, stage, status, el, at, actor, machine)
}

// advance moves a transaction whose current stage just completed to the
// next stage of the workflow.
func (s *transitionService) advance(ctx context.Context, q *db.Queries, row db.JobTransaction, stage jobs.Stage, at time.Time, actor, machine string) (*Outcome, error) {
	next := transition.NextStage(stage, s.wf)
	if next == jobs.StageClosed {
		el, err := s.reconcileStage(ctx, q, row.TransNum, stage, at)
		if err != nil {
			return nil, err
		}
		out, err := s.persist(ctx, q, row, jobs.StageClosed, jobs.StatusCompleted, el, at, actor, machine)
		if err != nil {
			return nil, err
		}
		out.Message = fmt.Sprintf("%s complete; transaction %d closed", stage, row.TransNum)
		return out, nil
	}
	out, err := s.enterStage(ctx, q, row, next, at, actor, machine)
	if err != nil {
		return nil, err
	}
	out.Message = fmt.Sprintf("%s complete; moved to %s", stage, next)
	return out, nil
}

// enterStage makes stage current with status NotStarted. Time already
// logged in that stage (from an earlier round) is kept.
func (s *transitionService) enterStage(ctx context.Context, q *db.Queries, row db.JobTransaction, stage jobs.Stage, at time.Time, actor, machine string) (*Outcome, error) {
	el, err := s.reconcileStage(ctx, q, row.TransNum, stage, at)
	if err != nil {
		return nil, err
	}
	el.Live = false
	el.RunningSince = time.Time{}
	return s.persist(ctx, q, row, stage, jobs.StatusNotStarted, el, at, actor, machine)
}

func (s *transitionService) appendStatus(ctx context.Context, q *db.Queries, transNum int64, stage jobs.Stage, status jobs.Status, at time.Time, actor, machine string) error {
	_, err := q.InsertStatusLog(ctx, db.InsertStatusLogParams{
		TransNum:   transNum,
		Stage:      string(stage),
		StatusID:   int16(status),
		StatusTime: store.Wall(at),
		Actor:      strings.TrimSpace(actor),
		Machine:    store.NullString(machine),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return rejected("event time %s precedes the last status change of transaction %d",
			model.FormatLocal(at, s.loc), transNum)
	}
	return errors.Wrap(err, "append status log")
}

func (s *transitionService) reconcileStage(ctx context.Context, q *db.Queries, transNum int64, stage jobs.Stage, now time.Time) (jobs.Elapsed, error) {
	rows, err := q.ListStatusLog(ctx, db.ListStatusLogParams{TransNum: transNum, Stage: string(stage)})
	if err != nil {
		return jobs.Elapsed{}, errors.Wrap(err, "load status log")
	}
	return jobs.Reconcile(store.LogEntries(rows, s.loc), now), nil
}

func (s *transitionService) persist(ctx context.Context, q *db.Queries, row db.JobTransaction, stage jobs.Stage, status jobs.Status, el jobs.Elapsed, at time.Time, actor, machine string) (*Outcome, error) {
	var runStart *time.Time
	if status == jobs.StatusStarted && el.Live {
		rs := el.RunningSince
		runStart = &rs
	}
	var closedAt *time.Time
	if stage == jobs.StageClosed {
		closedAt = &at
	}
	err := q.UpdateTransactionState(ctx, db.UpdateTransactionStateParams{
		TransNum:           row.TransNum,
		Stage:              string(stage),
		StatusID:           int16(status),
		AccumulatedSeconds: el.AccumulatedSeconds(),
		RunStart:           store.NullTime(runStart),
		Employee:           store.NullString(actor),
		Machine:            store.NullString(machine),
		ClosedAt:           store.NullTime(closedAt),
		UpdatedAt:          store.Wall(s.now().In(s.loc)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "update transaction")
	}
	return &Outcome{
		TransNum:    row.TransNum,
		Stage:       stage,
		Status:      status,
		Accumulated: el.Accumulated,
		RunStart:    runStart,
	}, nil
}

func (s *transitionService) withTransaction(ctx context.Context, action string, req model.ActionRequest, fn rowFunc) (*Outcome, error) {
	out, err := s.runTransaction(ctx, req, fn)
	s.record(action, req.TransNum, req.Employee, err)
	return out, err
}

func (s *transitionService) runTransaction(ctx context.Context, req model.ActionRequest, fn rowFunc) (*Outcome, error) {
	if req.TransNum <= 0 {
		return nil, invalid("transNum is required")
	}
	if strings.TrimSpace(req.Employee) == "" {
		return nil, invalid("employee is required")
	}
	release, err := s.lock(ctx, transactionLockKey(req.TransNum))
	if err != nil {
		return nil, err
	}
	defer release()

	var out *Outcome
	err = s.st.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		row, err := q.GetTransactionForUpdate(ctx, req.TransNum)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("transaction %d not found", req.TransNum)
		}
		if err != nil {
			return errors.Wrap(err, "load transaction")
		}
		if err := matchRequest(req, row); err != nil {
			return err
		}
		out, err = fn(ctx, q, row)
		return err
	})
	return out, err
}

// lock takes the per-key action lock. A Redis failure degrades to the
// row lock alone.
func (s *transitionService) lock(ctx context.Context, key string) (func(), error) {
	release, ok, err := s.locker.Acquire(ctx, key)
	if err != nil {
		s.logger.Warn("action lock unavailable", "key", key, "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, rejected("transaction busy, retry")
	}
	return release, nil
}

func (s *transitionService) record(action string, transNum int64, actor string, err error) {
	outcome := "success"
	switch {
	case err == nil:
		s.logger.Info("transition applied", "action", action, "trans_num", transNum, "actor", actor)
	case errors.Is(err, ErrRejected):
		outcome = "rejected"
		s.logger.Info("transition rejected", "action", action, "trans_num", transNum, "actor", actor, "reason", err.Error())
	case errors.Is(err, ErrInvalid):
		outcome = "invalid"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
		s.logger.Error("transition failed", "action", action, "trans_num", transNum, "actor", actor, "error", err)
	}
	metrics.RecordTransition(action, outcome)
}

// eventTime parses the client-captured local timestamp, defaulting to the
// server clock when the client did not send one.
func (s *transitionService) eventTime(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return s.now().In(s.loc), nil
	}
	t, err := model.ParseLocal(raw, s.loc)
	if err != nil {
		return time.Time{}, invalid("invalid startTime %q", raw)
	}
	return t, nil
}

// matchRequest checks the optional identity fields of a request against
// the locked row.
func matchRequest(req model.ActionRequest, row db.JobTransaction) error {
	if j := strings.TrimSpace(req.Job); j != "" && !strings.EqualFold(j, row.JobNum) {
		return invalid("transaction %d does not belong to job %s", row.TransNum, j)
	}
	if req.Operation > 0 && int32(req.Operation) != row.OperNum {
		return invalid("transaction %d is operation %d, not %d", row.TransNum, row.OperNum, req.Operation)
	}
	if strings.TrimSpace(req.Stage) != "" {
		stage, err := jobs.ParseStage(req.Stage)
		if err != nil {
			return invalid("invalid stage %q", req.Stage)
		}
		if string(stage) != row.Stage {
			return rejected("transaction %d is at %s stage, not %s", row.TransNum, row.Stage, stage)
		}
	}
	return nil
}

func statusContext(row db.JobTransaction) transition.StatusContext {
	return transition.StatusContext{
		TransNum: row.TransNum,
		Stage:    jobs.Stage(row.Stage),
		Status:   jobs.Status(row.StatusID),
	}
}

// productionComplete reports whether an operation has finished its
// production stage.
func productionComplete(row db.JobTransaction) bool {
	if jobs.Stage(row.Stage) != jobs.StageProduction {
		return true
	}
	return jobs.Status(row.StatusID) == jobs.StatusCompleted
}
