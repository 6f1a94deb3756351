package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"

	"shopfloor/internal/db"
	"shopfloor/internal/jobs"
	"shopfloor/internal/model"
	"shopfloor/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// transactionsListHandler lists transactions. Operators only ever see
// rows assigned to them or unassigned; other roles may filter freely.
func transactionsListHandler(c *fiber.Ctx) error {
	st := storeFrom(c)

	filter := store.TransactionFilter{
		Employee: strings.TrimSpace(c.Query("employee")),
		Machine:  strings.TrimSpace(c.Query("machine")),
		Pool:     strings.TrimSpace(c.Query("pool")),
		Limit:    defaultListLimit,
	}
	if p, ok := principalFrom(c); ok && !p.SeesAll() {
		filter.Employee = p.Employee
	}
	filter.IncludeUnassigned = filter.Employee != ""

	if v := c.Query("status"); v != "" {
		s, err := jobs.ParseStatus(v)
		if err != nil {
			return badRequest(c, fmt.Sprintf("invalid status value %q", v))
		}
		filter.Status = &s
	}
	if v := c.Query("stage"); v != "" {
		s, err := jobs.ParseStage(v)
		if err != nil {
			return badRequest(c, fmt.Sprintf("invalid stage value %q", v))
		}
		filter.Stage = string(s)
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return badRequest(c, "invalid limit value")
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		filter.Limit = int32(n)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "invalid offset value")
		}
		filter.Offset = int32(n)
	}

	rows, total, err := st.ListTransactions(c.Context(), filter)
	if err != nil {
		return internalError(c, "TRANSACTION_LIST_FAILED", err)
	}
	return c.JSON(model.Page[model.TransactionRow]{
		Data:  transactionRows(rows, locationFrom(c), nowFrom(c)),
		Total: total,
	})
}

func parseTransNum(c *fiber.Ctx) (int64, error) {
	n, err := strconv.ParseInt(c.Params("transNum"), 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.Newf("invalid transaction number %q", c.Params("transNum"))
	}
	return n, nil
}

func loadTransaction(c *fiber.Ctx) (db.JobTransaction, bool, error) {
	transNum, err := parseTransNum(c)
	if err != nil {
		return db.JobTransaction{}, false, badRequest(c, err.Error())
	}
	row, err := storeFrom(c).GetTransaction(c.Context(), transNum)
	if errors.Is(err, store.ErrNotFound) {
		return db.JobTransaction{}, false, notFound(c, fmt.Sprintf("transaction %d not found", transNum))
	}
	if err != nil {
		return db.JobTransaction{}, false, internalError(c, "TRANSACTION_LOOKUP_FAILED", err)
	}
	return row, true, nil
}

func transactionGetHandler(c *fiber.Ctx) error {
	row, ok, err := loadTransaction(c)
	if !ok {
		return err
	}
	return c.JSON(transactionRow(row, locationFrom(c), nowFrom(c)))
}

// transactionLogHandler returns one stage's status log with its
// reconciliation. The stage defaults to the transaction's current stage;
// a closed transaction defaults to production.
func transactionLogHandler(c *fiber.Ctx) error {
	row, ok, err := loadTransaction(c)
	if !ok {
		return err
	}

	stage := jobs.Stage(row.Stage)
	if !stage.Open() {
		stage = jobs.StageProduction
	}
	if v := c.Query("stage"); v != "" {
		s, err := jobs.ParseStage(v)
		if err != nil || !s.Open() {
			return badRequest(c, fmt.Sprintf("invalid stage value %q", v))
		}
		stage = s
	}

	loc := locationFrom(c)
	logRows, err := storeFrom(c).StatusLog(c.Context(), row.TransNum, stage)
	if err != nil {
		return internalError(c, "STATUS_LOG_FAILED", err)
	}
	return c.JSON(logResponse(row.TransNum, stage, store.LogEntries(logRows, loc), loc, nowFrom(c)))
}

// transactionReleaseHandler creates a transaction for released work.
func transactionReleaseHandler(c *fiber.Ctx) error {
	var req model.ReleaseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	req.Job = strings.TrimSpace(req.Job)
	req.SerialNo = strings.TrimSpace(req.SerialNo)
	switch {
	case req.Job == "":
		return badRequest(c, "job is required")
	case req.Operation <= 0:
		return badRequest(c, "operation must be positive")
	case req.QtyReleased <= 0:
		return badRequest(c, "qtyReleased must be positive")
	}

	st := storeFrom(c)
	row, err := st.ReleaseTransaction(c.Context(), db.InsertTransactionParams{
		JobNum:      req.Job,
		SerialNo:    req.SerialNo,
		OperNum:     int32(req.Operation),
		WorkCenter:  strings.TrimSpace(req.WorkCenter),
		Item:        strings.TrimSpace(req.Item),
		QtyReleased: int32(req.QtyReleased),
		Employee:    store.NullString(req.Employee),
		Machine:     store.NullString(req.Machine),
		PoolNum:     store.NullString(req.Pool),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return c.Status(fiber.StatusConflict).JSON(model.ActionResponse{
			Success: false,
			Code:    "DUPLICATE",
			Message: fmt.Sprintf("job %s serial %s operation %d is already released", req.Job, req.SerialNo, req.Operation),
		})
	}
	if err != nil {
		return internalError(c, "RELEASE_FAILED", err)
	}

	recordAuditEvent(c, st, "transaction.release", row.TransNum, req)
	return c.Status(fiber.StatusCreated).JSON(ReleaseResponse{
		Success:     true,
		Message:     fmt.Sprintf("transaction %d released", row.TransNum),
		Transaction: transactionRow(row, locationFrom(c), nowFrom(c)),
	})
}

// poolGetHandler returns the members of a pool and the pool status
// derived from their combined status logs.
func poolGetHandler(c *fiber.Ctx) error {
	pool := strings.TrimSpace(c.Params("pool"))
	st := storeFrom(c)
	members, err := st.PoolMembers(c.Context(), pool)
	if err != nil {
		return internalError(c, "POOL_LOOKUP_FAILED", err)
	}
	if len(members) == 0 {
		return notFound(c, fmt.Sprintf("pool %s not found", pool))
	}

	loc := locationFrom(c)
	now := nowFrom(c)
	logs := make([][]jobs.LogEntry, 0, len(members))
	for _, m := range members {
		var rows []db.StatusLog
		if stage := jobs.Stage(m.Stage); stage.Open() {
			rows, err = st.StatusLog(c.Context(), m.TransNum, stage)
		} else {
			rows, err = st.ClosingLog(c.Context(), m.TransNum)
		}
		if err != nil {
			return internalError(c, "STATUS_LOG_FAILED", err)
		}
		logs = append(logs, store.LogEntries(rows, loc))
	}

	el := jobs.ReconcilePool(logs, now)
	return c.JSON(model.PoolResponse{
		Pool:               pool,
		Status:             jobs.PoolStatus(logs...),
		Live:               el.Live,
		AccumulatedSeconds: el.AccumulatedSeconds(),
		Elapsed:            jobs.FormatHMS(el.Seconds(now)),
		Members:            transactionRows(members, loc, now),
	})
}
