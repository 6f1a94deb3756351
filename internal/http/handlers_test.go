package http

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfloor/internal/config"
	"shopfloor/internal/jobs"
	"shopfloor/internal/model"
	"shopfloor/internal/services"
	"shopfloor/internal/store"
)

var (
	t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	transactionColumns = []string{
		"trans_num", "job_num", "serial_no", "oper_num", "work_center", "item", "qty_released", "qty_scrapped",
		"employee", "machine", "pool_num", "stage", "status_id", "accumulated_seconds", "run_start",
		"created_at", "updated_at", "closed_at",
	}
	statusLogColumns = []string{"id", "trans_num", "stage", "status_id", "status_time", "actor", "machine", "created_at"}
	assignColumns    = []string{"job_num", "oper_num", "kind", "code"}
)

type timeArg struct{ want time.Time }

func (a timeArg) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && t.Equal(a.want)
}

func txValues(status int16, accumulated int64, runStart any) []driver.Value {
	return []driver.Value{
		int64(1), "J100", "S1", int32(10), "WC1", "ITEM-1", int32(10), int32(0),
		nil, "M1", nil, "production", status, accumulated, runStart,
		t0, t0, nil,
	}
}

func logValues(id int64, status int16, at time.Time) []driver.Value {
	return []driver.Value{id, int64(1), "production", status, at, "E1", "M1", at}
}

// fakeTransitions returns a canned outcome or error for every call.
type fakeTransitions struct {
	err  error
	out  *services.Outcome
	pool *services.PoolOutcome
	last model.ActionRequest
}

func (f *fakeTransitions) result(req model.ActionRequest) (*services.Outcome, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func (f *fakeTransitions) Start(_ context.Context, r model.ActionRequest) (*services.Outcome, error) {
	return f.result(r)
}
func (f *fakeTransitions) Pause(_ context.Context, r model.ActionRequest) (*services.Outcome, error) {
	return f.result(r)
}
func (f *fakeTransitions) Complete(_ context.Context, r model.ActionRequest) (*services.Outcome, error) {
	return f.result(r)
}
func (f *fakeTransitions) QC(_ context.Context, r model.QCRequest) (*services.Outcome, error) {
	return f.result(r.ActionRequest)
}
func (f *fakeTransitions) Verify(_ context.Context, r model.ActionRequest) (*services.Outcome, error) {
	return f.result(r)
}
func (f *fakeTransitions) Scrap(_ context.Context, r model.ScrapRequest) (*services.Outcome, error) {
	return f.result(r.ActionRequest)
}
func (f *fakeTransitions) pooled(r model.PoolActionRequest) (*services.PoolOutcome, error) {
	f.last = model.ActionRequest{Employee: r.Employee}
	if f.err != nil {
		return nil, f.err
	}
	return f.pool, nil
}
func (f *fakeTransitions) StartPool(_ context.Context, r model.PoolActionRequest) (*services.PoolOutcome, error) {
	return f.pooled(r)
}
func (f *fakeTransitions) PausePool(_ context.Context, r model.PoolActionRequest) (*services.PoolOutcome, error) {
	return f.pooled(r)
}
func (f *fakeTransitions) CompletePool(_ context.Context, r model.PoolActionRequest) (*services.PoolOutcome, error) {
	return f.pooled(r)
}

type fiberApp struct{ app *fiber.App }

func (a *fiberApp) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func newTestApp(st *store.Store, svc services.TransitionService) *fiberApp {
	return &fiberApp{newApp(deps{
		cfg:         &config.Config{},
		st:          st,
		transitions: svc,
		scan:        services.NewScanService(st),
		loc:         time.UTC,
		now:         func() time.Time { return t0.Add(2 * time.Minute) },
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})}
}

func postJSON(path string, body any, employee string) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if employee != "" {
		req.Header.Set(EmployeeHeader, employee)
	}
	return req
}

func decodeAction(t *testing.T, resp *http.Response) model.ActionResponse {
	t.Helper()
	var body model.ActionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestActionErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
		msg  string
	}{
		{"rejected", errors.Mark(errors.New("job already started"), services.ErrRejected), http.StatusConflict, "REJECTED", "job already started"},
		{"invalid", errors.Mark(errors.New("transNum is required"), services.ErrInvalid), http.StatusBadRequest, "BAD_REQUEST", "transNum is required"},
		{"not found", errors.Mark(errors.New("transaction 9 not found"), services.ErrNotFound), http.StatusNotFound, "NOT_FOUND", "transaction 9 not found"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR", "connection reset"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(nil, &fakeTransitions{err: tc.err})
			resp := app.do(t, postJSON("/api/StartJob", model.ActionRequest{TransNum: 9, Employee: "E1"}, ""))
			assert.Equal(t, tc.want, resp.StatusCode)
			body := decodeAction(t, resp)
			assert.False(t, body.Success)
			assert.Equal(t, tc.code, body.Code)
			assert.Equal(t, tc.msg, body.Message)
		})
	}
}

func TestActionInvalidBody(t *testing.T) {
	app := newTestApp(nil, &fakeTransitions{})
	req := httptest.NewRequest(http.MethodPost, "/api/PauseJob", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp := app.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid JSON body", decodeAction(t, resp).Message)
}

func TestOperatorMayOnlyActForThemselves(t *testing.T) {
	st, mock := newMockStore(t)
	expectEmployee(mock, "E1", "operator", true)
	svc := &fakeTransitions{out: &services.Outcome{TransNum: 1, Message: "job started"}}
	app := newTestApp(st, svc)

	resp := app.do(t, postJSON("/api/StartJob", model.ActionRequest{TransNum: 1, Employee: "E2"}, "E1"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, svc.last.Employee)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActionDefaultsEmployeeToPrincipal(t *testing.T) {
	st, mock := newMockStore(t)
	expectEmployee(mock, "S1", "supervisor", true)
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(0, 1))
	svc := &fakeTransitions{out: &services.Outcome{TransNum: 1, Message: "job paused"}}
	app := newTestApp(st, svc)

	resp := app.do(t, postJSON("/api/PauseJob", model.ActionRequest{TransNum: 1}, "S1"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeAction(t, resp)
	assert.True(t, body.Success)
	assert.Equal(t, "job paused", body.Message)
	assert.Equal(t, "S1", svc.last.Employee)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQCRequiresRole(t *testing.T) {
	st, mock := newMockStore(t)
	expectEmployee(mock, "E1", "operator", true)
	app := newTestApp(st, &fakeTransitions{})

	resp := app.do(t, postJSON("/api/QCJob", model.QCRequest{Result: "pass"}, "E1"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolActionResponse(t *testing.T) {
	svc := &fakeTransitions{pool: &services.PoolOutcome{
		Pool:    "P1",
		Applied: []services.Outcome{{TransNum: 1}, {TransNum: 3}},
		Skipped: []services.Skipped{{TransNum: 2, Reason: "job already started"}},
		Message: "2 of 3 transactions in pool P1 started",
	}}
	app := newTestApp(nil, svc)

	resp := app.do(t, postJSON("/api/StartPool", model.PoolActionRequest{Pool: "P1", Employee: "E1"}, ""))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body PoolActionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, []int64{1, 3}, body.Applied)
	assert.Equal(t, []PoolSkippedMember{{TransNum: 2, Reason: "job already started"}}, body.Skipped)
}

func TestTransactionsListQueryValidation(t *testing.T) {
	st, _ := newMockStore(t)
	app := newTestApp(st, &fakeTransitions{})

	for _, q := range []string{"status=7", "stage=paint", "limit=0", "offset=-1"} {
		resp := app.do(t, httptest.NewRequest(http.MethodGet, "/api/transactions?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestTransactionGetNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("FROM job_transactions WHERE trans_num").
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)
	app := newTestApp(st, &fakeTransitions{})

	resp := app.do(t, httptest.NewRequest(http.MethodGet, "/api/transactions/42", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "transaction 42 not found", decodeAction(t, resp).Message)

	resp = app.do(t, httptest.NewRequest(http.MethodGet, "/api/transactions/abc", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestOperatorListStartPauseFlow drives the full path an operator kiosk
// takes: list the operator's work, start it, pause it 95 seconds later.
func TestOperatorListStartPauseFlow(t *testing.T) {
	st, mock := newMockStore(t)
	svc := services.NewTransitionService(st, services.TransitionOptions{
		Location: time.UTC,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return t0.Add(2 * time.Minute) },
	})
	app := newTestApp(st, svc)
	t1 := t0.Add(95 * time.Second)

	// List.
	expectEmployee(mock, "E1", "operator", true)
	mock.ExpectQuery("FROM job_transactions WHERE").
		WithArgs(sql.NullString{String: "E1", Valid: true}, true, sql.NullString{}, sql.NullInt16{}, sql.NullString{}, sql.NullString{}, int32(50), int32(0)).
		WillReturnRows(sqlmock.NewRows(transactionColumns).AddRow(txValues(0, 0, nil)...))
	mock.ExpectQuery("SELECT count").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	req := httptest.NewRequest(http.MethodGet, "/api/transactions?employee=E2", nil)
	req.Header.Set(EmployeeHeader, "E1")
	resp := app.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Data  []map[string]any `json:"data"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, int64(1), page.Total)
	assert.EqualValues(t, 10, page.Data[0]["operationNumber"])
	assert.Nil(t, page.Data[0]["status"])
	assert.Equal(t, "00:00:00", page.Data[0]["elapsed"])

	// Start.
	expectEmployee(mock, "E1", "operator", true)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(transactionColumns).AddRow(txValues(0, 0, nil)...))
	expectEmployee(mock, "E1", "operator", true)
	mock.ExpectQuery("oper_num < ").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM assignments").
		WithArgs("J100", int32(10)).
		WillReturnRows(sqlmock.NewRows(assignColumns))
	mock.ExpectQuery("INSERT INTO status_log").
		WithArgs(int64(1), "production", int16(jobs.StatusStarted), timeArg{t0}, "E1", "M1").
		WillReturnRows(sqlmock.NewRows(statusLogColumns).AddRow(logValues(1, 1, t0)...))
	mock.ExpectQuery("FROM status_log WHERE").
		WillReturnRows(sqlmock.NewRows(statusLogColumns).AddRow(logValues(1, 1, t0)...))
	mock.ExpectExec("UPDATE job_transactions SET stage").
		WithArgs(int64(1), "production", int16(1), int64(0), timeArg{t0}, "E1", "M1", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(0, 1))

	action := model.ActionRequest{
		Job:       "J100",
		SerialNo:  "S1",
		Operation: 10,
		Machine:   "M1",
		TransNum:  1,
		StartTime: "2024-03-01T08:00:00",
	}
	resp = app.do(t, postJSON("/api/StartJob", action, "E1"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeAction(t, resp)
	assert.True(t, body.Success)
	assert.Equal(t, "job started", body.Message)

	// Pause.
	expectEmployee(mock, "E1", "operator", true)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(transactionColumns).AddRow(txValues(1, 0, t0)...))
	mock.ExpectQuery("INSERT INTO status_log").
		WithArgs(int64(1), "production", int16(jobs.StatusPaused), timeArg{t1}, "E1", "M1").
		WillReturnRows(sqlmock.NewRows(statusLogColumns).AddRow(logValues(2, 2, t1)...))
	mock.ExpectQuery("FROM status_log WHERE").
		WillReturnRows(sqlmock.NewRows(statusLogColumns).
			AddRow(logValues(1, 1, t0)...).
			AddRow(logValues(2, 2, t1)...))
	mock.ExpectExec("UPDATE job_transactions SET stage").
		WithArgs(int64(1), "production", int16(2), int64(95), nil, "E1", "M1", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(0, 1))

	action.StartTime = "2024-03-01T08:01:35"
	resp = app.do(t, postJSON("/api/PauseJob", action, "E1"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "job paused", decodeAction(t, resp).Message)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionLogReconciles(t *testing.T) {
	st, mock := newMockStore(t)
	t1 := t0.Add(95 * time.Second)
	mock.ExpectQuery("FROM job_transactions WHERE trans_num").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(transactionColumns).AddRow(txValues(2, 95, nil)...))
	mock.ExpectQuery("FROM status_log WHERE").
		WillReturnRows(sqlmock.NewRows(statusLogColumns).
			AddRow(logValues(1, 1, t0)...).
			AddRow(logValues(2, 2, t1)...))
	app := newTestApp(st, &fakeTransitions{})

	resp := app.do(t, httptest.NewRequest(http.MethodGet, "/api/transactions/1/log", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body model.LogResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "production", body.Stage)
	assert.Equal(t, jobs.StatusPaused, body.State)
	assert.False(t, body.Live)
	assert.Equal(t, int64(95), body.AccumulatedSeconds)
	assert.Equal(t, "00:01:35", body.Elapsed)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "2024-03-01T08:00:00", body.Entries[0].StatusTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func poolMemberValues(transNum int64, stage string, status int16, accumulated int64) []driver.Value {
	return []driver.Value{
		transNum, "J100", "S1", int32(10 * transNum), "WC1", "ITEM-1", int32(10), int32(0),
		"E1", "M1", "P1", stage, status, accumulated, nil,
		t0, t0, nil,
	}
}

func poolLogValues(id, transNum int64, stage string, status int16, at time.Time) []driver.Value {
	return []driver.Value{id, transNum, stage, status, at, "E1", "M1", at}
}

func TestPoolStatusIncludesClosedMembers(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("FROM job_transactions WHERE pool_num").
		WithArgs("P1").
		WillReturnRows(sqlmock.NewRows(transactionColumns).
			AddRow(poolMemberValues(1, "production", 2, 60)...).
			AddRow(poolMemberValues(2, "closed", 3, 90)...))
	mock.ExpectQuery("FROM status_log WHERE").
		WithArgs(int64(1), "production").
		WillReturnRows(sqlmock.NewRows(statusLogColumns).
			AddRow(poolLogValues(1, 1, "production", 1, t0)...).
			AddRow(poolLogValues(2, 1, "production", 2, t0.Add(60*time.Second))...))
	mock.ExpectQuery("FROM status_log WHERE").
		WithArgs(int64(2), "verify").
		WillReturnRows(sqlmock.NewRows(statusLogColumns))
	mock.ExpectQuery("FROM status_log WHERE").
		WithArgs(int64(2), "qc").
		WillReturnRows(sqlmock.NewRows(statusLogColumns))
	mock.ExpectQuery("FROM status_log WHERE").
		WithArgs(int64(2), "production").
		WillReturnRows(sqlmock.NewRows(statusLogColumns).
			AddRow(poolLogValues(3, 2, "production", 1, t0.Add(70*time.Second))...).
			AddRow(poolLogValues(4, 2, "production", 3, t0.Add(100*time.Second))...))
	app := newTestApp(st, &fakeTransitions{})

	resp := app.do(t, httptest.NewRequest(http.MethodGet, "/api/pools/P1", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body model.PoolResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "P1", body.Pool)
	assert.Equal(t, jobs.StatusCompleted, body.Status)
	assert.False(t, body.Live)
	assert.Equal(t, int64(90), body.AccumulatedSeconds)
	assert.Equal(t, "00:01:30", body.Elapsed)
	assert.Len(t, body.Members, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolOfOnlyClosedMembersIsCompleted(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("FROM job_transactions WHERE pool_num").
		WithArgs("P1").
		WillReturnRows(sqlmock.NewRows(transactionColumns).
			AddRow(poolMemberValues(1, "closed", 3, 600)...))
	mock.ExpectQuery("FROM status_log WHERE").
		WithArgs(int64(1), "verify").
		WillReturnRows(sqlmock.NewRows(statusLogColumns).
			AddRow(poolLogValues(1, 1, "verify", 1, t0)...).
			AddRow(poolLogValues(2, 1, "verify", 3, t0.Add(600*time.Second))...))
	app := newTestApp(st, &fakeTransitions{})

	resp := app.do(t, httptest.NewRequest(http.MethodGet, "/api/pools/P1", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body model.PoolResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, jobs.StatusCompleted, body.Status)
	assert.Equal(t, "00:10:00", body.Elapsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
