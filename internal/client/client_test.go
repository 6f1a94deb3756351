package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfloor/internal/jobs"
	"shopfloor/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithEmployee("E1"), WithLocation(time.UTC))
	require.NoError(t, err)
	return c
}

func TestListTransactionsNormalizesRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transactions", r.URL.Path)
		assert.Equal(t, "E1", r.Header.Get("X-Employee"))
		assert.Equal(t, "2", r.URL.Query().Get("status"))
		// Loose row: odd casing, numeric strings and a numeric status.
		_, _ = w.Write([]byte(`{"data":[
			{"TransNum":"7","Job":" J100 ","serialNo":"S1","operNum":"10","workCenter":"WC1",
			 "status":2,"stage":"production","accumulatedSeconds":95,"startTime":null,"employee":"E1"},
			{"transNum":8,"job":"J100","serialNo":"S1","operationNumber":20,"status":"1",
			 "stage":"production","startTime":"2024-03-01T08:00:00"}
		],"total":2}`))
	})

	paused := jobs.StatusPaused
	rows, total, err := c.ListTransactions(context.Background(), ListFilter{Status: &paused})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(7), rows[0].TransNum)
	assert.Equal(t, "J100", rows[0].Key.Job)
	assert.Equal(t, 10, rows[0].Key.Operation)
	assert.Equal(t, jobs.StatusPaused, rows[0].Status)
	assert.Equal(t, 95*time.Second, rows[0].Accumulated)
	assert.False(t, rows[0].Live())

	assert.Equal(t, jobs.StatusStarted, rows[1].Status)
	require.True(t, rows[1].Live())
	assert.True(t, rows[1].RunningSince.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)))
}

func TestActionClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		class  error
		msg    string
	}{
		{"rejected", http.StatusConflict, `{"success":false,"code":"REJECTED","message":"previous operation not complete"}`, ErrRejected, "previous operation not complete"},
		{"invalid", http.StatusBadRequest, `{"success":false,"message":"transNum is required"}`, ErrInvalid, "transNum is required"},
		{"not found", http.StatusNotFound, `{"success":false,"message":"transaction 9 not found"}`, ErrInvalid, "transaction 9 not found"},
		{"internal", http.StatusInternalServerError, `oops`, ErrTransport, "server returned 500 Internal Server Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.Start(context.Background(), model.ActionRequest{TransNum: 9})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.class))
			assert.Equal(t, tc.msg, err.Error())
		})
	}
}

func TestActionSendsBodyAndReturnsMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/PauseJob", r.URL.Path)
		var req model.ActionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(3), req.TransNum)
		assert.Equal(t, "2024-03-01T08:01:35", req.StartTime)
		_, _ = w.Write([]byte(`{"success":true,"message":"job paused"}`))
	})

	msg, err := c.Pause(context.Background(), model.ActionRequest{TransNum: 3, StartTime: "2024-03-01T08:01:35"})
	require.NoError(t, err)
	assert.Equal(t, "job paused", msg)
}

func TestUnsuccessfulEnvelopeIsRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"job already started"}`))
	})
	_, err := c.Complete(context.Background(), model.ActionRequest{TransNum: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Equal(t, "job already started", err.Error())
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)
	_, _, err = c.ListTransactions(context.Background(), ListFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestGetLogNormalizesEntries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transactions/1/log", r.URL.Path)
		assert.Equal(t, "qc", r.URL.Query().Get("stage"))
		_, _ = w.Write([]byte(`{"transNum":1,"stage":"qc","entries":[
			{"statusId":"1","statusTime":"2024-03-01T08:00:00","actor":"Q1","stage":"qc"},
			{"statusId":"3","statusTime":"2024-03-01T08:10:00","actor":"Q1","stage":"qc"}
		]}`))
	})

	log, err := c.GetLog(context.Background(), 1, jobs.StageQC)
	require.NoError(t, err)
	require.Len(t, log.Entries, 2)
	el := jobs.Reconcile(log.Entries, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, jobs.StatusCompleted, el.State)
	assert.Equal(t, 10*time.Minute, el.Accumulated)
}

func TestPoolActionSkipped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"message":"1 of 2 transactions in pool P1 started",
			"applied":[1],"skipped":[{"transNum":2,"reason":"job already started"}]}`))
	})
	res, err := c.StartPool(context.Background(), model.PoolActionRequest{Pool: "P1"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, res.Applied)
	assert.Equal(t, "job already started", res.Skipped[2])
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("not a url")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}
