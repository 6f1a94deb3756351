package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfloor/internal/board"
	"shopfloor/internal/client"
	"shopfloor/internal/jobs"
	"shopfloor/internal/model"
)

func init() {
	color.NoColor = true
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--location", "UTC"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const transactionJSON = `{"transNum":1,"job":"J100","serialNo":"S1","operationNumber":10,"workCenter":"WC1",
	"machine":"","employee":"","stage":"production","status":null,"accumulatedSeconds":0,"startTime":null}`

func TestListPrintsRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "E1", r.URL.Query().Get("employee"))
		_, _ = w.Write([]byte(`{"data":[` + transactionJSON + `],"total":3}`))
	}))
	defer srv.Close()

	out, err := run(t, "", "list", "--server", srv.URL, "--for", "E1")
	require.NoError(t, err)
	assert.Contains(t, out, "J100")
	assert.Contains(t, out, "IDLE")
	assert.Contains(t, out, "00:00:00")
	assert.Contains(t, out, "showing 1 of 3")
}

func TestPauseReportsServerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.ActionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "E1", req.Employee)
		assert.Equal(t, "2024-03-01T08:01:35", req.StartTime)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success":false,"code":"REJECTED","message":"job is not started"}`))
	}))
	defer srv.Close()

	_, err := run(t, "", "pause", "7", "--server", srv.URL, "-e", "E1", "--at", "2024-03-01T08:01:35")
	require.Error(t, err)
	assert.Equal(t, "job is not started", err.Error())
}

func TestStartWalksWizardThenStarts(t *testing.T) {
	var started model.ActionRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/transactions/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(transactionJSON))
	})
	mux.HandleFunc("/api/assignments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"machines":["M1"],"employees":[]}`))
	})
	mux.HandleFunc("/api/StartJob", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&started))
		_, _ = w.Write([]byte(`{"success":true,"message":"job started"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	scans := strings.Join([]string{
		`{"qrType":"JOB","job":"J999"}`,
		`{"qrType":"JOB","job":"J100"}`,
		"",
		"qrType: OPERATION",
		"opernum: 10",
		"",
		`{"qrType":"MACHINE","machineNumber":"M1"}`,
	}, "\n")

	out, err := run(t, scans, "start", "1", "--server", srv.URL, "-e", "E1", "--self")
	require.NoError(t, err)
	assert.Contains(t, out, "Scanned job J999 does not match job J100")
	assert.Contains(t, out, "job started")
	assert.Equal(t, "J100", started.Job)
	assert.Equal(t, 10, started.Operation)
	assert.Equal(t, "M1", started.Machine)
	assert.Equal(t, "E1", started.Employee)
	assert.Equal(t, int64(1), started.TransNum)
}

func TestStartIncompleteWizardDoesNotStart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/transactions/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(transactionJSON))
	})
	mux.HandleFunc("/api/assignments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"machines":[],"employees":[]}`))
	})
	mux.HandleFunc("/api/StartJob", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("StartJob must not be called")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := run(t, `{"qrType":"JOB","job":"J100"}`, "start", "1", "--server", srv.URL, "-e", "E1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waiting for operation")
}

func TestElapsedReconcilesOffline(t *testing.T) {
	logJSON := `[
		{"statusId":"1","statusTime":"2024-03-01T08:00:00","actor":"E1"},
		{"statusId":"2","statusTime":"2024-03-01T08:01:35","actor":"E1"},
		{"statusId":1,"statusTime":"2024-03-01T09:00:00","actor":"E1"}
	]`
	out, err := run(t, logJSON, "elapsed", "--now", "2024-03-01T09:00:30")
	require.NoError(t, err)
	assert.Contains(t, out, "00:02:05 STARTED")
	assert.Contains(t, out, "running since 2024-03-01T09:00:00")
}

func TestReadLabels(t *testing.T) {
	labels, err := readLabels(strings.NewReader("{\"a\":1}\n{\"b\":2}\n\nqrType: JOB\njob: J1\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, "qrType: JOB\njob: J1"}, labels)
}

type staticLister struct{ txs []model.Transaction }

func (s staticLister) ListTransactions(context.Context, client.ListFilter) ([]model.Transaction, int64, error) {
	return s.txs, int64(len(s.txs)), nil
}

func TestRunWatchDrawsBoard(t *testing.T) {
	start := time.Now().Add(-125 * time.Second)
	txs := []model.Transaction{{
		Key:          model.TransactionKey{Job: "J100", Operation: 10},
		TransNum:     1,
		Status:       jobs.StatusStarted,
		RunningSince: &start,
	}}
	b := board.New(nil, board.Options{Interval: time.Millisecond, Location: time.UTC})
	defer b.Close()

	var out bytes.Buffer
	err := runWatch(context.Background(), &out, staticLister{txs}, b, client.ListFilter{}, time.Hour, time.Millisecond, 3)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "STARTED")
	assert.Contains(t, out.String(), "J100")
}
