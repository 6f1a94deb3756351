package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"shopfloor/internal/jobs"
)

// TransactionKey identifies one unit of tracked work.
type TransactionKey struct {
	Job        string
	SerialNo   string
	Operation  int
	WorkCenter string
}

// Transaction is the canonical in-process record of a job transaction.
// Wire rows are converted into it once, at the edge.
type Transaction struct {
	Key          TransactionKey
	TransNum     int64
	Item         string
	QtyReleased  int
	QtyScrapped  int
	Employee     string
	Machine      string
	Pool         string
	Stage        jobs.Stage
	Status       jobs.Status
	Accumulated  time.Duration
	RunningSince *time.Time
}

// Live reports whether the transaction has an open interval.
func (t Transaction) Live() bool {
	return t.Status == jobs.StatusStarted && t.RunningSince != nil
}

// Elapsed projects the transaction into a reconciliation result so that
// list rows and full status logs are displayed the same way.
func (t Transaction) Elapsed() jobs.Elapsed {
	e := jobs.Elapsed{Accumulated: t.Accumulated, State: t.Status}
	if t.Live() {
		e.Live = true
		e.RunningSince = *t.RunningSince
	}
	return e
}

// Normalize converts a wire row into a Transaction, resolving the stage
// and the local-time open interval in loc.
func (r TransactionRow) Normalize(loc *time.Location) (Transaction, error) {
	stage, err := jobs.ParseStage(r.Stage)
	if err != nil {
		return Transaction{}, err
	}
	t := Transaction{
		Key: TransactionKey{
			Job:        strings.TrimSpace(r.Job),
			SerialNo:   strings.TrimSpace(r.SerialNo),
			Operation:  r.OperationNumber,
			WorkCenter: strings.TrimSpace(r.WorkCenter),
		},
		TransNum:    r.TransNum,
		Item:        r.Item,
		QtyReleased: r.QtyReleased,
		QtyScrapped: r.QtyScrapped,
		Employee:    strings.TrimSpace(r.Employee),
		Machine:     strings.TrimSpace(r.Machine),
		Stage:       stage,
		Status:      r.Status,
		Accumulated: time.Duration(r.AccumulatedSeconds) * time.Second,
	}
	if r.Pool != nil {
		t.Pool = strings.TrimSpace(*r.Pool)
	}
	if r.StartTime != nil && strings.TrimSpace(*r.StartTime) != "" {
		start, err := ParseLocal(*r.StartTime, loc)
		if err != nil {
			return Transaction{}, errors.Wrapf(err, "transaction %d start time", r.TransNum)
		}
		t.RunningSince = &start
	}
	return t, nil
}

// Normalize converts a wire log entry into a jobs.LogEntry.
func (r LogEntryRow) Normalize(loc *time.Location) (jobs.LogEntry, error) {
	ts, err := ParseLocal(r.StatusTime, loc)
	if err != nil {
		return jobs.LogEntry{}, err
	}
	stage, err := jobs.ParseStage(r.Stage)
	if err != nil {
		return jobs.LogEntry{}, err
	}
	return jobs.LogEntry{
		StatusID:   r.StatusID,
		StatusTime: ts,
		Actor:      r.Actor,
		Machine:    r.Machine,
		Stage:      stage,
	}, nil
}

var transactionRowAliases = map[string][]string{
	"transNum":           {"transnum", "trans_num", "transnumber"},
	"job":                {"job", "jobnum", "jobnumber", "job_num"},
	"serialNo":           {"serialno", "serial_no", "serialnumber", "serial"},
	"operationNumber":    {"operationnumber", "opernum", "oper_num", "operno", "operation"},
	"workCenter":         {"workcenter", "work_center", "wc"},
	"item":               {"item", "itemcode", "item_code"},
	"qtyReleased":        {"qtyreleased", "qty_released", "releasedqty"},
	"qtyScrapped":        {"qtyscrapped", "qty_scrapped", "scrappedqty"},
	"employee":           {"employee", "empnum", "emp_num", "employeecode"},
	"machine":            {"machine", "machinenumber", "machinenum", "machine_num"},
	"pool":               {"pool", "poolnum", "poolnumber", "pool_num"},
	"stage":              {"stage"},
	"status":             {"status", "statusid", "status_id"},
	"accumulatedSeconds": {"accumulatedseconds", "accumulated_seconds", "accumulated"},
	"startTime":          {"starttime", "start_time", "runningsince"},
	"elapsed":            {"elapsed"},
}

// UnmarshalJSON decodes a transaction row leniently: keys are matched
// case-insensitively against known aliases and numeric fields may arrive
// as strings.
func (r *TransactionRow) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		fields[strings.ToLower(k)] = v
	}
	pick := func(name string) json.RawMessage {
		for _, alias := range transactionRowAliases[name] {
			if v, ok := fields[alias]; ok {
				return v
			}
		}
		return nil
	}

	var out TransactionRow
	var err error
	if out.TransNum, err = flexInt(pick("transNum")); err != nil {
		return errors.Wrap(err, "transNum")
	}
	out.Job = flexString(pick("job"))
	out.SerialNo = flexString(pick("serialNo"))
	op, err := flexInt(pick("operationNumber"))
	if err != nil {
		return errors.Wrap(err, "operationNumber")
	}
	out.OperationNumber = int(op)
	out.WorkCenter = flexString(pick("workCenter"))
	out.Item = flexString(pick("item"))
	rel, err := flexInt(pick("qtyReleased"))
	if err != nil {
		return errors.Wrap(err, "qtyReleased")
	}
	out.QtyReleased = int(rel)
	scr, err := flexInt(pick("qtyScrapped"))
	if err != nil {
		return errors.Wrap(err, "qtyScrapped")
	}
	out.QtyScrapped = int(scr)
	out.Employee = flexString(pick("employee"))
	out.Machine = flexString(pick("machine"))
	if v := pick("pool"); !isNull(v) {
		s := flexString(v)
		out.Pool = &s
	}
	out.Stage = flexString(pick("stage"))
	if v := pick("status"); v != nil {
		if err := out.Status.UnmarshalJSON(v); err != nil {
			return errors.Wrap(err, "status")
		}
	}
	if out.AccumulatedSeconds, err = flexInt(pick("accumulatedSeconds")); err != nil {
		return errors.Wrap(err, "accumulatedSeconds")
	}
	if v := pick("startTime"); !isNull(v) {
		s := flexString(v)
		out.StartTime = &s
	}
	out.Elapsed = flexString(pick("elapsed"))

	*r = out
	return nil
}

func isNull(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// flexString accepts a JSON string or number; anything else is empty.
func flexString(v json.RawMessage) string {
	if isNull(v) {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

// flexInt accepts a JSON number or a numeric string; null and "" are 0.
func flexInt(v json.RawMessage) (int64, error) {
	if isNull(v) {
		return 0, nil
	}
	s := strings.TrimSpace(flexString(v))
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Newf("not a number: %q", s)
	}
	return int64(f), nil
}
