package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the shop-floor service.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	transitionsTotal = make(map[transitionKey]int64)
	scanChecksTotal  = make(map[scanKey]int64)
	liveTransactions = make(map[string]int64)

	retentionDeleted = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type transitionKey struct {
	Action  string
	Outcome string
}

type scanKey struct {
	Step  string
	Valid string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordTransition counts a status-changing request by action (start,
// pause, complete, qc, verify, scrap, pool_start...) and outcome
// (success, rejected, invalid, error).
func RecordTransition(action, outcome string) {
	mu.Lock()
	defer mu.Unlock()
	transitionsTotal[transitionKey{Action: action, Outcome: outcome}]++
}

// RecordScanCheck counts one wizard step validation.
func RecordScanCheck(step string, valid bool) {
	mu.Lock()
	defer mu.Unlock()

	v := "false"
	if valid {
		v = "true"
	}
	scanChecksTotal[scanKey{Step: step, Valid: v}]++
}

// SetLiveTransactions replaces the live (Started) transaction gauge.
// Stages missing from counts are reported as zero.
func SetLiveTransactions(counts map[string]int64) {
	mu.Lock()
	defer mu.Unlock()
	for k := range liveTransactions {
		liveTransactions[k] = 0
	}
	for k, v := range counts {
		liveTransactions[k] = v
	}
}

// RecordRetention increments the counter of rows deleted by TTL for a
// given kind (audit_events, transactions).
func RecordRetention(kind string, deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionDeleted[kind] += deleted
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP shopfloor_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE shopfloor_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "shopfloor_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP shopfloor_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE shopfloor_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP shopfloor_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE shopfloor_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "shopfloor_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "shopfloor_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP shopfloor_transitions_total Status transition requests by action and outcome\n")
	b.WriteString("# TYPE shopfloor_transitions_total counter\n")

	var trKeys []transitionKey
	for k := range transitionsTotal {
		trKeys = append(trKeys, k)
	}
	sort.Slice(trKeys, func(i, j int) bool {
		if trKeys[i].Action != trKeys[j].Action {
			return trKeys[i].Action < trKeys[j].Action
		}
		return trKeys[i].Outcome < trKeys[j].Outcome
	})
	for _, k := range trKeys {
		fmt.Fprintf(&b, "shopfloor_transitions_total{action=\"%s\",outcome=\"%s\"} %d\n",
			k.Action, k.Outcome, transitionsTotal[k])
	}

	b.WriteString("# HELP shopfloor_scan_checks_total Scan wizard step validations\n")
	b.WriteString("# TYPE shopfloor_scan_checks_total counter\n")

	var scKeys []scanKey
	for k := range scanChecksTotal {
		scKeys = append(scKeys, k)
	}
	sort.Slice(scKeys, func(i, j int) bool {
		if scKeys[i].Step != scKeys[j].Step {
			return scKeys[i].Step < scKeys[j].Step
		}
		return scKeys[i].Valid < scKeys[j].Valid
	})
	for _, k := range scKeys {
		fmt.Fprintf(&b, "shopfloor_scan_checks_total{step=\"%s\",valid=\"%s\"} %d\n",
			k.Step, k.Valid, scanChecksTotal[k])
	}

	b.WriteString("# HELP shopfloor_live_transactions Transactions currently running by stage\n")
	b.WriteString("# TYPE shopfloor_live_transactions gauge\n")

	var stages []string
	for s := range liveTransactions {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	for _, s := range stages {
		fmt.Fprintf(&b, "shopfloor_live_transactions{stage=\"%s\"} %d\n", s, liveTransactions[s])
	}

	// Retention metrics
	b.WriteString("# HELP shopfloor_retention_deleted_total Total rows deleted by TTL\n")
	b.WriteString("# TYPE shopfloor_retention_deleted_total counter\n")

	var kinds []string
	for k := range retentionDeleted {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(&b, "shopfloor_retention_deleted_total{kind=\"%s\"} %d\n", k, retentionDeleted[k])
	}

	return b.String()
}

// Sink exposes the package-level recorders as a value for components
// that take their metrics as an interface.
type Sink struct{}

func (Sink) SetLiveTransactions(counts map[string]int64) { SetLiveTransactions(counts) }

func (Sink) RecordRetention(kind string, deleted int64) { RecordRetention(kind, deleted) }
