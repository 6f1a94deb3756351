package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	// Record a single request and ensure it appears in the export.
	RecordRequest("GET", "/api/transactions", 200, 42)

	out := Export()
	if !strings.Contains(out, "shopfloor_http_requests_total{method=\"GET\",path=\"/api/transactions\",status=\"200\"}") {
		t.Fatalf("expected HTTP request metric for GET /api/transactions in export, got:\n%s", out)
	}
	if !strings.Contains(out, "shopfloor_http_request_duration_ms_sum") || !strings.Contains(out, "shopfloor_http_request_duration_ms_count") {
		t.Fatalf("expected latency metrics headers in export, got:\n%s", out)
	}
}

func TestRecordTransitionMetrics(t *testing.T) {
	RecordTransition("start", "success")
	RecordTransition("start", "rejected")
	RecordTransition("start", "rejected")

	out := Export()
	if !strings.Contains(out, "shopfloor_transitions_total{action=\"start\",outcome=\"success\"} ") {
		t.Fatalf("expected start/success transition metric, got:\n%s", out)
	}
	if !strings.Contains(out, "shopfloor_transitions_total{action=\"start\",outcome=\"rejected\"} 2") {
		t.Fatalf("expected two rejected starts, got:\n%s", out)
	}
}

func TestRecordScanCheckMetrics(t *testing.T) {
	RecordScanCheck("machine", true)
	RecordScanCheck("machine", false)

	out := Export()
	if !strings.Contains(out, "shopfloor_scan_checks_total{step=\"machine\",valid=\"true\"}") {
		t.Fatalf("expected valid machine scan metric, got:\n%s", out)
	}
	if !strings.Contains(out, "shopfloor_scan_checks_total{step=\"machine\",valid=\"false\"}") {
		t.Fatalf("expected invalid machine scan metric, got:\n%s", out)
	}
}

func TestSetLiveTransactionsResetsMissingStages(t *testing.T) {
	SetLiveTransactions(map[string]int64{"production": 3, "qc": 1})
	SetLiveTransactions(map[string]int64{"production": 2})

	out := Export()
	if !strings.Contains(out, "shopfloor_live_transactions{stage=\"production\"} 2") {
		t.Fatalf("expected production gauge of 2, got:\n%s", out)
	}
	if !strings.Contains(out, "shopfloor_live_transactions{stage=\"qc\"} 0") {
		t.Fatalf("expected qc gauge reset to 0, got:\n%s", out)
	}
}

func TestRecordRetentionIgnoresZero(t *testing.T) {
	RecordRetention("audit_events", 0)
	RecordRetention("transactions", 4)

	out := Export()
	if strings.Contains(out, "shopfloor_retention_deleted_total{kind=\"audit_events\"}") {
		t.Fatalf("did not expect audit_events retention series, got:\n%s", out)
	}
	if !strings.Contains(out, "shopfloor_retention_deleted_total{kind=\"transactions\"}") {
		t.Fatalf("expected transactions retention series, got:\n%s", out)
	}
}
