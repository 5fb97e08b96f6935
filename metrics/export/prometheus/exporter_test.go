package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/go2fa"
	"github.com/MrEthical07/go2fa/profile"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot go2fa.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() go2fa.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                   { return f.dropped }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{snapshot: go2fa.MetricsSnapshot{
		Counters:   map[go2fa.MetricID]uint64{},
		Histograms: map[go2fa.MetricID][]uint64{},
	}})

	if n := testutil.CollectAndCount(exp); n != 0 {
		t.Fatalf("expected no series for disabled metrics, got %d", n)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: go2fa.MetricsSnapshot{
			Counters: map[go2fa.MetricID]uint64{
				go2fa.MetricVerifyBackupCodeSuccess: 7,
			},
			Histograms: map[go2fa.MetricID][]uint64{
				go2fa.MetricOperationLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	expected := `
# HELP go2fa_verify_backup_code_success_total Verifications accepted by a backup code.
# TYPE go2fa_verify_backup_code_success_total counter
go2fa_verify_backup_code_success_total 7
# HELP go2fa_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE go2fa_audit_dropped_total counter
go2fa_audit_dropped_total 2
`
	if err := testutil.CollectAndCompare(exp, strings.NewReader(expected),
		"go2fa_verify_backup_code_success_total", "go2fa_audit_dropped_total"); err != nil {
		t.Fatal(err)
	}

	expectedHist := `
# HELP go2fa_operation_latency_seconds Latency of engine operations that reach the store.
# TYPE go2fa_operation_latency_seconds histogram
go2fa_operation_latency_seconds_bucket{le="0.005"} 1
go2fa_operation_latency_seconds_bucket{le="0.01"} 3
go2fa_operation_latency_seconds_bucket{le="0.025"} 6
go2fa_operation_latency_seconds_bucket{le="0.05"} 10
go2fa_operation_latency_seconds_bucket{le="0.1"} 15
go2fa_operation_latency_seconds_bucket{le="0.25"} 21
go2fa_operation_latency_seconds_bucket{le="0.5"} 28
go2fa_operation_latency_seconds_bucket{le="+Inf"} 36
go2fa_operation_latency_seconds_sum 0
go2fa_operation_latency_seconds_count 36
`
	if err := testutil.CollectAndCompare(exp, strings.NewReader(expectedHist), "go2fa_operation_latency_seconds"); err != nil {
		t.Fatal(err)
	}
}

func TestCollectFromEngine(t *testing.T) {
	engine, err := go2fa.New().
		WithMetricsEnabled(true).
		WithStore(profile.NewMemoryStore()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Verify(t.Context(), "user-1", "123456"); err == nil {
		t.Fatal("expected verify to fail for a user without 2FA")
	}
	expected := `
# HELP go2fa_verify_failure_total Verifications rejected.
# TYPE go2fa_verify_failure_total counter
go2fa_verify_failure_total 1
`
	if err := testutil.CollectAndCompare(NewExporter(engine), strings.NewReader(expected), "go2fa_verify_failure_total"); err != nil {
		t.Fatal(err)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	exp := NewExporter(fakeSource{snapshot: go2fa.MetricsSnapshot{
		Counters:   map[go2fa.MetricID]uint64{go2fa.MetricEnrollmentStarted: 1},
		Histograms: map[go2fa.MetricID][]uint64{},
	}})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go2fa_enrollment_started_total 1") {
		t.Fatalf("missing counter in body:\n%s", rec.Body.String())
	}
}
