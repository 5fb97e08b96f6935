package internaldefs

import (
	"github.com/MrEthical07/go2fa"
)

type CounterDef struct {
	ID   go2fa.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   go2fa.MetricID
	Name string
	Help string
}

const AuditDroppedName = "go2fa_audit_dropped_total"

const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

var CounterDefs = []CounterDef{
	{ID: go2fa.MetricEnrollmentStarted, Name: "go2fa_enrollment_started_total", Help: "Enrollments begun."},
	{ID: go2fa.MetricEnrollmentConfirmed, Name: "go2fa_enrollment_confirmed_total", Help: "Enrollments confirmed and enabled."},
	{ID: go2fa.MetricEnrollmentFailed, Name: "go2fa_enrollment_failed_total", Help: "Enrollment confirmations rejected."},
	{ID: go2fa.MetricPendingExpired, Name: "go2fa_pending_expired_total", Help: "Pending enrollments discarded after their TTL."},
	{ID: go2fa.MetricVerifyTOTPSuccess, Name: "go2fa_verify_totp_success_total", Help: "Verifications accepted by TOTP."},
	{ID: go2fa.MetricVerifyBackupCodeSuccess, Name: "go2fa_verify_backup_code_success_total", Help: "Verifications accepted by a backup code."},
	{ID: go2fa.MetricVerifyFailure, Name: "go2fa_verify_failure_total", Help: "Verifications rejected."},
	{ID: go2fa.MetricReplayDetected, Name: "go2fa_replay_detected_total", Help: "TOTP codes rejected as replays of an accepted step."},
	{ID: go2fa.MetricBackupCodesRegenerated, Name: "go2fa_backup_codes_regenerated_total", Help: "Backup code sets regenerated."},
	{ID: go2fa.MetricBackupCodesRegenerateFailed, Name: "go2fa_backup_codes_regenerate_failed_total", Help: "Backup code regenerations rejected."},
	{ID: go2fa.MetricDisableSuccess, Name: "go2fa_disable_success_total", Help: "Users who turned 2FA off."},
	{ID: go2fa.MetricDisableFailure, Name: "go2fa_disable_failure_total", Help: "Disable attempts rejected."},
	{ID: go2fa.MetricStoreConflict, Name: "go2fa_store_conflict_total", Help: "Profile writes retried after a version conflict."},
	{ID: go2fa.MetricStoreError, Name: "go2fa_store_error_total", Help: "Profile store failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: go2fa.MetricOperationLatency, Name: "go2fa_operation_latency_seconds", Help: "Latency of engine operations that reach the store."},
}

// HistogramBounds are the upper bounds in seconds of the engine's latency
// buckets, excluding +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// CumulativeBuckets turns the engine's per-bucket counts into the running
// totals both exposition formats expect. Missing buckets count as zero.
func CumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(out); i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
