// Package otel publishes engine counters as OpenTelemetry observable
// instruments on a caller-supplied Meter. Counters are grouped by 2FA
// concern, one instrument each for enrollments, verifications, replays,
// backup code regenerations, disables and store faults, with the outcome
// and factor carried as attributes. One callback reads
// [go2fa.Engine.MetricsSnapshot] per collection.
package otel
