// Package go2fa implements TOTP two-factor authentication with single-use
// backup codes on top of a pluggable per-user profile store.
//
// An [Engine] is assembled with [New] and [Builder.Build]. Its methods are
// safe to call from multiple goroutines.
//
// # Lifecycle
//
// A user starts disabled. [Engine.BeginEnrollment] parks a fresh secret in a
// pending slot; [Engine.ConfirmEnrollment] promotes it to the active secret,
// enables 2FA and mints backup codes. [Engine.Disable] wipes all factor
// material after one last successful code.
//
// # Consistency
//
// Each mutating call is one read-modify-write of the user's profile,
// committed with a version compare-and-swap. A backup code submitted by two
// concurrent requests is accepted by exactly one of them, even across
// processes sharing a Redis or Postgres store.
//
// # What this package must NOT do
//
//   - Count failed attempts or lock accounts. The httpapi package layers an
//     attempt limiter on top; embedders must bring their own.
//   - Put secrets or backup codes in errors, audit events or metrics.
//   - Let a pending secret satisfy [Engine.Verify].
package go2fa
