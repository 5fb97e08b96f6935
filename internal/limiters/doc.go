// Package limiters provides Redis-backed attempt counters for callers of the
// 2FA engine. The engine itself never throttles; brute-force protection for
// code submission is layered on by the transport.
//
// [AttemptLimiter] is nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import go2fa.
//   - Make policy decisions beyond counting; callers decide consequences.
package limiters
