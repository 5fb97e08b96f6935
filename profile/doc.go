// Package profile holds the per-user security profile model and its storage
// backends: an in-memory store, a Redis store and a Postgres store, plus a
// decorator that seals secret material at rest.
//
// # Binary encoding
//
// Durable stores persist a profile as a compact binary record (format v1–v2).
// Decoding accepts every earlier version; new versions only append fields.
//
// # Concurrency
//
// Every [Store] implements CompareAndSwap on [Profile.Version]. Callers read,
// mutate a clone, bump Version and swap; a false result means another writer
// got there first and the caller must re-read.
//
// # What this package must NOT do
//
//   - Import go2fa (no upward imports).
//   - Decide lifecycle transitions or verify codes.
package profile
