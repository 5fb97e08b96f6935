// Package audit dispatches 2FA security events asynchronously.
//
//   - [Sink] receives events (channel, JSON writer, no-op).
//   - [Dispatcher] is a buffered relay with drop-if-full or block semantics,
//     fanning each event out to every configured sink.
//
// The engine decides which events to emit; this package only moves them.
// It must not import go2fa.
package audit
