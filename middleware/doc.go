// Package middleware holds the net/http adapters the 2FA HTTP surface is
// built from.
//
// # Guards
//
//   - [Guard] requires a valid bearer identity token and puts the caller's
//     [Identity] in the request context.
//   - [RequireSecondFactor] additionally requires that the token's AMR claim
//     names a second factor, for step-up protected routes.
//   - [RequireAssertion] runs behind [Guard] and checks the mfa_token sent in
//     [AssertionHeader] instead of the bearer token's AMR.
//
// # Request plumbing
//
//   - [RequestID] assigns or propagates X-Request-ID.
//   - [AccessLog] writes one slog record per request.
//
// # What this package must NOT do
//
//   - Run any 2FA logic. Code checks belong to the engine.
//   - Log Authorization headers or request bodies.
package middleware
