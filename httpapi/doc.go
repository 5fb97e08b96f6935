// Package httpapi exposes the 2FA engine over JSON/HTTP.
//
// Every /v1/2fa route requires a bearer identity token; the user the call
// acts on is the token subject, never a request field. Routes that accept a
// code pass through the attempt limiter when one is configured, which is the
// brute-force protection the engine itself deliberately lacks.
package httpapi
