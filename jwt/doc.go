// Package jwt signs and checks the two bearer tokens the HTTP surface deals
// with: identity tokens minted by the primary login layer, which name the
// user the 2FA call acts on, and short-lived assertions issued after a
// successful second-factor check.
package jwt
