// Package backupcodes generates, canonicalizes and hashes single-use recovery
// codes. It holds no state; storage and consumption belong to the engine.
package backupcodes
