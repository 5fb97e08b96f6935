package go2fa

import "errors"

var (
	// ErrValidation reports malformed input: an empty user ID or account
	// label, or a code that is neither a TOTP code nor a backup code.
	ErrValidation = errors.New("validation error")
	// ErrNoPendingSetup is returned by ConfirmEnrollment when no unexpired
	// enrollment is in flight.
	ErrNoPendingSetup = errors.New("no pending 2fa setup")
	// ErrNotEnabled is returned by operations that need an active factor.
	ErrNotEnabled = errors.New("2fa not enabled")
	// ErrInvalidCode is returned for a well-formed code that matches neither
	// the TOTP window nor an unused backup code.
	ErrInvalidCode = errors.New("invalid code")

	// ErrEngineNotReady is returned when the engine was not built or has been closed.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable wraps profile store failures.
	ErrStoreUnavailable = errors.New("profile store unavailable")
	// ErrConflict is returned when concurrent writers kept winning the
	// compare-and-swap for the same user past the retry budget.
	ErrConflict = errors.New("concurrent profile update")
	// ErrProvisioningFailed is returned when secret or code generation fails.
	ErrProvisioningFailed = errors.New("provisioning failed")
)
