package profile

import (
	"errors"
	"time"
)

// State is the lifecycle state of a security profile.
type State uint8

const (
	// StateDisabled is the initial state: no active factor.
	StateDisabled State = iota
	// StatePendingSetup means an unconfirmed enrollment is in flight.
	StatePendingSetup
	// StateEnabled means an active TOTP secret protects the account.
	StateEnabled
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StatePendingSetup:
		return "pending_setup"
	case StateEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// BackupCode is one single-use recovery credential.
//
// Code holds the plaintext when the plaintext policy is active; Hash holds
// the hex SHA-256 digest when the hashed policy is active. Exactly one of the
// two is set.
type BackupCode struct {
	Code   string
	Hash   string
	Used   bool
	UsedAt time.Time
}

// Profile is the per-user 2FA record. Version is the optimistic concurrency
// token; zero means the record has never been written.
type Profile struct {
	UserID string

	ActiveSecret     string
	PendingSecret    string
	PendingCreatedAt time.Time

	Enabled     bool
	BackupCodes []BackupCode

	DeviceCount     int
	LastUsedAt      time.Time
	LastTOTPCounter int64

	Version uint64
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	if p.BackupCodes != nil {
		out.BackupCodes = make([]BackupCode, len(p.BackupCodes))
		copy(out.BackupCodes, p.BackupCodes)
	}
	return &out
}

// HasPending reports whether a pending secret exists and has not expired.
// A ttl of zero disables expiry.
func (p *Profile) HasPending(now time.Time, ttl time.Duration) bool {
	if p == nil || p.PendingSecret == "" {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return now.Before(p.PendingCreatedAt.Add(ttl))
}

// PendingExpired reports whether a pending secret exists but is past ttl.
func (p *Profile) PendingExpired(now time.Time, ttl time.Duration) bool {
	return p != nil && p.PendingSecret != "" && !p.HasPending(now, ttl)
}

// StateAt derives the lifecycle state at now.
func (p *Profile) StateAt(now time.Time, ttl time.Duration) State {
	switch {
	case p == nil:
		return StateDisabled
	case p.Enabled:
		return StateEnabled
	case p.HasPending(now, ttl):
		return StatePendingSetup
	default:
		return StateDisabled
	}
}

// ClearPending drops the pending enrollment slot.
func (p *Profile) ClearPending() {
	p.PendingSecret = ""
	p.PendingCreatedAt = time.Time{}
}

// Wipe clears every piece of factor material in one step.
func (p *Profile) Wipe() {
	p.ActiveSecret = ""
	p.ClearPending()
	p.Enabled = false
	p.BackupCodes = nil
	p.DeviceCount = 0
	p.LastTOTPCounter = 0
}

// UnusedBackupCodes counts entries that can still be redeemed.
func (p *Profile) UnusedBackupCodes() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, c := range p.BackupCodes {
		if !c.Used {
			n++
		}
	}
	return n
}

var (
	errEnabledWithoutSecret = errors.New("profile: enabled without active secret")
	errSecretWhileDisabled  = errors.New("profile: active secret present while disabled")
	errBackupCount          = errors.New("profile: backup code count does not match enabled state")
	errDuplicateBackupCode  = errors.New("profile: duplicate backup code")
)

// Validate checks the structural invariants tying the active secret, the
// enabled flag and the backup code set together. backupCount is the number
// of codes an enabled profile must hold; zero accepts any non-empty set, so
// records minted under an older Count setting stay valid.
func (p *Profile) Validate(backupCount int) error {
	if p.Enabled && p.ActiveSecret == "" {
		return errEnabledWithoutSecret
	}
	if !p.Enabled && p.ActiveSecret != "" {
		return errSecretWhileDisabled
	}
	if p.Enabled && (len(p.BackupCodes) == 0 || (backupCount > 0 && len(p.BackupCodes) != backupCount)) {
		return errBackupCount
	}
	if !p.Enabled && len(p.BackupCodes) != 0 {
		return errBackupCount
	}

	seen := make(map[string]struct{}, len(p.BackupCodes))
	for _, c := range p.BackupCodes {
		key := c.Code
		if key == "" {
			key = c.Hash
		}
		if _, ok := seen[key]; ok {
			return errDuplicateBackupCode
		}
		seen[key] = struct{}{}
	}
	return nil
}
