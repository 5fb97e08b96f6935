package go2fa

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/go2fa/internal/backupcodes"
	"github.com/MrEthical07/go2fa/profile"
)

// Verifier is one factor strategy. Verify and Disable consult the engine's
// verifiers in order and stop at the first one that returns true.
//
// Verify runs on a private copy of the profile inside the engine's per-user
// atomic update. A verifier records its side effects (marking a code used,
// advancing a counter) directly on p; the engine persists them only if the
// whole update commits.
type Verifier interface {
	Factor() Factor
	// Accepts reports whether code has the shape this strategy understands.
	Accepts(code string) bool
	Verify(p *profile.Profile, code string, now time.Time) (bool, error)
}

// errReplay marks a TOTP code that matched a step already consumed.
var errReplay = errors.New("totp step already used")

// TOTPVerifier checks codes against the active secret within the skew window.
type TOTPVerifier struct {
	totp             *totpManager
	replayProtection bool
}

// NewTOTPVerifier builds the TOTP strategy from cfg.
func NewTOTPVerifier(cfg TOTPConfig) *TOTPVerifier {
	return &TOTPVerifier{
		totp:             newTOTPManager(cfg),
		replayProtection: cfg.EnforceReplayProtection,
	}
}

func (v *TOTPVerifier) Factor() Factor { return FactorTOTP }

func (v *TOTPVerifier) Accepts(code string) bool {
	return v.totp.wellFormed(strings.TrimSpace(code))
}

func (v *TOTPVerifier) Verify(p *profile.Profile, code string, now time.Time) (bool, error) {
	if p.ActiveSecret == "" {
		return false, nil
	}
	ok, counter, err := v.totp.VerifyCode(p.ActiveSecret, code, now)
	if err != nil || !ok {
		return false, err
	}
	if v.replayProtection && counter <= p.LastTOTPCounter {
		return false, errReplay
	}
	if counter > p.LastTOTPCounter {
		p.LastTOTPCounter = counter
	}
	return true, nil
}

// BackupCodeVerifier redeems one unused backup code. Entries stored as
// digests and entries stored in plaintext are both honored, so switching the
// storage policy does not strand codes already issued.
type BackupCodeVerifier struct {
	length int
}

func NewBackupCodeVerifier(cfg BackupCodeConfig) *BackupCodeVerifier {
	return &BackupCodeVerifier{length: cfg.Length}
}

func (v *BackupCodeVerifier) Factor() Factor { return FactorBackupCode }

func (v *BackupCodeVerifier) Accepts(code string) bool {
	return backupcodes.WellFormed(backupcodes.Canonicalize(code), v.length)
}

func (v *BackupCodeVerifier) Verify(p *profile.Profile, code string, now time.Time) (bool, error) {
	canonical := backupcodes.Canonicalize(code)
	if !backupcodes.WellFormed(canonical, v.length) {
		return false, nil
	}

	var digest string
	for i := range p.BackupCodes {
		entry := &p.BackupCodes[i]
		if entry.Used {
			continue
		}

		var match bool
		if entry.Hash != "" {
			if digest == "" {
				digest = backupcodes.Hash(p.UserID, canonical)
			}
			match = backupcodes.Equal(entry.Hash, digest)
		} else {
			match = backupcodes.Equal(entry.Code, canonical)
		}
		if match {
			entry.Used = true
			entry.UsedAt = now
			return true, nil
		}
	}
	return false, nil
}
