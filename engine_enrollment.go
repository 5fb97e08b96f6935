package go2fa

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/go2fa/internal/backupcodes"
	"github.com/MrEthical07/go2fa/profile"
)

// BeginEnrollment draws a fresh TOTP secret and parks it in the user's
// pending slot, replacing any earlier pending secret. An active secret, if
// any, keeps working until the new one is confirmed.
//
// accountLabel is shown by authenticator apps next to the issuer, usually
// the user's email. It must not contain ':'.
func (e *Engine) BeginEnrollment(ctx context.Context, userID, accountLabel string) (*Enrollment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observeLatency(time.Now())

	label := strings.TrimSpace(accountLabel)
	if !validUserID(userID) || label == "" || strings.Contains(label, ":") {
		return nil, ErrValidation
	}

	secret, uri, err := e.totp.NewSecret(label)
	if err != nil {
		e.metricInc(MetricEnrollmentFailed)
		e.emitAudit(ctx, auditEventEnrollmentFailed, false, userID, ErrProvisioningFailed, nil)
		return nil, ErrProvisioningFailed
	}

	var (
		expiredPrior bool
		createdAt    time.Time
	)
	_, err = e.update(ctx, userID, func(p *profile.Profile, now time.Time) (bool, error) {
		expiredPrior = p.PendingExpired(now, e.config.Enrollment.PendingTTL)
		p.PendingSecret = secret
		p.PendingCreatedAt = now
		createdAt = now
		return true, nil
	})
	if err != nil {
		e.metricInc(MetricEnrollmentFailed)
		e.emitAudit(ctx, auditEventEnrollmentFailed, false, userID, err, nil)
		return nil, err
	}

	if expiredPrior {
		e.metricInc(MetricPendingExpired)
		e.emitAudit(ctx, auditEventPendingExpired, true, userID, nil, nil)
	}
	e.metricInc(MetricEnrollmentStarted)
	e.emitAudit(ctx, auditEventEnrollmentStarted, true, userID, nil, nil)

	out := &Enrollment{
		ProvisioningURI: uri,
		ManualEntryCode: secret,
	}
	if ttl := e.config.Enrollment.PendingTTL; ttl > 0 {
		out.ExpiresAt = createdAt.Add(ttl)
	}
	return out, nil
}

// ConfirmEnrollment proves possession of the pending secret. On success the
// pending secret becomes the active one, 2FA is enabled and a fresh set of
// backup codes is minted and returned. Those codes are never returned again
// by this call.
//
// A wrong code leaves the pending secret in place for another attempt. An
// expired pending secret is discarded and reported as ErrNoPendingSetup.
func (e *Engine) ConfirmEnrollment(ctx context.Context, userID, code string) (*ConfirmResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observeLatency(time.Now())

	code = strings.TrimSpace(code)
	if !validUserID(userID) || !e.totp.wellFormed(code) {
		return nil, ErrValidation
	}

	var (
		codes   []string
		expired bool
	)
	_, err := e.update(ctx, userID, func(p *profile.Profile, now time.Time) (bool, error) {
		codes = nil
		expired = false

		if p.PendingSecret == "" {
			return false, ErrNoPendingSetup
		}
		if p.PendingExpired(now, e.config.Enrollment.PendingTTL) {
			expired = true
			p.ClearPending()
			return true, ErrNoPendingSetup
		}

		ok, counter, err := e.totp.VerifyCode(p.PendingSecret, code, now)
		if err != nil {
			return false, ErrProvisioningFailed
		}
		if !ok {
			return false, ErrInvalidCode
		}

		entries, plain, err := e.mintBackupCodes(p.UserID)
		if err != nil {
			return false, err
		}

		p.ActiveSecret = p.PendingSecret
		p.ClearPending()
		p.Enabled = true
		p.DeviceCount = 1
		p.LastUsedAt = now
		p.LastTOTPCounter = counter
		p.BackupCodes = entries
		codes = plain
		return true, nil
	})

	if expired && errors.Is(err, ErrNoPendingSetup) {
		e.metricInc(MetricPendingExpired)
		e.emitAudit(ctx, auditEventPendingExpired, true, userID, nil, nil)
	}
	if err != nil {
		e.metricInc(MetricEnrollmentFailed)
		e.emitAudit(ctx, auditEventEnrollmentFailed, false, userID, err, nil)
		return nil, err
	}

	e.metricInc(MetricEnrollmentConfirmed)
	e.emitAudit(ctx, auditEventEnrollmentConfirmed, true, userID, nil, func() map[string]string {
		return map[string]string{"backup_codes": strconv.Itoa(len(codes))}
	})
	return &ConfirmResult{Success: true, BackupCodes: codes}, nil
}

// mintBackupCodes draws a full batch and returns the stored entries along
// with the plaintext codes.
func (e *Engine) mintBackupCodes(userID string) ([]profile.BackupCode, []string, error) {
	cfg := e.config.BackupCodes
	raw, err := backupcodes.Batch(cfg.Count, cfg.Length, e.randomIndex)
	if err != nil {
		return nil, nil, ErrProvisioningFailed
	}

	entries := make([]profile.BackupCode, len(raw))
	display := make([]string, len(raw))
	for i, c := range raw {
		if cfg.StoreHashed {
			entries[i] = profile.BackupCode{Hash: backupcodes.Hash(userID, c)}
		} else {
			entries[i] = profile.BackupCode{Code: c}
		}
		display[i] = c
	}
	return entries, display, nil
}
