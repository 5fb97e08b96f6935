package go2fa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/go2fa/profile"
)

// Verify checks a second-factor code for an enabled user. A TOTP code is
// matched against the active secret; anything shaped like a backup code is
// redeemed from the unused set and can never be accepted again.
//
// A pending enrollment secret is never consulted here.
func (e *Engine) Verify(ctx context.Context, userID, code string) (*VerifyResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observeLatency(time.Now())

	code = strings.TrimSpace(code)
	if !validUserID(userID) || !e.acceptsCode(code) {
		return nil, ErrValidation
	}

	var outcome verifyOutcome
	_, err := e.update(ctx, userID, func(p *profile.Profile, now time.Time) (bool, error) {
		outcome = verifyOutcome{}
		if !p.Enabled {
			return false, ErrNotEnabled
		}
		if err := e.runVerifiers(p, code, now, &outcome); err != nil {
			return false, err
		}
		p.LastUsedAt = now
		return true, nil
	})
	if outcome.replay {
		e.metricInc(MetricReplayDetected)
	}
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventVerifyFailed, false, userID, err, nil)
		return nil, err
	}

	e.recordFactorSuccess(ctx, userID, outcome.factor)
	e.emitAudit(ctx, auditEventVerifySuccess, true, userID, nil, func() map[string]string {
		return map[string]string{"factor": string(outcome.factor)}
	})
	return &VerifyResult{
		Success:        true,
		UsedBackupCode: outcome.factor == FactorBackupCode,
		Factor:         outcome.factor,
	}, nil
}

// Disable turns 2FA off after proving possession of the factor with a TOTP
// or backup code. The active secret, any pending secret and every backup
// code are removed in the same write; a wrong code changes nothing.
func (e *Engine) Disable(ctx context.Context, userID, code string) (*DisableResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observeLatency(time.Now())

	code = strings.TrimSpace(code)
	if !validUserID(userID) || !e.acceptsCode(code) {
		return nil, ErrValidation
	}

	var outcome verifyOutcome
	_, err := e.update(ctx, userID, func(p *profile.Profile, now time.Time) (bool, error) {
		outcome = verifyOutcome{}
		if !p.Enabled {
			return false, ErrNotEnabled
		}
		if err := e.runVerifiers(p, code, now, &outcome); err != nil {
			return false, err
		}
		p.Wipe()
		p.LastUsedAt = now
		return true, nil
	})
	if outcome.replay {
		e.metricInc(MetricReplayDetected)
	}
	if err != nil {
		e.metricInc(MetricDisableFailure)
		e.emitAudit(ctx, auditEventDisableFailed, false, userID, err, nil)
		return nil, err
	}

	if outcome.factor == FactorBackupCode {
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, userID, nil, nil)
	}
	e.metricInc(MetricDisableSuccess)
	e.emitAudit(ctx, auditEventDisabled, true, userID, nil, func() map[string]string {
		return map[string]string{"factor": string(outcome.factor)}
	})
	return &DisableResult{Success: true}, nil
}

type verifyOutcome struct {
	factor Factor
	replay bool
}

func (e *Engine) acceptsCode(code string) bool {
	for _, v := range e.verifiers {
		if v.Accepts(code) {
			return true
		}
	}
	return false
}

// runVerifiers stops at the first strategy that accepts the code. A replayed
// TOTP step counts as a non-match.
func (e *Engine) runVerifiers(p *profile.Profile, code string, now time.Time, out *verifyOutcome) error {
	for _, v := range e.verifiers {
		if !v.Accepts(code) {
			continue
		}
		ok, err := v.Verify(p, code, now)
		if errors.Is(err, errReplay) {
			out.replay = true
			continue
		}
		if err != nil {
			return fmt.Errorf("go2fa: %s verifier: %w", v.Factor(), err)
		}
		if ok {
			out.factor = v.Factor()
			return nil
		}
	}
	return ErrInvalidCode
}

func (e *Engine) recordFactorSuccess(ctx context.Context, userID string, factor Factor) {
	switch factor {
	case FactorTOTP:
		e.metricInc(MetricVerifyTOTPSuccess)
	case FactorBackupCode:
		e.metricInc(MetricVerifyBackupCodeSuccess)
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, userID, nil, nil)
	}
}
