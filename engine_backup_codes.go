package go2fa

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/go2fa/profile"
)

// RegenerateBackupCodes replaces the user's whole backup code set. Every
// earlier code, used or not, stops working in the same write that stores the
// new ones. The new codes are returned once.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) (*BackupCodesResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observeLatency(time.Now())

	if !validUserID(userID) {
		return nil, ErrValidation
	}

	var codes []string
	_, err := e.update(ctx, userID, func(p *profile.Profile, now time.Time) (bool, error) {
		codes = nil
		if !p.Enabled {
			return false, ErrNotEnabled
		}
		entries, plain, err := e.mintBackupCodes(p.UserID)
		if err != nil {
			return false, err
		}
		p.BackupCodes = entries
		codes = plain
		return true, nil
	})
	if err != nil {
		e.metricInc(MetricBackupCodesRegenerateFailed)
		e.emitAudit(ctx, auditEventBackupCodesFailed, false, userID, err, nil)
		return nil, err
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, userID, nil, func() map[string]string {
		return map[string]string{"backup_codes": strconv.Itoa(len(codes))}
	})
	return &BackupCodesResult{BackupCodes: codes}, nil
}

// ListBackupCodes returns every code with its used state, in issue order.
// Under the hashed storage policy Code is empty.
func (e *Engine) ListBackupCodes(ctx context.Context, userID string) ([]BackupCodeView, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !validUserID(userID) {
		return nil, ErrValidation
	}

	p, err := e.read(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.Enabled {
		return nil, ErrNotEnabled
	}

	out := make([]BackupCodeView, len(p.BackupCodes))
	for i, c := range p.BackupCodes {
		out[i] = BackupCodeView{Code: c.Code, Used: c.Used, UsedAt: c.UsedAt}
	}
	return out, nil
}
