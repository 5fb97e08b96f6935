package go2fa

import (
	"context"
)

// Status reports the user's 2FA posture. It needs no second factor and never
// reveals secrets or codes. A user who never enrolled is reported disabled.
func (e *Engine) Status(ctx context.Context, userID string) (*Status, error) {
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

	return &Status{
		Enabled:              p.Enabled,
		BackupCodesGenerated: len(p.BackupCodes) > 0,
		BackupCodesRemaining: p.UnusedBackupCodes(),
		LastUsedAt:           p.LastUsedAt,
		DeviceCount:          p.DeviceCount,
		State:                p.StateAt(e.now(), e.config.Enrollment.PendingTTL),
		Score:                SecurityScore(*p),
	}, nil
}

// SecurityScore loads the user's profile and scores it.
func (e *Engine) SecurityScore(ctx context.Context, userID string) (int, error) {
	status, err := e.Status(ctx, userID)
	if err != nil {
		return 0, err
	}
	return status.Score, nil
}
