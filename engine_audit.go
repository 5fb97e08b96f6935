package go2fa

import (
	"context"
	"errors"
)

const (
	auditEventEnrollmentStarted    = "2fa_enrollment_started"
	auditEventEnrollmentConfirmed  = "2fa_enrollment_confirmed"
	auditEventEnrollmentFailed     = "2fa_enrollment_failed"
	auditEventPendingExpired       = "2fa_pending_expired"
	auditEventVerifySuccess        = "2fa_verify_success"
	auditEventVerifyFailed         = "2fa_verify_failed"
	auditEventBackupCodeUsed       = "2fa_backup_code_used"
	auditEventBackupCodesGenerated = "2fa_backup_codes_regenerated"
	auditEventBackupCodesFailed    = "2fa_backup_codes_regenerate_failed"
	auditEventDisabled             = "2fa_disabled"
	auditEventDisableFailed        = "2fa_disable_failed"
)

// AuditErrorCode is the stable, secret-free error label carried by audit
// events and HTTP error bodies.
type AuditErrorCode string

const (
	AuditErrValidation     AuditErrorCode = "validation"
	AuditErrNoPendingSetup AuditErrorCode = "no_pending_setup"
	AuditErrNotEnabled     AuditErrorCode = "not_enabled"
	AuditErrInvalidCode    AuditErrorCode = "invalid_code"
	AuditErrConflict       AuditErrorCode = "conflict"
	AuditErrUnavailable    AuditErrorCode = "backend_unavailable"
	AuditErrNotReady       AuditErrorCode = "engine_not_ready"
	AuditErrInternal       AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		RequestID: requestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := ErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// ErrorCode maps an engine error to its stable label. It returns "" for nil.
func ErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return AuditErrValidation
	case errors.Is(err, ErrNoPendingSetup):
		return AuditErrNoPendingSetup
	case errors.Is(err, ErrNotEnabled):
		return AuditErrNotEnabled
	case errors.Is(err, ErrInvalidCode):
		return AuditErrInvalidCode
	case errors.Is(err, ErrConflict):
		return AuditErrConflict
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return AuditErrUnavailable
	case errors.Is(err, ErrEngineNotReady):
		return AuditErrNotReady
	default:
		return AuditErrInternal
	}
}
