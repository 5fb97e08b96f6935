package go2fa

import (
	"io"
	"time"

	internalaudit "github.com/MrEthical07/go2fa/internal/audit"
	"github.com/MrEthical07/go2fa/profile"
)

// Enrollment is returned by BeginEnrollment. ManualEntryCode is the same
// secret that appears in ProvisioningURI, for users who type it in.
type Enrollment struct {
	ProvisioningURI string
	ManualEntryCode string
	ExpiresAt       time.Time
}

// ConfirmResult carries the initial backup codes. This is the only time the
// fresh codes are disclosed.
type ConfirmResult struct {
	Success     bool
	BackupCodes []string
}

// Factor names which verification strategy accepted a code.
type Factor string

const (
	FactorTOTP       Factor = "totp"
	FactorBackupCode Factor = "backup_code"
)

type VerifyResult struct {
	Success        bool
	UsedBackupCode bool
	Factor         Factor
}

type DisableResult struct {
	Success bool
}

// Status is the read-only view of a user's 2FA posture.
type Status struct {
	Enabled              bool
	BackupCodesGenerated bool
	BackupCodesRemaining int
	LastUsedAt           time.Time
	DeviceCount          int
	State                profile.State
	Score                int
}

// BackupCodeView is one entry of ListBackupCodes. Code is empty when the
// engine stores hashed codes.
type BackupCodeView struct {
	Code   string
	Used   bool
	UsedAt time.Time
}

type BackupCodesResult struct {
	BackupCodes []string
}

// AuditEvent is one security event delivered to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's async dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
