package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/MrEthical07/go2fa"
	"github.com/MrEthical07/go2fa/internal/limiters"
	"github.com/MrEthical07/go2fa/internal/logattr"
	"github.com/MrEthical07/go2fa/middleware"
	"github.com/skip2/go-qrcode"
)

const maxBodyBytes = 4 << 10

type enrollmentRequest struct {
	AccountLabel string `json:"account_label"`
}

type enrollmentResponse struct {
	ProvisioningURI string     `json:"provisioning_uri"`
	ManualEntryCode string     `json:"manual_entry_code"`
	QRCode          string     `json:"qr_code"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

type verifyResponse struct {
	Success        bool   `json:"success"`
	UsedBackupCode bool   `json:"used_backup_code"`
	MFAToken       string `json:"mfa_token,omitempty"`
}

type statusResponse struct {
	Enabled              bool       `json:"enabled"`
	State                string     `json:"state"`
	BackupCodesGenerated bool       `json:"backup_codes_generated"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
	LastUsedAt           *time.Time `json:"last_used_at,omitempty"`
	DeviceCount          int        `json:"device_count"`
	SecurityScore        int        `json:"security_score"`
}

type backupCodeEntry struct {
	Code   string     `json:"code,omitempty"`
	Used   bool       `json:"used"`
	UsedAt *time.Time `json:"used_at,omitempty"`
}

func (a *api) beginEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ctx := a.identity(r)

	var req enrollmentRequest
	if err := decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		a.fail(w, r, err)
		return
	}
	label := req.AccountLabel
	if label == "" {
		label = id.Label
	}
	if label == "" {
		label = id.UserID
	}

	enrollment, err := a.engine.BeginEnrollment(ctx, id.UserID, label)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	png, err := qrcode.Encode(enrollment.ProvisioningURI, qrcode.Medium, a.qrSize)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, enrollmentResponse{
		ProvisioningURI: enrollment.ProvisioningURI,
		ManualEntryCode: enrollment.ManualEntryCode,
		QRCode:          "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		ExpiresAt:       optionalTime(enrollment.ExpiresAt),
	})
}

func (a *api) confirmEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ctx := a.identity(r)

	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.attempts.Check(ctx, id.UserID); err != nil {
		a.fail(w, r, err)
		return
	}

	res, err := a.engine.ConfirmEnrollment(ctx, id.UserID, req.Code)
	if err != nil {
		a.fail(w, r, a.recordAttempt(ctx, id.UserID, err))
		return
	}
	a.resetAttempts(ctx, id.UserID)

	writeJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: res.BackupCodes})
}

func (a *api) verify(w http.ResponseWriter, r *http.Request) {
	id, ctx := a.identity(r)

	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.attempts.Check(ctx, id.UserID); err != nil {
		a.fail(w, r, err)
		return
	}

	res, err := a.engine.Verify(ctx, id.UserID, req.Code)
	if err != nil {
		a.fail(w, r, a.recordAttempt(ctx, id.UserID, err))
		return
	}
	a.resetAttempts(ctx, id.UserID)

	out := verifyResponse{Success: res.Success, UsedBackupCode: res.UsedBackupCode}
	if a.assertions != nil {
		token, err := a.assertions.Issue(id.UserID, id.Label, amrFor(res.Factor))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		out.MFAToken = token
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) disable(w http.ResponseWriter, r *http.Request) {
	id, ctx := a.identity(r)

	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.attempts.Check(ctx, id.UserID); err != nil {
		a.fail(w, r, err)
		return
	}

	if _, err := a.engine.Disable(ctx, id.UserID, req.Code); err != nil {
		a.fail(w, r, a.recordAttempt(ctx, id.UserID, err))
		return
	}
	a.resetAttempts(ctx, id.UserID)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	id, ctx := a.identity(r)

	st, err := a.engine.Status(ctx, id.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Enabled:              st.Enabled,
		State:                st.State.String(),
		BackupCodesGenerated: st.BackupCodesGenerated,
		BackupCodesRemaining: st.BackupCodesRemaining,
		LastUsedAt:           optionalTime(st.LastUsedAt),
		DeviceCount:          st.DeviceCount,
		SecurityScore:        st.Score,
	})
}

func (a *api) listBackupCodes(w http.ResponseWriter, r *http.Request) {
	id, ctx := a.identity(r)

	codes, err := a.engine.ListBackupCodes(ctx, id.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]backupCodeEntry, len(codes))
	for i, c := range codes {
		out[i] = backupCodeEntry{Code: c.Code, Used: c.Used, UsedAt: optionalTime(c.UsedAt)}
	}
	writeJSON(w, http.StatusOK, map[string][]backupCodeEntry{"backup_codes": out})
}

func (a *api) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	id, ctx := a.identity(r)

	res, err := a.engine.RegenerateBackupCodes(ctx, id.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: res.BackupCodes})
}

// identity returns the guarded caller and a context carrying the request
// metadata the engine copies into audit events.
func (a *api) identity(r *http.Request) (middleware.Identity, context.Context) {
	id, _ := middleware.IdentityFromContext(r.Context())

	ctx := r.Context()
	ctx = go2fa.WithRequestID(ctx, middleware.RequestIDFromContext(ctx))
	ctx = go2fa.WithClientIP(ctx, clientIP(r))
	ctx = go2fa.WithUserAgent(ctx, r.UserAgent())
	return id, ctx
}

// recordAttempt counts a wrong code against the user. The engine error wins
// unless this failure tipped the user into the cooldown.
func (a *api) recordAttempt(ctx context.Context, userID string, err error) error {
	if !errors.Is(err, go2fa.ErrInvalidCode) {
		return err
	}
	if lerr := a.attempts.RecordFailure(ctx, userID); lerr != nil {
		if errors.Is(lerr, limiters.ErrRateLimited) {
			return lerr
		}
		a.logger.WarnContext(ctx, "attempt limiter write failed", logattr.UserID(userID), logattr.Error(lerr))
	}
	return err
}

func (a *api) resetAttempts(ctx context.Context, userID string) {
	if err := a.attempts.Reset(ctx, userID); err != nil {
		a.logger.WarnContext(ctx, "attempt limiter reset failed", logattr.UserID(userID), logattr.Error(err))
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "2fa request failed",
			logattr.RequestID(middleware.RequestIDFromContext(r.Context())),
			logattr.Path(r.URL.Path),
			logattr.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: code})
}

// decode reads one JSON object. An empty body surfaces as io.EOF so optional
// bodies can be told apart from malformed ones.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %w", go2fa.ErrValidation, io.EOF)
		}
		return go2fa.ErrValidation
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// amrFor maps a factor to its RFC 8176 authentication method reference.
func amrFor(f go2fa.Factor) string {
	if f == go2fa.FactorTOTP {
		return "otp"
	}
	return string(f)
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
