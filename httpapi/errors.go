package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/go2fa"
	"github.com/MrEthical07/go2fa/internal/limiters"
)

const errCodeRateLimited = "rate_limited"

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an engine or limiter error to an HTTP status and a stable
// error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, limiters.ErrRateLimited):
		return http.StatusTooManyRequests, errCodeRateLimited
	case errors.Is(err, limiters.ErrUnavailable), errors.Is(err, go2fa.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, string(go2fa.AuditErrUnavailable)
	case errors.Is(err, go2fa.ErrValidation):
		return http.StatusBadRequest, string(go2fa.AuditErrValidation)
	case errors.Is(err, go2fa.ErrNoPendingSetup):
		return http.StatusConflict, string(go2fa.AuditErrNoPendingSetup)
	case errors.Is(err, go2fa.ErrNotEnabled):
		return http.StatusConflict, string(go2fa.AuditErrNotEnabled)
	case errors.Is(err, go2fa.ErrInvalidCode):
		return http.StatusUnauthorized, string(go2fa.AuditErrInvalidCode)
	case errors.Is(err, go2fa.ErrConflict):
		return http.StatusConflict, string(go2fa.AuditErrConflict)
	default:
		return http.StatusInternalServerError, string(go2fa.ErrorCode(err))
	}
}
