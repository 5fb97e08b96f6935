package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/go2fa/internal/logattr"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// AccessLog logs method, path, status and duration. Failures at 5xx log at
// error level.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if rec.status >= 500 {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http request",
				logattr.Method(r.Method),
				logattr.Path(r.URL.Path),
				logattr.Status(rec.status),
				logattr.Duration(time.Since(start)),
				logattr.RequestID(RequestIDFromContext(r.Context())),
			)
		})
	}
}
