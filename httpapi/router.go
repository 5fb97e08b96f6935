package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/go2fa"
	"github.com/MrEthical07/go2fa/internal/limiters"
	"github.com/MrEthical07/go2fa/jwt"
	"github.com/MrEthical07/go2fa/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// Options wires the router. Engine and Tokens are required.
type Options struct {
	Engine *go2fa.Engine
	Tokens middleware.TokenParser

	// Assertions, when set, signs a short-lived token after a successful
	// /verify so the caller can prove the second factor to other services.
	// Configure it with an Audience distinct from Tokens so an mfa_token is
	// never accepted as a bearer token.
	Assertions *jwt.Manager
	// Attempts throttles failed code submissions per user.
	Attempts *limiters.AttemptLimiter

	// IPRateLimit caps requests per IP per IPRateWindow. Zero disables it.
	IPRateLimit  int
	IPRateWindow time.Duration

	// StepUpForBackupCodes guards the routes that disclose or replace backup
	// codes. With Assertions set the caller sends its mfa_token in the
	// X-MFA-Token header; without it the bearer token's AMR must name a
	// second factor.
	StepUpForBackupCodes bool

	Logger     *slog.Logger
	Metrics    http.Handler
	QRCodeSize int
}

type api struct {
	engine     *go2fa.Engine
	assertions *jwt.Manager
	attempts   *limiters.AttemptLimiter
	logger     *slog.Logger
	qrSize     int
}

// NewRouter builds the chi router for the 2FA API.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	qrSize := opts.QRCodeSize
	if qrSize <= 0 {
		qrSize = 256
	}
	a := &api{
		engine:     opts.Engine,
		assertions: opts.Assertions,
		attempts:   opts.Attempts,
		logger:     logger,
		qrSize:     qrSize,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.AccessLog(logger))
	if opts.IPRateLimit > 0 {
		window := opts.IPRateWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(opts.IPRateLimit, window))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1/2fa", func(r chi.Router) {
		r.Use(middleware.Guard(opts.Tokens))

		r.Post("/enrollment", a.beginEnrollment)
		r.Post("/enrollment/confirm", a.confirmEnrollment)
		r.Post("/verify", a.verify)
		r.Post("/disable", a.disable)
		r.Get("/status", a.status)

		r.Group(func(r chi.Router) {
			switch {
			case !opts.StepUpForBackupCodes:
			case opts.Assertions != nil:
				r.Use(middleware.RequireAssertion(opts.Assertions))
			default:
				r.Use(middleware.RequireSecondFactor(opts.Tokens))
			}
			r.Get("/backup-codes", a.listBackupCodes)
			r.Post("/backup-codes/regenerate", a.regenerateBackupCodes)
		})
	})

	return r
}
