package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/go2fa/jwt"
)

// TokenParser validates a bearer token. *jwt.Manager satisfies it.
type TokenParser interface {
	Parse(token string) (*jwt.Claims, error)
}

// Identity is the authenticated caller a 2FA request acts on.
type Identity struct {
	UserID string
	Label  string
	AMR    []string
}

// HasMethod reports whether the token was minted after method succeeded.
func (id Identity) HasMethod(method string) bool {
	for _, m := range id.AMR {
		if m == method {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// WithIdentity is exported for handlers tested without a token round-trip.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

func Guard(tokens TokenParser) func(http.Handler) http.Handler {
	return guard(tokens, nil)
}

var defaultSecondFactors = []string{"otp", "backup_code"}

// RequireSecondFactor accepts only tokens whose AMR names one of methods.
func RequireSecondFactor(tokens TokenParser, methods ...string) func(http.Handler) http.Handler {
	if len(methods) == 0 {
		methods = defaultSecondFactors
	}
	return guard(tokens, func(id Identity) bool {
		for _, m := range methods {
			if id.HasMethod(m) {
				return true
			}
		}
		return false
	})
}

// AssertionHeader carries the mfa_token minted by a successful verify.
const AssertionHeader = "X-MFA-Token"

// RequireAssertion runs behind Guard. It accepts only requests whose
// AssertionHeader parses under assertions, names the guarded caller as its
// subject and lists one of methods in its AMR.
func RequireAssertion(assertions TokenParser, methods ...string) func(http.Handler) http.Handler {
	if len(methods) == 0 {
		methods = defaultSecondFactors
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok || assertions == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimSpace(r.Header.Get(AssertionHeader))
			if raw == "" {
				http.Error(w, "second factor required", http.StatusForbidden)
				return
			}
			claims, err := assertions.Parse(raw)
			if err != nil || claims.Subject != id.UserID {
				http.Error(w, "second factor required", http.StatusForbidden)
				return
			}
			proof := Identity{UserID: claims.Subject, AMR: claims.AMR}
			for _, m := range methods {
				if proof.HasMethod(m) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "second factor required", http.StatusForbidden)
		})
	}
}

func guard(tokens TokenParser, allow func(Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Parse(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id := Identity{UserID: claims.Subject, Label: claims.Label, AMR: claims.AMR}
			if allow != nil && !allow(id) {
				http.Error(w, "second factor required", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
