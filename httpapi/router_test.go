package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/go2fa"
	"github.com/MrEthical07/go2fa/internal/limiters"
	"github.com/MrEthical07/go2fa/jwt"
	"github.com/MrEthical07/go2fa/middleware"
	"github.com/MrEthical07/go2fa/profile"
	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

type testServer struct {
	handler    http.Handler
	tokens     *jwt.Manager
	assertions *jwt.Manager
}

func newTestServer(t *testing.T, mutate func(*Options)) *testServer {
	t.Helper()

	engine, err := go2fa.New().
		WithStore(profile.NewMemoryStore()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	// One key for both managers, as go2fad runs them; only the audience
	// keeps an mfa_token from passing as a bearer token.
	key := []byte(strings.Repeat("k", 32))
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    key,
		Issuer:        "go2fa-test",
		Audience:      "go2fa-api",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	assertions, err := jwt.NewManager(jwt.Config{
		TTL:           time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    key,
		Issuer:        "go2fa-test",
		Audience:      "go2fa-mfa",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	opts := Options{Engine: engine, Tokens: tokens, Assertions: assertions}
	if mutate != nil {
		mutate(&opts)
	}
	return &testServer{handler: NewRouter(opts), tokens: tokens, assertions: assertions}
}

func (s *testServer) token(t *testing.T, userID string, amr ...string) string {
	t.Helper()
	tok, err := s.tokens.Issue(userID, userID+"@example.com", amr...)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithAssertion(t, method, path, token, "", body)
}

func (s *testServer) doWithAssertion(t *testing.T, method, path, token, assertion string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if assertion != "" {
		req.Header.Set(middleware.AssertionHeader, assertion)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

// enrollOverHTTP drives begin and confirm and returns the secret and codes.
func enrollOverHTTP(t *testing.T, s *testServer, tok string) (string, []string) {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/v1/2fa/enrollment", tok, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enrollment status = %d body %s", rec.Code, rec.Body.String())
	}
	begin := decodeBody[enrollmentResponse](t, rec)
	if !strings.HasPrefix(begin.QRCode, "data:image/png;base64,") {
		t.Fatalf("qr_code is not a PNG data URI: %.40q", begin.QRCode)
	}
	if !strings.Contains(begin.ProvisioningURI, begin.ManualEntryCode) {
		t.Fatal("provisioning URI does not carry the manual entry code")
	}

	code, err := totp.GenerateCode(begin.ManualEntryCode, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	rec = s.do(t, http.MethodPost, "/v1/2fa/enrollment/confirm", tok, codeRequest{Code: code})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d body %s", rec.Code, rec.Body.String())
	}
	confirm := decodeBody[backupCodesResponse](t, rec)
	return begin.ManualEntryCode, confirm.BackupCodes
}

func TestRouterRequiresBearerToken(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/v1/2fa/status", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/v1/2fa/status", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRouterHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestRouterLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.token(t, "user-1", "pwd")

	rec := s.do(t, http.MethodGet, "/v1/2fa/status", tok, nil)
	st := decodeBody[statusResponse](t, rec)
	if st.Enabled || st.State != profile.StateDisabled.String() || st.SecurityScore != 60 {
		t.Fatalf("unexpected initial status %+v", st)
	}

	_, codes := enrollOverHTTP(t, s, tok)
	if len(codes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(codes))
	}

	rec = s.do(t, http.MethodGet, "/v1/2fa/status", tok, nil)
	st = decodeBody[statusResponse](t, rec)
	if !st.Enabled || st.BackupCodesRemaining != 10 || st.SecurityScore != 90 {
		t.Fatalf("unexpected enabled status %+v", st)
	}

	rec = s.do(t, http.MethodPost, "/v1/2fa/verify", tok, codeRequest{Code: codes[0]})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d body %s", rec.Code, rec.Body.String())
	}
	verified := decodeBody[verifyResponse](t, rec)
	if !verified.Success || !verified.UsedBackupCode {
		t.Fatalf("unexpected verify response %+v", verified)
	}
	claims, err := s.assertions.Parse(verified.MFAToken)
	if err != nil {
		t.Fatalf("mfa_token did not parse: %v", err)
	}
	if claims.Subject != "user-1" || len(claims.AMR) != 1 || claims.AMR[0] != "backup_code" {
		t.Fatalf("unexpected assertion claims %+v", claims)
	}

	rec = s.do(t, http.MethodPost, "/v1/2fa/verify", tok, codeRequest{Code: codes[0]})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused code status = %d, want 401", rec.Code)
	}
	if body := decodeBody[errorBody](t, rec); body.Error != "invalid_code" {
		t.Fatalf("error code = %q", body.Error)
	}

	rec = s.do(t, http.MethodGet, "/v1/2fa/backup-codes", tok, nil)
	listed := decodeBody[map[string][]backupCodeEntry](t, rec)["backup_codes"]
	if len(listed) != 10 || !listed[0].Used || listed[0].UsedAt == nil || listed[1].Used {
		t.Fatalf("unexpected backup code list %+v", listed)
	}

	rec = s.do(t, http.MethodPost, "/v1/2fa/disable", tok, codeRequest{Code: codes[1]})
	if rec.Code != http.StatusOK {
		t.Fatalf("disable status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/v1/2fa/verify", tok, codeRequest{Code: codes[2]})
	if rec.Code != http.StatusConflict {
		t.Fatalf("verify after disable = %d, want 409", rec.Code)
	}
}

func TestRouterErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.token(t, "user-2")

	cases := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"confirm without begin", "/v1/2fa/enrollment/confirm", codeRequest{Code: "123456"}, http.StatusConflict, "no_pending_setup"},
		{"verify while disabled", "/v1/2fa/verify", codeRequest{Code: "123456"}, http.StatusConflict, "not_enabled"},
		{"malformed code", "/v1/2fa/verify", codeRequest{Code: "12"}, http.StatusBadRequest, "validation"},
		{"unknown field", "/v1/2fa/verify", map[string]string{"otp": "123456"}, http.StatusBadRequest, "validation"},
		{"label with colon", "/v1/2fa/enrollment", enrollmentRequest{AccountLabel: "a:b"}, http.StatusBadRequest, "validation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tc.path, tok, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.status, rec.Body.String())
			}
			if got := decodeBody[errorBody](t, rec).Error; got != tc.code {
				t.Fatalf("error = %q, want %q", got, tc.code)
			}
		})
	}
}

func TestRouterAttemptLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newTestServer(t, func(o *Options) {
		o.Attempts = limiters.NewAttemptLimiter(rdb, limiters.AttemptConfig{MaxAttempts: 3, Cooldown: time.Minute})
	})
	tok := s.token(t, "user-3")
	_, codes := enrollOverHTTP(t, s, tok)

	wrong := codeRequest{Code: "ZZZZZZZZ"}
	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/v1/2fa/verify", tok, wrong)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, rec.Code)
		}
	}
	rec := s.do(t, http.MethodPost, "/v1/2fa/verify", tok, wrong)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third failure status = %d, want 429", rec.Code)
	}

	// A correct code is still refused during the cooldown.
	rec = s.do(t, http.MethodPost, "/v1/2fa/verify", tok, codeRequest{Code: codes[0]})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("locked verify status = %d, want 429", rec.Code)
	}

	mr.FastForward(2 * time.Minute)
	rec = s.do(t, http.MethodPost, "/v1/2fa/verify", tok, codeRequest{Code: codes[0]})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify after cooldown = %d body %s", rec.Code, rec.Body.String())
	}
	if mr.Exists("tfa:att:user-3") {
		t.Fatal("success did not reset the attempt counter")
	}
}

func TestRouterStepUpWithBearerAMR(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.StepUpForBackupCodes = true
		o.Assertions = nil
	})

	pwdOnly := s.token(t, "user-4", "pwd")
	enrollOverHTTP(t, s, pwdOnly)

	rec := s.do(t, http.MethodGet, "/v1/2fa/backup-codes", pwdOnly, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("backup codes without step-up = %d, want 403", rec.Code)
	}

	stepped := s.token(t, "user-4", "pwd", "otp")
	rec = s.do(t, http.MethodPost, "/v1/2fa/backup-codes/regenerate", stepped, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("regenerate = %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[backupCodesResponse](t, rec); len(got.BackupCodes) != 10 {
		t.Fatalf("expected 10 regenerated codes, got %d", len(got.BackupCodes))
	}
}

func TestRouterStepUpWithMFAToken(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.StepUpForBackupCodes = true })

	alice := s.token(t, "user-4", "pwd")
	secret, _ := enrollOverHTTP(t, s, alice)

	rec := s.do(t, http.MethodGet, "/v1/2fa/backup-codes", alice, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("backup codes without mfa_token = %d, want 403", rec.Code)
	}

	code, err := totp.GenerateCode(secret, time.Now().Add(30*time.Second))
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	rec = s.do(t, http.MethodPost, "/v1/2fa/verify", alice, codeRequest{Code: code})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify = %d body %s", rec.Code, rec.Body.String())
	}
	mfa := decodeBody[verifyResponse](t, rec).MFAToken
	if mfa == "" {
		t.Fatal("verify returned no mfa_token")
	}

	bob := s.token(t, "user-5", "pwd")
	rec = s.doWithAssertion(t, http.MethodGet, "/v1/2fa/backup-codes", bob, mfa, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("another user's mfa_token = %d, want 403", rec.Code)
	}

	rec = s.doWithAssertion(t, http.MethodPost, "/v1/2fa/backup-codes/regenerate", alice, mfa, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("regenerate = %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[backupCodesResponse](t, rec); len(got.BackupCodes) != 10 {
		t.Fatalf("expected 10 regenerated codes, got %d", len(got.BackupCodes))
	}
}

func TestRouterRejectsMFATokenAsBearer(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.token(t, "user-6", "pwd")
	_, codes := enrollOverHTTP(t, s, tok)

	rec := s.do(t, http.MethodPost, "/v1/2fa/verify", tok, codeRequest{Code: codes[0]})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify = %d body %s", rec.Code, rec.Body.String())
	}
	mfa := decodeBody[verifyResponse](t, rec).MFAToken

	for _, path := range []string{"/v1/2fa/status", "/v1/2fa/backup-codes"} {
		if rec := s.do(t, http.MethodGet, path, mfa, nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s with mfa_token as bearer = %d, want 401", path, rec.Code)
		}
	}
	if rec := s.do(t, http.MethodPost, "/v1/2fa/disable", mfa, codeRequest{Code: codes[1]}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("disable with mfa_token as bearer = %d, want 401", rec.Code)
	}
	if _, err := s.tokens.Parse(mfa); err == nil {
		t.Fatal("access manager accepted an mfa_token")
	}
}

func TestRouterIPRateLimit(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.IPRateLimit = 2
		o.IPRateWindow = time.Minute
	})

	for i := 0; i < 2; i++ {
		if rec := s.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i+1, rec.Code)
		}
	}
	if rec := s.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", rec.Code)
	}
}
