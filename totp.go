package go2fa

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

type totpManager struct {
	config TOTPConfig
	opts   totp.ValidateOpts
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.SecretSize <= 0 {
		cfg.SecretSize = 20
	}
	return &totpManager{
		config: cfg,
		opts: totp.ValidateOpts{
			Period:    uint(cfg.Period),
			Digits:    totpDigits(cfg.Digits),
			Algorithm: totpAlgorithm(cfg.Algorithm),
		},
	}
}

// NewSecret draws a fresh secret and builds its otpauth:// provisioning URI.
// The returned secret is base32 without padding and is byte-for-byte the
// secret parameter of the URI.
func (m *totpManager) NewSecret(accountLabel string) (string, string, error) {
	if m == nil {
		return "", "", ErrEngineNotReady
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: accountLabel,
		Period:      uint(m.config.Period),
		SecretSize:  uint(m.config.SecretSize),
		Digits:      m.opts.Digits,
		Algorithm:   m.opts.Algorithm,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// VerifyCode checks code against every step in [now-skew, now+skew] and
// returns the matching step counter. A malformed code is a non-match, not an
// error; callers validate format before reaching this point.
func (m *totpManager) VerifyCode(secret, code string, now time.Time) (bool, int64, error) {
	if m == nil {
		return false, 0, ErrEngineNotReady
	}
	if secret == "" {
		return false, 0, errors.New("empty totp secret")
	}
	trimmed := strings.TrimSpace(code)
	if !m.wellFormed(trimmed) {
		return false, 0, nil
	}

	period := int64(m.config.Period)
	base := now.Unix() / period
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := totp.GenerateCodeCustom(secret, time.Unix(counter*period, 0), m.opts)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

func (m *totpManager) wellFormed(code string) bool {
	return len(code) == m.config.Digits && isNumericString(code)
}

func isNumericString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func totpDigits(n int) otp.Digits {
	if n == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

func totpAlgorithm(name string) otp.Algorithm {
	switch strings.ToUpper(name) {
	case "SHA256":
		return otp.AlgorithmSHA256
	case "SHA512":
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}
