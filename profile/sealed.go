package profile

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "s1."

// ErrSealKey is returned for keys that are not exactly 32 bytes.
var ErrSealKey = errors.New("seal key must be 32 bytes")

// SealedStore encrypts secret material before it reaches the wrapped Store
// and decrypts it on the way out. Each value is bound to its user ID as
// additional data, so a ciphertext copied to another record fails to open.
//
// Values without the sealed prefix are returned as-is, which lets an
// existing plaintext deployment migrate by rewriting records over time.
type SealedStore struct {
	inner Store
	aead  cipher.AEAD
}

// NewSealedStore wraps inner with XChaCha20-Poly1305 using key.
func NewSealedStore(inner Store, key []byte) (*SealedStore, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrSealKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &SealedStore{inner: inner, aead: aead}, nil
}

func (s *SealedStore) Get(ctx context.Context, userID string) (*Profile, error) {
	p, err := s.inner.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.open(p)
}

func (s *SealedStore) Put(ctx context.Context, p *Profile) error {
	sealed, err := s.seal(p)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, sealed)
}

func (s *SealedStore) CompareAndSwap(ctx context.Context, expectedVersion uint64, next *Profile) (bool, error) {
	sealed, err := s.seal(next)
	if err != nil {
		return false, err
	}
	return s.inner.CompareAndSwap(ctx, expectedVersion, sealed)
}

func (s *SealedStore) seal(p *Profile) (*Profile, error) {
	if p == nil {
		return nil, errors.New("nil profile")
	}
	out := p.Clone()
	var err error
	if out.ActiveSecret, err = s.sealValue(out.UserID, out.ActiveSecret); err != nil {
		return nil, err
	}
	if out.PendingSecret, err = s.sealValue(out.UserID, out.PendingSecret); err != nil {
		return nil, err
	}
	for i := range out.BackupCodes {
		if out.BackupCodes[i].Code, err = s.sealValue(out.UserID, out.BackupCodes[i].Code); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SealedStore) open(p *Profile) (*Profile, error) {
	out := p.Clone()
	var err error
	if out.ActiveSecret, err = s.openValue(out.UserID, out.ActiveSecret); err != nil {
		return nil, err
	}
	if out.PendingSecret, err = s.openValue(out.UserID, out.PendingSecret); err != nil {
		return nil, err
	}
	for i := range out.BackupCodes {
		if out.BackupCodes[i].Code, err = s.openValue(out.UserID, out.BackupCodes[i].Code); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SealedStore) sealValue(userID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(userID))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *SealedStore) openValue(userID, stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(stored[len(sealedPrefix):])
	if err != nil {
		return "", fmt.Errorf("%w: sealed value encoding", ErrInvalidRecord)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", fmt.Errorf("%w: sealed value truncated", ErrInvalidRecord)
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(userID))
	if err != nil {
		return "", fmt.Errorf("%w: sealed value rejected", ErrInvalidRecord)
	}
	return string(plain), nil
}
