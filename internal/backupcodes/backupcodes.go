package backupcodes

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// Alphabet omits 0/O and 1/I so codes survive being read aloud or copied by
// hand. 32 symbols give 5 bits per character.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// maxBatchAttempts bounds redraws when a batch collides with itself.
const maxBatchAttempts = 8

var ErrBatchCollision = errors.New("backup code batch could not be made unique")

// RandomIndex returns a uniform index in [0, max).
type RandomIndex func(max int) (int, error)

// New draws one code of the given length from Alphabet.
func New(length int, randomIndex RandomIndex) (string, error) {
	if randomIndex == nil {
		randomIndex = CryptoRandomIndex
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(Alphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(Alphabet[n])
	}
	return b.String(), nil
}

// Batch draws count pairwise-unique codes. A duplicate draw is retried a
// bounded number of times before giving up.
func Batch(count, length int, randomIndex RandomIndex) ([]string, error) {
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		var (
			code string
			err  error
		)
		for attempt := 0; ; attempt++ {
			if attempt == maxBatchAttempts {
				return nil, ErrBatchCollision
			}
			code, err = New(length, randomIndex)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[code]; !dup {
				break
			}
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// Format splits a code in half for display, e.g. ABCD-EFGH.
func Format(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

// Canonicalize uppercases and strips the separators users tend to type.
func Canonicalize(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// WellFormed reports whether a canonical code has the expected length and
// only ASCII letters and digits.
func WellFormed(canonical string, length int) bool {
	if len(canonical) != length {
		return false
	}
	for i := 0; i < len(canonical); i++ {
		c := canonical[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Hash binds a canonical code to its owner so equal codes for different
// users never share a digest.
func Hash(userID, canonicalCode string) string {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Equal compares in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func CryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
