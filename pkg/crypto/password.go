package crypto

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// ErrPasswordTooLong is returned for inputs bcrypt would reject.
var ErrPasswordTooLong = errors.New("crypto: password exceeds 72 bytes")

var (
	placeholderOnce sync.Once
	placeholderHash []byte
)

// HashPassword hashes plaintext using bcrypt.
func HashPassword(plain string) ([]byte, error) {
	if len(plain) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// ComparePassword compares plaintext to hashed secret.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}

// PlaceholderHash returns a bcrypt hash at the default cost that no caller knows the
// plaintext of. Comparing against it costs the same as comparing against a real hash.
func PlaceholderHash() []byte {
	placeholderOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("lucid-placeholder-credential"), bcrypt.DefaultCost)
		if err == nil {
			placeholderHash = hash
		}
	})
	return placeholderHash
}
