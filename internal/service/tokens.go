package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sakif/circles/internal/repository"
)

// maxTokenAttempts bounds how often a colliding token is regenerated.
const maxTokenAttempts = 3

// TokenGenerator returns a fresh opaque token.
type TokenGenerator func() (string, error)

// RandomToken returns 32 random bytes, hex encoded.
func RandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("service: reading random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// withFreshToken calls store with prefix+token, generating a new token each
// time store reports repository.ErrDuplicateToken.
func withFreshToken(gen TokenGenerator, prefix string, store func(token string) error) error {
	for range maxTokenAttempts {
		tok, err := gen()
		if err != nil {
			return err
		}
		err = store(prefix + tok)
		if !errors.Is(err, repository.ErrDuplicateToken) {
			return err
		}
	}
	return fmt.Errorf("service: no unique token after %d attempts: %w", maxTokenAttempts, repository.ErrDuplicateToken)
}
