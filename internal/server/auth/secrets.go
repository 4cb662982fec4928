package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	OTPLength        = 6
	OTPValidity      = 10 * time.Minute
	ResetValidity    = time.Hour
	resetTokenBytes  = 32
	apiKeySecretSize = 32
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateOTP returns a uniformly random 6-digit numeric code without a
// leading zero.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// OTPMatches compares a presented code against the stored one in constant time.
func OTPMatches(stored *string, presented string) bool {
	if stored == nil || *stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(presented)) == 1
}

// GenerateResetToken returns a random reset token for the user and the
// SHA-256 hex digest that is persisted in its place.
func GenerateResetToken() (token, hash string, err error) {
	token, err = randomHex(resetTokenBytes)
	if err != nil {
		return "", "", err
	}
	return token, HashResetToken(token), nil
}

func HashResetToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// GenerateAPIKeySecret returns a 64 character hex secret.
func GenerateAPIKeySecret() (string, error) {
	return randomHex(apiKeySecretSize)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
