package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Supported PIN digest algorithms
const (
	PINAlgorithmBcrypt = "bcrypt"
	PINAlgorithmSHA256 = "sha256"
)

const (
	MinPINLength  = 4
	MaxPINLength  = 6
	PINBcryptCost = 10
)

var (
	ErrInvalidPINFormat   = errors.New("PIN must be 4 to 6 digits")
	ErrPINMismatch        = errors.New("PIN does not match")
	ErrUnsupportedPINHash = errors.New("unsupported PIN hash algorithm")
)

// PINHasher produces and checks one-way PIN digests. Compare returns
// ErrPINMismatch for a wrong PIN or an empty digest.
type PINHasher interface {
	Hash(pin string) (string, error)
	Compare(digest, pin string) error
	Algorithm() string
}

// NewPINHasher returns the hasher for algorithm; an empty name selects bcrypt
func NewPINHasher(algorithm string) (PINHasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", PINAlgorithmBcrypt:
		return BcryptPINHasher{Cost: PINBcryptCost}, nil
	case PINAlgorithmSHA256:
		return SHA256PINHasher{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPINHash, algorithm)
	}
}

// ValidatePIN checks that pin is 4 to 6 ASCII digits
func ValidatePIN(pin string) error {
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return ErrInvalidPINFormat
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPINFormat
		}
	}
	return nil
}

// SHA256PINHasher stores the hex SHA-256 of the PIN. Kept for digests
// written by older deployments; a 4-6 digit space is trivially brute-forced offline.
type SHA256PINHasher struct{}

func (SHA256PINHasher) Algorithm() string { return PINAlgorithmSHA256 }

func (SHA256PINHasher) Hash(pin string) (string, error) {
	if pin == "" {
		return "", ErrInvalidPINFormat
	}
	return sha256Hex(pin), nil
}

func (SHA256PINHasher) Compare(digest, pin string) error {
	if digest == "" {
		return ErrPINMismatch
	}
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(digest)), []byte(sha256Hex(pin))) != 1 {
		return ErrPINMismatch
	}
	return nil
}

// BcryptPINHasher is the default. Compare still accepts legacy SHA-256 digests
// so accounts migrate on their next PIN change.
type BcryptPINHasher struct {
	Cost int
}

func (BcryptPINHasher) Algorithm() string { return PINAlgorithmBcrypt }

func (h BcryptPINHasher) Hash(pin string) (string, error) {
	if pin == "" {
		return "", ErrInvalidPINFormat
	}
	cost := h.Cost
	if cost == 0 {
		cost = PINBcryptCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash PIN: %w", err)
	}
	return string(hashed), nil
}

func (h BcryptPINHasher) Compare(digest, pin string) error {
	if digest == "" {
		return ErrPINMismatch
	}
	if !strings.HasPrefix(digest, "$2") {
		return SHA256PINHasher{}.Compare(digest, pin)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(pin)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPINMismatch
		}
		return fmt.Errorf("failed to compare PIN: %w", err)
	}
	return nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
