package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password length policy. The upper bound is bcrypt's: it silently ignores
// anything past 72 bytes, so longer input is rejected instead.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

var (
	ErrPasswordTooShort = fmt.Errorf("auth: password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordLength)
	ErrPasswordMismatch = errors.New("auth: invalid password")
)

const defaultCost = 12

// PasswordService hashes and verifies passwords with bcrypt.
type PasswordService struct {
	cost int
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest lets other packages' tests use bcrypt.MinCost,
// which keeps sign-up tests fast.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// CheckPolicy validates length only.
func CheckPolicy(plaintext string) error {
	switch {
	case len(plaintext) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(plaintext) > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}

// Hash enforces the policy and returns a self-describing bcrypt hash
// (algorithm, cost and salt are encoded in the string).
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if err := CheckPolicy(plaintext); err != nil {
		return "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil on a match and ErrPasswordMismatch on a wrong password.
// bcrypt compares in constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
