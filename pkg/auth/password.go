package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the default cost parameter for bcrypt hashing.
// Cost 10 provides a good balance between security and performance.
const DefaultBcryptCost = 10

// MaxPasswordLength is the maximum allowed password length.
// bcrypt silently truncates at 72 bytes, so we enforce this limit.
const MaxPasswordLength = 72

// Password validation errors.
var (
	ErrPasswordTooShort       = errors.New("password is too short")
	ErrPasswordTooLong        = errors.New("password must be at most 72 characters")
	ErrPasswordMissingUpper   = errors.New("password must contain an uppercase letter")
	ErrPasswordMissingLower   = errors.New("password must contain a lowercase letter")
	ErrPasswordMissingDigit   = errors.New("password must contain a digit")
	ErrPasswordMissingSpecial = errors.New("password must contain a special character")
)

// Character classes used by policy checks and the generator.
const (
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	digitChars   = "0123456789"
	specialChars = "!@#$%^&*()-_=+[]{}<>?"
)

// PasswordPolicy describes the minimum complexity for a class of principals.
type PasswordPolicy struct {
	// MinLength is the minimum password length in bytes.
	MinLength int `mapstructure:"min_length" yaml:"min_length"`

	RequireUpper   bool `mapstructure:"require_upper" yaml:"require_upper"`
	RequireLower   bool `mapstructure:"require_lower" yaml:"require_lower"`
	RequireDigit   bool `mapstructure:"require_digit" yaml:"require_digit"`
	RequireSpecial bool `mapstructure:"require_special" yaml:"require_special"`
}

// DefaultAdminPolicy applies to interactive admin users.
func DefaultAdminPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:    8,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// DefaultSystemPolicy applies to system accounts and generated credentials.
func DefaultSystemPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      12,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// Validate checks a password against the policy.
func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, p.MinLength)
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	if p.RequireUpper && !strings.ContainsAny(password, upperChars) {
		return ErrPasswordMissingUpper
	}
	if p.RequireLower && !strings.ContainsAny(password, lowerChars) {
		return ErrPasswordMissingLower
	}
	if p.RequireDigit && !strings.ContainsAny(password, digitChars) {
		return ErrPasswordMissingDigit
	}
	if p.RequireSpecial && !strings.ContainsAny(password, specialChars) {
		return ErrPasswordMissingSpecial
	}
	return nil
}

// HashPassword creates a bcrypt hash of the given password or secret.
// The caller is responsible for policy validation.
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks if a password matches a bcrypt hash.
// bcrypt comparison is constant-time with respect to the password.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether a stored hash was created with a weaker cost
// than the current default and should be regenerated on next login.
func NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < DefaultBcryptCost
}

// GeneratePassword produces a random password satisfying the policy.
//
// One character from each required class is placed first so the policy holds
// regardless of what the random fill produces, then the result is shuffled.
// Length is raised to the policy minimum when needed.
func GeneratePassword(policy PasswordPolicy, length int) (string, error) {
	if length < policy.MinLength {
		length = policy.MinLength
	}
	if length > MaxPasswordLength {
		length = MaxPasswordLength
	}

	var required []string
	alphabet := ""
	if policy.RequireUpper {
		required = append(required, upperChars)
		alphabet += upperChars
	}
	if policy.RequireLower {
		required = append(required, lowerChars)
		alphabet += lowerChars
	}
	if policy.RequireDigit {
		required = append(required, digitChars)
		alphabet += digitChars
	}
	if policy.RequireSpecial {
		required = append(required, specialChars)
		alphabet += specialChars
	}
	if alphabet == "" {
		alphabet = upperChars + lowerChars + digitChars
	}
	if length < len(required) {
		length = len(required)
	}

	password := make([]byte, 0, length)
	for _, class := range required {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		password = append(password, c)
	}
	for len(password) < length {
		c, err := randomChar(alphabet)
		if err != nil {
			return "", err
		}
		password = append(password, c)
	}

	// Fisher-Yates so the guaranteed class characters are not predictable
	// by position.
	for i := len(password) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		password[i], password[j] = password[j], password[i]
	}

	return string(password), nil
}

// GenerateClientSecret produces a URL-safe random secret for OAuth2 service
// accounts. 32 bytes of entropy, base64url encoded.
func GenerateClientSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate client secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func randomChar(alphabet string) (byte, error) {
	i, err := randomIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randomIndex(n int) (int, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("generate random index: %w", err)
	}
	return int(i.Int64()), nil
}
