package auth

import "errors"

// Common errors for token and key operations.
var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrTokenNotYetValid   = errors.New("token not yet valid")
	ErrInvalidTokenType   = errors.New("invalid token type")
	ErrTokenSigningFailed = errors.New("failed to sign token")

	ErrMissingClaim   = errors.New("missing required claim")
	ErrTimestampOrder = errors.New("token timestamps out of order")

	ErrNoSigningKey  = errors.New("no active signing key")
	ErrNoPublicKeys  = errors.New("no public keys available")
	ErrInvalidKeyPEM = errors.New("invalid PEM key material")
)
