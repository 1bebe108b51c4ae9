package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerifierConfig holds configuration for token validation.
type VerifierConfig struct {
	// Issuer, when set, must match the iss claim.
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// Leeway tolerates clock skew on time-based claims. Default: none.
	Leeway time.Duration `mapstructure:"leeway" yaml:"leeway"`
}

// Verifier validates unified tokens against the active public key set.
// Validation is purely local: no network call is ever made.
type Verifier struct {
	keys   PublicKeyProvider
	parser *jwt.Parser
}

// NewVerifier creates a verifier backed by the given public key provider.
func NewVerifier(keys PublicKeyProvider, config VerifierConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(config.Leeway))
	}
	return &Verifier{
		keys:   keys,
		parser: jwt.NewParser(opts...),
	}
}

// Verify validates a token string and returns its claims.
//
// The "kid" header routes to the matching public key when present; tokens
// without a recognized kid are tried against every active key (rotation
// keeps at most two). Schema violations surface their specific error so
// callers can distinguish a malformed token from a stale one.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	keys, err := v.keys.PublicKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("load public keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, ErrNoPublicKeys
	}

	token, err := v.parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if kid, ok := t.Header["kid"].(string); ok {
			if pub, ok := keys[kid]; ok {
				return pub, nil
			}
		}
		set := jwt.VerificationKeySet{Keys: make([]jwt.VerificationKey, 0, len(keys))}
		for _, pub := range keys {
			set.Keys = append(set.Keys, pub)
		}
		return set, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		case errors.Is(err, ErrMissingClaim),
			errors.Is(err, ErrInvalidTokenType),
			errors.Is(err, ErrTimestampOrder):
			return nil, err
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
