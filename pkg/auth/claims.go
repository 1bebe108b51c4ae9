package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType identifies the principal class a token was minted for.
type TokenType string

// Unified token types.
const (
	TokenTypeAdminUser      TokenType = "admin_user"
	TokenTypeServiceAccount TokenType = "service_account"
)

// Legacy token types minted by pre-2.0 deployments. They are accepted on
// validation; the principal class is inferred from the client_id prefix.
const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// ServiceAccountClientPrefix marks client IDs issued to service accounts.
// Legacy tokens carrying a client_id with this prefix are treated as
// service-account tokens.
const ServiceAccountClientPrefix = "sa_"

// Claims is the unified JWT payload shared by every ArtStore service.
//
// Required claims: sub, type, role, name, jti, iat, exp, nbf. ClientID and
// RateLimit are set only on service-account tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Type is the principal class. One of the TokenType constants.
	Type TokenType `json:"type"`

	// Role is the authorization role (see roles.go).
	Role string `json:"role"`

	// Name is the human-readable principal name.
	Name string `json:"name"`

	// ClientID is the OAuth2 client identifier for service accounts.
	ClientID string `json:"client_id,omitempty"`

	// RateLimit is the per-client request budget (requests per window).
	// Zero means the service default applies.
	RateLimit int `json:"rate_limit,omitempty"`
}

// Validate implements jwt.ClaimsValidator. It runs after the standard
// time-based checks during parsing and enforces the unified schema.
func (c *Claims) Validate() error {
	if c.Subject == "" {
		return fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	switch c.Type {
	case TokenTypeAdminUser, TokenTypeServiceAccount, TokenTypeAccess, TokenTypeRefresh:
	case "":
		return fmt.Errorf("%w: type", ErrMissingClaim)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTokenType, c.Type)
	}
	if c.Role == "" {
		return fmt.Errorf("%w: role", ErrMissingClaim)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: name", ErrMissingClaim)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: jti", ErrMissingClaim)
	}
	if c.IssuedAt == nil {
		return fmt.Errorf("%w: iat", ErrMissingClaim)
	}
	if c.ExpiresAt == nil {
		return fmt.Errorf("%w: exp", ErrMissingClaim)
	}
	if c.NotBefore == nil {
		return fmt.Errorf("%w: nbf", ErrMissingClaim)
	}
	if c.IssuedAt.After(c.NotBefore.Time) || c.NotBefore.After(c.ExpiresAt.Time) {
		return ErrTimestampOrder
	}
	return nil
}

// EffectiveType resolves the principal class, mapping legacy access/refresh
// tokens through the client_id prefix convention.
func (c *Claims) EffectiveType() TokenType {
	switch c.Type {
	case TokenTypeAdminUser, TokenTypeServiceAccount:
		return c.Type
	}
	if strings.HasPrefix(c.ClientID, ServiceAccountClientPrefix) {
		return TokenTypeServiceAccount
	}
	return TokenTypeAdminUser
}

// IsServiceAccount returns true if the token belongs to a service account.
func (c *Claims) IsServiceAccount() bool {
	return c.EffectiveType() == TokenTypeServiceAccount
}

// IsAdminUser returns true if the token belongs to an interactive admin user.
func (c *Claims) IsAdminUser() bool {
	return c.EffectiveType() == TokenTypeAdminUser
}
