package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IssuerConfig holds configuration for token minting.
type IssuerConfig struct {
	// Issuer is the iss claim on minted tokens. Default: "artstore".
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// AccessTokenTTL is the lifetime of access tokens. Default: 15 minutes.
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" yaml:"access_token_ttl"`

	// RefreshTokenTTL is the lifetime of refresh tokens. Default: 7 days.
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl" yaml:"refresh_token_ttl"`
}

// Issuer mints unified token pairs signed with the provider's current key.
type Issuer struct {
	keys   SigningKeyProvider
	config IssuerConfig
}

// TokenPair contains both access and refresh tokens.
type TokenPair struct {
	// AccessToken is the short-lived token for API authorization.
	AccessToken string `json:"access_token"`

	// RefreshToken is the long-lived token for obtaining new access tokens.
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`

	// ExpiresAt is the access token expiration time.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewIssuer creates a token issuer backed by the given signing key provider.
func NewIssuer(keys SigningKeyProvider, config IssuerConfig) *Issuer {
	if config.Issuer == "" {
		config.Issuer = "artstore"
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 15 * time.Minute
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	return &Issuer{keys: keys, config: config}
}

// IssueAdminUser mints an access/refresh pair for an interactive admin user.
func (i *Issuer) IssueAdminUser(ctx context.Context, username, role string) (*TokenPair, error) {
	return i.issuePair(ctx, Claims{
		Type: TokenTypeAdminUser,
		Role: role,
		Name: username,
	}, username)
}

// IssueServiceAccount mints an access/refresh pair for an OAuth2 service
// account. The client_id and rate_limit travel inside the token so services
// can enforce limits without a registry lookup.
func (i *Issuer) IssueServiceAccount(ctx context.Context, clientID, name, role string, rateLimit int) (*TokenPair, error) {
	return i.issuePair(ctx, Claims{
		Type:      TokenTypeServiceAccount,
		Role:      role,
		Name:      name,
		ClientID:  clientID,
		RateLimit: rateLimit,
	}, clientID)
}

// AccessTokenTTL returns the configured access token lifetime.
func (i *Issuer) AccessTokenTTL() time.Duration {
	return i.config.AccessTokenTTL
}

// RefreshTokenTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTokenTTL() time.Duration {
	return i.config.RefreshTokenTTL
}

// issuePair mints the access and refresh tokens with a shared iat/nbf and
// distinct jti values. Both carry the same claim set; the refresh token only
// differs in lifetime.
func (i *Issuer) issuePair(ctx context.Context, base Claims, subject string) (*TokenPair, error) {
	key, err := i.keys.SigningKey(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	accessExpiry := now.Add(i.config.AccessTokenTTL)
	refreshExpiry := now.Add(i.config.RefreshTokenTTL)

	accessToken, err := i.sign(key, base, subject, now, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := i.sign(key, base, subject, now, refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.config.AccessTokenTTL.Seconds()),
		ExpiresAt:    accessExpiry,
	}, nil
}

// sign creates a single RS256 token. iat == nbf by construction, which
// satisfies the iat <= nbf <= exp issuance invariant.
func (i *Issuer) sign(key *SigningKey, base Claims, subject string, issuedAt, expiresAt time.Time) (string, error) {
	claims := base
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    i.config.Issuer,
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &claims)
	token.Header["kid"] = key.Version

	signed, err := token.SignedString(key.Key)
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}
