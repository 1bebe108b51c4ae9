package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validClaims() *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ID:        "jti-0001",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Type: TokenTypeAdminUser,
		Role: RoleAdmin,
		Name: "alice",
	}
}

func TestClaimsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Claims)
		wantErr error
	}{
		{
			name:   "valid claims pass",
			mutate: func(*Claims) {},
		},
		{
			name:   "legacy access type accepted",
			mutate: func(c *Claims) { c.Type = TokenTypeAccess },
		},
		{
			name:   "legacy refresh type accepted",
			mutate: func(c *Claims) { c.Type = TokenTypeRefresh },
		},
		{
			name:    "missing subject",
			mutate:  func(c *Claims) { c.Subject = "" },
			wantErr: ErrMissingClaim,
		},
		{
			name:    "missing type",
			mutate:  func(c *Claims) { c.Type = "" },
			wantErr: ErrMissingClaim,
		},
		{
			name:    "unknown type",
			mutate:  func(c *Claims) { c.Type = "magic" },
			wantErr: ErrInvalidTokenType,
		},
		{
			name:    "missing role",
			mutate:  func(c *Claims) { c.Role = "" },
			wantErr: ErrMissingClaim,
		},
		{
			name:    "missing name",
			mutate:  func(c *Claims) { c.Name = "" },
			wantErr: ErrMissingClaim,
		},
		{
			name:    "missing jti",
			mutate:  func(c *Claims) { c.ID = "" },
			wantErr: ErrMissingClaim,
		},
		{
			name:    "missing iat",
			mutate:  func(c *Claims) { c.IssuedAt = nil },
			wantErr: ErrMissingClaim,
		},
		{
			name:    "missing exp",
			mutate:  func(c *Claims) { c.ExpiresAt = nil },
			wantErr: ErrMissingClaim,
		},
		{
			name:    "missing nbf",
			mutate:  func(c *Claims) { c.NotBefore = nil },
			wantErr: ErrMissingClaim,
		},
		{
			name: "iat after nbf",
			mutate: func(c *Claims) {
				c.IssuedAt = jwt.NewNumericDate(c.NotBefore.Add(time.Minute))
			},
			wantErr: ErrTimestampOrder,
		},
		{
			name: "nbf after exp",
			mutate: func(c *Claims) {
				c.NotBefore = jwt.NewNumericDate(c.ExpiresAt.Add(time.Minute))
				c.IssuedAt = c.NotBefore
			},
			wantErr: ErrTimestampOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims := validClaims()
			tt.mutate(claims)

			err := claims.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClaimsEffectiveType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		claims   Claims
		want     TokenType
	}{
		{
			name:   "unified admin user",
			claims: Claims{Type: TokenTypeAdminUser},
			want:   TokenTypeAdminUser,
		},
		{
			name:   "unified service account",
			claims: Claims{Type: TokenTypeServiceAccount},
			want:   TokenTypeServiceAccount,
		},
		{
			name:   "legacy access with sa_ client id",
			claims: Claims{Type: TokenTypeAccess, ClientID: "sa_reporting"},
			want:   TokenTypeServiceAccount,
		},
		{
			name:   "legacy refresh with sa_ client id",
			claims: Claims{Type: TokenTypeRefresh, ClientID: "sa_ingest"},
			want:   TokenTypeServiceAccount,
		},
		{
			name:   "legacy access without client id",
			claims: Claims{Type: TokenTypeAccess},
			want:   TokenTypeAdminUser,
		},
		{
			name:   "legacy access with non-prefixed client id",
			claims: Claims{Type: TokenTypeAccess, ClientID: "web_dashboard"},
			want:   TokenTypeAdminUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.claims.EffectiveType())
			assert.Equal(t, tt.want == TokenTypeServiceAccount, tt.claims.IsServiceAccount())
			assert.Equal(t, tt.want == TokenTypeAdminUser, tt.claims.IsAdminUser())
		})
	}
}

func TestRoleAtLeast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role string
		min  string
		want bool
	}{
		{RoleSuperAdmin, RoleAdmin, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleOperator, RoleAdmin, false},
		{RoleOperator, RoleOperator, true},
		{RoleService, RoleOperator, false},
		{RoleReadOnly, RoleService, false},
		{RoleSuperAdmin, RoleReadOnly, true},
		{"MYSTERY", RoleReadOnly, false},
		{RoleAdmin, "MYSTERY", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RoleAtLeast(tt.role, tt.min),
			"RoleAtLeast(%q, %q)", tt.role, tt.min)
	}
}

func TestValidRole(t *testing.T) {
	t.Parallel()

	for _, role := range []string{RoleReadOnly, RoleService, RoleOperator, RoleAdmin, RoleSuperAdmin} {
		assert.True(t, ValidRole(role), role)
	}
	assert.False(t, ValidRole("root"))
	assert.False(t, ValidRole(""))
}
