package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/admin"
	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/api/middleware"
	"github.com/artstore/artstore/pkg/auth"
)

// AuthHandler serves interactive admin-user authentication.
type AuthHandler struct {
	store    *store.Store
	issuer   *auth.Issuer
	verifier *auth.Verifier
	policy   auth.PasswordPolicy
	audit    auditor
	now      func() time.Time
}

// NewAuthHandler creates the auth endpoints over the given store and token
// services.
func NewAuthHandler(st *store.Store, issuer *auth.Issuer, verifier *auth.Verifier, audit *admin.AuditWriter) *AuthHandler {
	return &AuthHandler{
		store:    st,
		issuer:   issuer,
		verifier: verifier,
		policy:   auth.DefaultAdminPolicy(),
		audit:    auditor{writer: audit},
		now:      time.Now,
	}
}

// LoginRequest is the request body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body for login and refresh.
type LoginResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	TokenType    string            `json:"token_type"`
	ExpiresIn    int64             `json:"expires_in"`
	ExpiresAt    time.Time         `json:"expires_at"`
	User         AdminUserResponse `json:"user"`
}

// AdminUserResponse is the sanitized admin-user representation.
type AdminUserResponse struct {
	ID                 string     `json:"id"`
	Username           string     `json:"username"`
	Role               string     `json:"role"`
	Email              string     `json:"email,omitempty"`
	DisplayName        string     `json:"display_name,omitempty"`
	Enabled            bool       `json:"enabled"`
	IsSystem           bool       `json:"is_system"`
	MustChangePassword bool       `json:"must_change_password"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// RefreshRequest is the request body for POST /api/v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest is the request body for POST /api/v1/auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login handles POST /api/v1/auth/login.
//
// The lockout window is checked before the password so a locked account
// leaks nothing about credential validity.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		api.BadRequest(w, "Username and password are required")
		return
	}

	ctx := r.Context()
	now := h.now()

	user, err := h.store.GetAdminUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, models.ErrAdminNotFound) {
			api.Unauthorized(w, "Invalid username or password")
			return
		}
		api.InternalServerError(w, "Authentication failed")
		return
	}

	if user.Locked(now) {
		h.audit.record(r, "auth.login_locked", user.Username, "login rejected during lockout window")
		api.Forbidden(w, "Account is temporarily locked")
		return
	}
	if !user.Enabled {
		api.Forbidden(w, "Account is disabled")
		return
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		user.RecordFailedLogin(now)
		if err := h.store.UpdateAdminUser(ctx, user); err != nil {
			logger.WarnCtx(ctx, "failed to persist login failure",
				"username", user.Username, logger.Err(err))
		}
		h.audit.record(r, "auth.login_failed", user.Username, "invalid password")
		api.Unauthorized(w, "Invalid username or password")
		return
	}

	user.RecordLogin(now)
	if err := h.store.UpdateAdminUser(ctx, user); err != nil {
		logger.WarnCtx(ctx, "failed to persist login success",
			"username", user.Username, logger.Err(err))
	}

	pair, err := h.issuer.IssueAdminUser(ctx, user.Username, user.Role)
	if err != nil {
		api.InternalServerError(w, "Failed to generate token")
		return
	}

	h.audit.record(r, "auth.login", user.Username, "")
	api.WriteJSONOK(w, loginResponse(pair, user))
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		api.BadRequest(w, "Refresh token is required")
		return
	}

	ctx := r.Context()
	claims, err := h.verifier.Verify(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			api.Unauthorized(w, "Refresh token has expired")
			return
		}
		api.Unauthorized(w, "Invalid refresh token")
		return
	}
	if !claims.IsAdminUser() {
		api.Unauthorized(w, "Not an admin token")
		return
	}

	user, err := h.store.GetAdminUserByUsername(ctx, claims.Subject)
	if err != nil {
		api.Unauthorized(w, "User not found")
		return
	}
	if !user.Enabled {
		api.Forbidden(w, "Account is disabled")
		return
	}
	if user.Locked(h.now()) {
		api.Forbidden(w, "Account is temporarily locked")
		return
	}

	pair, err := h.issuer.IssueAdminUser(ctx, user.Username, user.Role)
	if err != nil {
		api.InternalServerError(w, "Failed to generate token")
		return
	}
	api.WriteJSONOK(w, loginResponse(pair, user))
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		api.Unauthorized(w, "Authentication required")
		return
	}
	user, err := h.store.GetAdminUserByUsername(r.Context(), claims.Subject)
	if err != nil {
		api.Unauthorized(w, "User not found")
		return
	}
	api.WriteJSONOK(w, adminUserResponse(user))
}

// ChangePassword handles POST /api/v1/auth/change-password for the
// authenticated user. The new password must satisfy the policy and must not
// match the current password or any of the last five.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		api.Unauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		api.BadRequest(w, "Current and new password are required")
		return
	}

	ctx := r.Context()
	user, err := h.store.GetAdminUserByUsername(ctx, claims.Subject)
	if err != nil {
		api.Unauthorized(w, "User not found")
		return
	}
	if !auth.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		api.Unauthorized(w, "Current password is incorrect")
		return
	}
	if err := h.policy.Validate(req.NewPassword); err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	if passwordReused(user, req.NewPassword) {
		api.BadRequest(w, "New password was used recently")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		api.InternalServerError(w, "Failed to hash password")
		return
	}
	user.PushPasswordHistory()
	user.PasswordHash = hash
	user.MustChangePassword = false
	if err := h.store.UpdateAdminUser(ctx, user); err != nil {
		api.InternalServerError(w, "Failed to update password")
		return
	}

	h.audit.record(r, "auth.change_password", user.Username, "")
	api.WriteNoContent(w)
}

// passwordReused reports whether the candidate matches the current hash or
// any retained history entry.
func passwordReused(user *models.AdminUser, candidate string) bool {
	if auth.VerifyPassword(candidate, user.PasswordHash) {
		return true
	}
	for _, old := range user.HistoryHashes() {
		if auth.VerifyPassword(candidate, old) {
			return true
		}
	}
	return false
}

func loginResponse(pair *auth.TokenPair, user *models.AdminUser) LoginResponse {
	return LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		ExpiresAt:    pair.ExpiresAt,
		User:         adminUserResponse(user),
	}
}

func adminUserResponse(user *models.AdminUser) AdminUserResponse {
	return AdminUserResponse{
		ID:                 user.ID,
		Username:           user.Username,
		Role:               user.Role,
		Email:              user.Email,
		DisplayName:        user.DisplayName,
		Enabled:            user.Enabled,
		IsSystem:           user.IsSystem,
		MustChangePassword: user.MustChangePassword,
		LastLoginAt:        user.LastLoginAt,
		CreatedAt:          user.CreatedAt,
	}
}
