package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artstore/artstore/pkg/admin"
	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/auth"
)

// generatedPasswordLength is the size of server-issued admin passwords.
const generatedPasswordLength = 16

// AdminUserHandler serves the operator account registry.
type AdminUserHandler struct {
	store  *store.Store
	policy auth.PasswordPolicy
	audit  auditor
	now    func() time.Time
}

// NewAdminUserHandler creates the admin-user endpoints.
func NewAdminUserHandler(st *store.Store, audit *admin.AuditWriter) *AdminUserHandler {
	return &AdminUserHandler{
		store:  st,
		policy: auth.DefaultAdminPolicy(),
		audit:  auditor{writer: audit},
		now:    time.Now,
	}
}

// CreateAdminUserRequest is the body for POST /api/v1/admin-users. When
// password is omitted the server generates one and returns it once.
type CreateAdminUserRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password,omitempty"`
	Role        string `json:"role,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// UpdateAdminUserRequest is the body for PATCH /api/v1/admin-users/{id}.
type UpdateAdminUserRequest struct {
	Role        *string `json:"role,omitempty"`
	Email       *string `json:"email,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// adminUserCreated carries the one-time plaintext password for accounts the
// server generated a password for.
type adminUserCreated struct {
	User     *models.AdminUser `json:"user"`
	Password string            `json:"password,omitempty"`
}

// Create handles POST /api/v1/admin-users.
func (h *AdminUserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAdminUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" {
		api.BadRequest(w, "username is required")
		return
	}

	role := auth.RoleReadOnly
	if req.Role != "" {
		role = strings.ToUpper(req.Role)
		if !auth.ValidRole(role) {
			api.BadRequest(w, fmt.Sprintf("Unknown role %q", req.Role))
			return
		}
	}

	password := req.Password
	generated := password == ""
	if generated {
		var err error
		password, err = auth.GeneratePassword(h.policy, generatedPasswordLength)
		if err != nil {
			api.InternalServerError(w, "Failed to generate password")
			return
		}
	} else if err := h.policy.Validate(password); err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		api.InternalServerError(w, "Failed to hash password")
		return
	}

	user := &models.AdminUser{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         role,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		Enabled:      true,
		// New operators set their own password on first login.
		MustChangePassword: generated,
	}

	if _, err := h.store.CreateAdminUser(r.Context(), user); err != nil {
		if errors.Is(err, models.ErrDuplicateAdmin) {
			api.Conflict(w, "An admin user with this username already exists")
			return
		}
		api.InternalServerError(w, "Failed to create admin user")
		return
	}

	h.audit.record(r, "admin_user.create", user.Username, role)

	resp := adminUserCreated{User: user}
	if generated {
		resp.Password = password
	}
	api.WriteJSONCreated(w, resp)
}

// List handles GET /api/v1/admin-users.
func (h *AdminUserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListAdminUsers(r.Context())
	if err != nil {
		api.InternalServerError(w, "Failed to list admin users")
		return
	}
	api.WriteJSONOK(w, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// Get handles GET /api/v1/admin-users/{id}.
func (h *AdminUserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}
	api.WriteJSONOK(w, user)
}

// Update handles PATCH /api/v1/admin-users/{id}. Role and enablement of
// system users never change.
func (h *AdminUserHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}

	var req UpdateAdminUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if user.IsSystem && (req.Role != nil || req.Enabled != nil) {
		api.Forbidden(w, "System users cannot change role or enablement")
		return
	}
	if req.Role != nil {
		role := strings.ToUpper(*req.Role)
		if !auth.ValidRole(role) {
			api.BadRequest(w, fmt.Sprintf("Unknown role %q", *req.Role))
			return
		}
		user.Role = role
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Enabled != nil {
		user.Enabled = *req.Enabled
	}

	if err := h.store.UpdateAdminUser(r.Context(), user); err != nil {
		api.InternalServerError(w, "Failed to update admin user")
		return
	}

	h.audit.record(r, "admin_user.update", user.Username, "")
	api.WriteJSONOK(w, user)
}

// Delete handles DELETE /api/v1/admin-users/{id}.
func (h *AdminUserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}

	err := h.store.DeleteAdminUser(r.Context(), user.ID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAdminNotFound):
			api.NotFound(w, "Admin user not found")
		case errors.Is(err, models.ErrAdminUndeletable):
			api.Forbidden(w, "System users cannot be deleted")
		default:
			api.InternalServerError(w, "Failed to delete admin user")
		}
		return
	}

	h.audit.record(r, "admin_user.delete", user.Username, "")
	api.WriteNoContent(w)
}

// ResetPassword handles POST /api/v1/admin-users/{id}/reset-password. A new
// password is generated, the lockout clears, and the user must change it on
// next login. The plaintext appears only in this response.
func (h *AdminUserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}

	password, err := auth.GeneratePassword(h.policy, generatedPasswordLength)
	if err != nil {
		api.InternalServerError(w, "Failed to generate password")
		return
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		api.InternalServerError(w, "Failed to hash password")
		return
	}

	user.PushPasswordHistory()
	user.PasswordHash = hash
	user.MustChangePassword = true
	user.FailedLoginCount = 0
	user.LockedUntil = nil

	if err := h.store.UpdateAdminUser(r.Context(), user); err != nil {
		api.InternalServerError(w, "Failed to reset password")
		return
	}

	h.audit.record(r, "admin_user.reset_password", user.Username, "")
	api.WriteJSONOK(w, adminUserCreated{User: user, Password: password})
}

func (h *AdminUserHandler) load(w http.ResponseWriter, r *http.Request) (*models.AdminUser, bool) {
	id := chi.URLParam(r, "id")
	user, err := h.store.GetAdminUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAdminNotFound) {
			api.NotFound(w, "Admin user not found")
			return nil, false
		}
		api.InternalServerError(w, "Failed to load admin user")
		return nil, false
	}
	return user, true
}
