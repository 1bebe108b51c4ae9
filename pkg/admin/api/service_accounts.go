package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/artstore/artstore/pkg/admin"
	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/auth"
)

// defaultSecretTTL is how long a freshly minted client secret stays valid.
const defaultSecretTTL = 90 * 24 * time.Hour

// ServiceAccountHandler serves the OAuth2 service-account registry.
type ServiceAccountHandler struct {
	store  *store.Store
	policy auth.PasswordPolicy
	audit  auditor
	now    func() time.Time
}

// NewServiceAccountHandler creates the service-account endpoints.
func NewServiceAccountHandler(st *store.Store, audit *admin.AuditWriter) *ServiceAccountHandler {
	return &ServiceAccountHandler{
		store:  st,
		policy: auth.DefaultSystemPolicy(),
		audit:  auditor{writer: audit},
		now:    time.Now,
	}
}

// CreateServiceAccountRequest is the body for POST /api/v1/service-accounts.
type CreateServiceAccountRequest struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	RateLimit   int    `json:"rate_limit,omitempty"`
	Environment string `json:"environment,omitempty"`
	Description string `json:"description,omitempty"`
}

// UpdateServiceAccountRequest is the body for PATCH
// /api/v1/service-accounts/{id}.
type UpdateServiceAccountRequest struct {
	Role        *string `json:"role,omitempty"`
	Status      *string `json:"status,omitempty"`
	RateLimit   *int    `json:"rate_limit,omitempty"`
	Environment *string `json:"environment,omitempty"`
	Description *string `json:"description,omitempty"`
}

// RotateSecretRequest is the body for POST
// /api/v1/service-accounts/{id}/rotate-secret. client_secret may supply the
// replacement (migrations); omitted means the server generates one.
type RotateSecretRequest struct {
	ClientSecret string `json:"client_secret,omitempty"`
}

// secretResponse wraps an account with the one-time plaintext secret.
type secretResponse struct {
	ServiceAccount *models.ServiceAccount `json:"service_account"`
	ClientSecret   string                 `json:"client_secret"`
}

// Create handles POST /api/v1/service-accounts. The generated client secret
// is in the response and nowhere else; only its hash is stored.
func (h *ServiceAccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceAccountRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		api.BadRequest(w, "name is required")
		return
	}

	role := auth.RoleService
	if req.Role != "" {
		role = strings.ToUpper(req.Role)
		if !auth.ValidRole(role) {
			api.BadRequest(w, fmt.Sprintf("Unknown role %q", req.Role))
			return
		}
	}
	rateLimit := req.RateLimit
	if rateLimit <= 0 {
		rateLimit = 60
	}

	secret, err := auth.GenerateClientSecret()
	if err != nil {
		api.InternalServerError(w, "Failed to generate client secret")
		return
	}
	hash, err := auth.HashPassword(secret)
	if err != nil {
		api.InternalServerError(w, "Failed to hash client secret")
		return
	}

	expires := h.now().Add(defaultSecretTTL)
	account := &models.ServiceAccount{
		Name:             req.Name,
		ClientID:         newClientID(),
		ClientSecretHash: hash,
		Role:             role,
		Status:           models.AccountActive,
		RateLimit:        rateLimit,
		Environment:      req.Environment,
		Description:      req.Description,
		SecretExpiresAt:  &expires,
	}

	if _, err := h.store.CreateServiceAccount(r.Context(), account); err != nil {
		if errors.Is(err, models.ErrDuplicateAccount) {
			api.Conflict(w, "A service account with this name already exists")
			return
		}
		api.InternalServerError(w, "Failed to create service account")
		return
	}

	h.audit.record(r, "service_account.create", account.ClientID, account.Name)
	api.WriteJSONCreated(w, secretResponse{ServiceAccount: account, ClientSecret: secret})
}

// List handles GET /api/v1/service-accounts.
func (h *ServiceAccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListServiceAccounts(r.Context())
	if err != nil {
		api.InternalServerError(w, "Failed to list service accounts")
		return
	}
	api.WriteJSONOK(w, map[string]any{
		"service_accounts": accounts,
		"count":            len(accounts),
	})
}

// Get handles GET /api/v1/service-accounts/{id}.
func (h *ServiceAccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, ok := h.load(w, r)
	if !ok {
		return
	}
	api.WriteJSONOK(w, account)
}

// Update handles PATCH /api/v1/service-accounts/{id}. System accounts are
// immutable.
func (h *ServiceAccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	account, ok := h.load(w, r)
	if !ok {
		return
	}
	if account.IsSystem {
		api.Forbidden(w, "System accounts cannot be modified")
		return
	}

	var req UpdateServiceAccountRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Role != nil {
		role := strings.ToUpper(*req.Role)
		if !auth.ValidRole(role) {
			api.BadRequest(w, fmt.Sprintf("Unknown role %q", *req.Role))
			return
		}
		account.Role = role
	}
	if req.Status != nil {
		status := models.AccountStatus(strings.ToUpper(*req.Status))
		if !status.IsValid() {
			api.BadRequest(w, fmt.Sprintf("Unknown status %q", *req.Status))
			return
		}
		account.Status = status
	}
	if req.RateLimit != nil {
		if *req.RateLimit <= 0 {
			api.BadRequest(w, "rate_limit must be positive")
			return
		}
		account.RateLimit = *req.RateLimit
	}
	if req.Environment != nil {
		account.Environment = *req.Environment
	}
	if req.Description != nil {
		account.Description = *req.Description
	}

	if err := h.store.UpdateServiceAccount(r.Context(), account); err != nil {
		api.InternalServerError(w, "Failed to update service account")
		return
	}

	h.audit.record(r, "service_account.update", account.ClientID, "")
	api.WriteJSONOK(w, account)
}

// Delete handles DELETE /api/v1/service-accounts/{id}.
func (h *ServiceAccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.DeleteServiceAccount(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountNotFound):
			api.NotFound(w, "Service account not found")
		case errors.Is(err, models.ErrAccountImmutable):
			api.Forbidden(w, "System accounts cannot be deleted")
		default:
			api.InternalServerError(w, "Failed to delete service account")
		}
		return
	}

	h.audit.record(r, "service_account.delete", id, "")
	api.WriteNoContent(w)
}

// RotateSecret handles POST /api/v1/service-accounts/{id}/rotate-secret.
// The old hash moves into the history; recent secrets cannot return.
func (h *ServiceAccountHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	account, ok := h.load(w, r)
	if !ok {
		return
	}

	var req RotateSecretRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}

	secret := req.ClientSecret
	if secret != "" {
		if err := h.policy.Validate(secret); err != nil {
			api.BadRequest(w, err.Error())
			return
		}
		if secretReused(account, secret) {
			api.BadRequest(w, "Secret was used recently")
			return
		}
	} else {
		generated, err := auth.GenerateClientSecret()
		if err != nil {
			api.InternalServerError(w, "Failed to generate client secret")
			return
		}
		secret = generated
	}

	hash, err := auth.HashPassword(secret)
	if err != nil {
		api.InternalServerError(w, "Failed to hash client secret")
		return
	}

	account.PushSecretHistory()
	account.ClientSecretHash = hash
	expires := h.now().Add(defaultSecretTTL)
	account.SecretExpiresAt = &expires

	if err := h.store.UpdateServiceAccount(r.Context(), account); err != nil {
		api.InternalServerError(w, "Failed to rotate client secret")
		return
	}

	h.audit.record(r, "service_account.rotate_secret", account.ClientID, "")
	api.WriteJSONOK(w, secretResponse{ServiceAccount: account, ClientSecret: secret})
}

// secretReused reports whether the candidate matches the current hash or
// any retained history entry.
func secretReused(account *models.ServiceAccount, candidate string) bool {
	if auth.VerifyPassword(candidate, account.ClientSecretHash) {
		return true
	}
	for _, old := range account.HistoryHashes() {
		if auth.VerifyPassword(candidate, old) {
			return true
		}
	}
	return false
}

func (h *ServiceAccountHandler) load(w http.ResponseWriter, r *http.Request) (*models.ServiceAccount, bool) {
	id := chi.URLParam(r, "id")
	account, err := h.store.GetServiceAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			api.NotFound(w, "Service account not found")
			return nil, false
		}
		api.InternalServerError(w, "Failed to load service account")
		return nil, false
	}
	return account, true
}

// newClientID mints an opaque client identifier with the service-account
// prefix every verifier recognizes.
func newClientID() string {
	return auth.ServiceAccountClientPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
