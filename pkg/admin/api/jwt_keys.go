package api

import (
	"errors"
	"net/http"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/admin"
	"github.com/artstore/artstore/pkg/admin/keys"
	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/auth"
)

// JWTKeyHandler exposes signing-key status and manual rotation.
type JWTKeyHandler struct {
	store    *store.Store
	provider *keys.Provider
	rotator  *keys.Rotator
	audit    auditor
}

// NewJWTKeyHandler creates the JWT key endpoints.
func NewJWTKeyHandler(st *store.Store, provider *keys.Provider, rotator *keys.Rotator, audit *admin.AuditWriter) *JWTKeyHandler {
	return &JWTKeyHandler{
		store:    st,
		provider: provider,
		rotator:  rotator,
		audit:    auditor{writer: audit},
	}
}

// keyStatusResponse is the body for GET /api/v1/jwt-keys. Private key
// material never leaves the admin store.
type keyStatusResponse struct {
	SignerVersion string            `json:"signer_version,omitempty"`
	ActiveCount   int               `json:"active_count"`
	Keys          []keyStatusRecord `json:"keys"`
}

type keyStatusRecord struct {
	Version       string `json:"version"`
	CreatedAt     string `json:"created_at"`
	ExpiresAt     string `json:"expires_at"`
	IsActive      bool   `json:"is_active"`
	RotationCount int    `json:"rotation_count"`
}

// rotateResponse is the body for POST /api/v1/jwt-keys/rotate.
type rotateResponse struct {
	Rotated       bool   `json:"rotated"`
	SignerVersion string `json:"signer_version,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// Status handles GET /api/v1/jwt-keys.
func (h *JWTKeyHandler) Status(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListJWTKeys(r.Context())
	if err != nil {
		api.InternalServerError(w, "Failed to list signing keys")
		return
	}

	resp := keyStatusResponse{Keys: make([]keyStatusRecord, 0, len(rows))}
	for _, key := range rows {
		if key.IsActive {
			resp.ActiveCount++
		}
		resp.Keys = append(resp.Keys, keyStatusRecord{
			Version:       key.Version,
			CreatedAt:     key.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			ExpiresAt:     key.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
			IsActive:      key.IsActive,
			RotationCount: key.RotationCount,
		})
	}

	if h.provider != nil {
		signer, err := h.provider.SigningKey(r.Context())
		switch {
		case err == nil:
			resp.SignerVersion = signer.Version
		case errors.Is(err, auth.ErrNoSigningKey):
			// No active keys yet; status still renders.
		default:
			logger.WarnCtx(r.Context(), "failed to resolve current signer", logger.Err(err))
		}
	}

	api.WriteJSONOK(w, resp)
}

// Rotate handles POST /api/v1/jwt-keys/rotate. Rotation runs immediately
// regardless of expiry; concurrent calls race the distributed lock and the
// losers return without touching the key table.
func (h *JWTKeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	rotated, err := h.rotator.ForceRotate(r.Context())
	if err != nil {
		api.InternalServerError(w, "Key rotation failed")
		return
	}

	resp := rotateResponse{Rotated: rotated}
	if !rotated {
		resp.Detail = "Rotation lock held by another replica"
		api.WriteJSONOK(w, resp)
		return
	}

	if h.provider != nil {
		if signer, err := h.provider.SigningKey(r.Context()); err == nil {
			resp.SignerVersion = signer.Version
		}
	}

	h.audit.record(r, "jwt_key.rotate", resp.SignerVersion, "")
	api.WriteJSONOK(w, resp)
}
