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
	"github.com/artstore/artstore/pkg/auth"
)

// OAuth2 error codes per RFC 6749 §5.2.
const (
	oauthInvalidRequest       = "invalid_request"
	oauthInvalidClient        = "invalid_client"
	oauthInvalidGrant         = "invalid_grant"
	oauthUnsupportedGrantType = "unsupported_grant_type"
)

// dummyBcryptHash is compared against when the client_id does not resolve,
// so lookup misses cost the same as a wrong secret.
const dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// OAuthHandler serves the RFC 6749 client-credentials token endpoint for
// service accounts.
type OAuthHandler struct {
	store    *store.Store
	issuer   *auth.Issuer
	verifier *auth.Verifier
	audit    auditor
	now      func() time.Time
}

// NewOAuthHandler creates the token endpoint over the given store.
func NewOAuthHandler(st *store.Store, issuer *auth.Issuer, verifier *auth.Verifier, audit *admin.AuditWriter) *OAuthHandler {
	return &OAuthHandler{
		store:    st,
		issuer:   issuer,
		verifier: verifier,
		audit:    auditor{writer: audit},
		now:      time.Now,
	}
}

// oauthError is the RFC 6749 §5.2 error body.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	api.WriteJSON(w, status, oauthError{Error: code, ErrorDescription: description})
}

// tokenResponse is the RFC 6749 §5.1 success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Token handles POST /api/v1/oauth/token with a form-encoded body.
// grant_type=client_credentials authenticates with client_id and
// client_secret; grant_type=refresh_token exchanges a prior refresh token.
func (h *OAuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidRequest, "malformed form body")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "client_credentials":
		h.clientCredentials(w, r)
	case "refresh_token":
		h.refreshToken(w, r)
	case "":
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidRequest, "grant_type is required")
	default:
		writeOAuthError(w, http.StatusBadRequest, oauthUnsupportedGrantType, "only client_credentials and refresh_token are supported")
	}
}

func (h *OAuthHandler) clientCredentials(w http.ResponseWriter, r *http.Request) {
	clientID := r.PostForm.Get("client_id")
	clientSecret := r.PostForm.Get("client_secret")
	if clientID == "" || clientSecret == "" {
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidRequest, "client_id and client_secret are required")
		return
	}

	ctx := r.Context()
	account, err := h.store.GetServiceAccountByClientID(ctx, clientID)
	if err != nil {
		// Equalize timing with the found-but-wrong-secret path.
		auth.VerifyPassword(clientSecret, dummyBcryptHash)
		if errors.Is(err, models.ErrAccountNotFound) {
			writeOAuthError(w, http.StatusUnauthorized, oauthInvalidClient, "client authentication failed")
			return
		}
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "account lookup failed")
		return
	}

	if !auth.VerifyPassword(clientSecret, account.ClientSecretHash) {
		h.audit.record(r, "oauth.token_rejected", clientID, "invalid client secret")
		writeOAuthError(w, http.StatusUnauthorized, oauthInvalidClient, "client authentication failed")
		return
	}
	if !account.Usable(h.now()) {
		writeOAuthError(w, http.StatusUnauthorized, oauthInvalidClient, "account is not active")
		return
	}

	h.issue(w, r, account)
}

func (h *OAuthHandler) refreshToken(w http.ResponseWriter, r *http.Request) {
	raw := r.PostForm.Get("refresh_token")
	if raw == "" {
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidRequest, "refresh_token is required")
		return
	}

	ctx := r.Context()
	claims, err := h.verifier.Verify(ctx, raw)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidGrant, "refresh token is invalid or expired")
		return
	}
	if !claims.IsServiceAccount() || claims.ClientID == "" {
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidGrant, "not a service account token")
		return
	}

	account, err := h.store.GetServiceAccountByClientID(ctx, claims.ClientID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidGrant, "account no longer exists")
		return
	}
	if !account.Usable(h.now()) {
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidGrant, "account is not active")
		return
	}

	h.issue(w, r, account)
}

func (h *OAuthHandler) issue(w http.ResponseWriter, r *http.Request, account *models.ServiceAccount) {
	ctx := r.Context()
	pair, err := h.issuer.IssueServiceAccount(ctx, account.ClientID, account.Name, account.Role, account.RateLimit)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "token generation failed")
		return
	}

	if err := h.store.TouchServiceAccountUsage(ctx, account.ClientID, h.now()); err != nil {
		logger.DebugCtx(ctx, "failed to stamp service account usage",
			logger.ClientID(account.ClientID), logger.Err(err))
	}

	api.WriteJSONOK(w, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}
