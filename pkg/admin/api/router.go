// Package api exposes the admin module over HTTP: operator and service
// account management, the storage-element registry, JWT key lifecycle, the
// cluster file registry, and the OAuth2 token endpoint.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artstore/artstore/pkg/admin"
	"github.com/artstore/artstore/pkg/admin/keys"
	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/api/middleware"
	"github.com/artstore/artstore/pkg/auth"
	"github.com/artstore/artstore/pkg/events"
)

// RouterOptions carries everything the admin router serves.
type RouterOptions struct {
	Store    *store.Store
	Issuer   *auth.Issuer
	Verifier *auth.Verifier

	// Topology republishes the element snapshot after registry mutations.
	// Nil skips publication, which only test setups use.
	Topology *admin.Topology

	// Provider resolves the current signer for the key status endpoint.
	Provider *keys.Provider

	// Rotator serves manual key rotation.
	Rotator *keys.Rotator

	// Producer emits file registry events. Nil disables the event plane.
	Producer *events.Producer

	// Audit queues audit entries for mutating requests. Nil disables
	// auditing, which only test setups use.
	Audit *admin.AuditWriter

	// ReadinessChecks plug service dependencies into /health/ready.
	ReadinessChecks []api.ReadinessCheck

	// RequestTimeout bounds a single request.
	RequestTimeout time.Duration
}

// NewRouter builds the admin module's HTTP surface.
//
// Routes:
//   - POST /api/v1/auth/login, /refresh - admin sessions, unauthenticated
//   - GET  /api/v1/auth/me, POST /change-password - session introspection
//   - POST /api/v1/oauth/token - RFC 6749 client credentials
//   - /api/v1/storage-elements - CRUD + change-mode (mutations ADMIN)
//   - /api/v1/service-accounts - CRUD + rotate-secret (admin users, ADMIN)
//   - /api/v1/admin-users - CRUD + reset-password (SUPER_ADMIN mutations)
//   - GET  /api/v1/jwt-keys/status, POST /rotate - key lifecycle (ADMIN)
//   - /api/v1/files - registry: register (services), finalize/delete
//     (OPERATOR), list/get (any principal)
//   - GET /health/live, /health/ready - probes, unauthenticated
func NewRouter(opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	r := api.NewRouter(opts.RequestTimeout)

	api.NewHealthHandler("admin-module", opts.ReadinessChecks...).Mount(r)

	authn := NewAuthHandler(opts.Store, opts.Issuer, opts.Verifier, opts.Audit)
	oauth := NewOAuthHandler(opts.Store, opts.Issuer, opts.Verifier, opts.Audit)
	elements := NewElementHandler(opts.Store, opts.Topology, opts.Audit)
	accounts := NewServiceAccountHandler(opts.Store, opts.Audit)
	users := NewAdminUserHandler(opts.Store, opts.Audit)
	jwtKeys := NewJWTKeyHandler(opts.Store, opts.Provider, opts.Rotator, opts.Audit)
	files := NewFileHandler(opts.Store, opts.Producer, opts.Audit)

	authenticated := func(r chi.Router) chi.Router {
		if opts.Verifier != nil {
			return r.With(middleware.JWTAuth(opts.Verifier))
		}
		return r
	}
	withRole := func(r chi.Router, min string) chi.Router {
		if opts.Verifier != nil {
			return r.With(middleware.RequireRole(min))
		}
		return r
	}
	adminOnly := func(r chi.Router) chi.Router {
		if opts.Verifier != nil {
			return r.With(middleware.RequireAdminUser())
		}
		return r
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Credential exchange happens in the request body, not the header.
		r.Post("/oauth/token", oauth.Token)
		r.Post("/auth/login", authn.Login)
		r.Post("/auth/refresh", authn.Refresh)

		r.Route("/auth", func(r chi.Router) {
			g := authenticated(r)
			g.Get("/me", authn.Me)
			adminOnly(g).Post("/change-password", authn.ChangePassword)
		})

		r.Route("/storage-elements", func(r chi.Router) {
			g := authenticated(r)
			g.Get("/", elements.List)
			g.Get("/{id}", elements.Get)

			mut := withRole(g, auth.RoleAdmin)
			mut.Post("/", elements.Create)
			mut.Patch("/{id}", elements.Update)
			mut.Delete("/{id}", elements.Delete)
			mut.Post("/{id}/change-mode", elements.ChangeMode)
		})

		r.Route("/service-accounts", func(r chi.Router) {
			g := withRole(adminOnly(authenticated(r)), auth.RoleAdmin)
			g.Post("/", accounts.Create)
			g.Get("/", accounts.List)
			g.Get("/{id}", accounts.Get)
			g.Patch("/{id}", accounts.Update)
			g.Delete("/{id}", accounts.Delete)
			g.Post("/{id}/rotate-secret", accounts.RotateSecret)
		})

		r.Route("/admin-users", func(r chi.Router) {
			g := withRole(adminOnly(authenticated(r)), auth.RoleAdmin)
			g.Get("/", users.List)
			g.Get("/{id}", users.Get)

			mut := withRole(g, auth.RoleSuperAdmin)
			mut.Post("/", users.Create)
			mut.Patch("/{id}", users.Update)
			mut.Delete("/{id}", users.Delete)
			mut.Post("/{id}/reset-password", users.ResetPassword)
		})

		r.Route("/jwt-keys", func(r chi.Router) {
			g := withRole(authenticated(r), auth.RoleAdmin)
			g.Get("/status", jwtKeys.Status)
			g.Post("/rotate", jwtKeys.Rotate)
		})

		r.Route("/files", func(r chi.Router) {
			g := authenticated(r)
			g.Get("/", files.List)
			g.Get("/{id}", files.Get)

			// The ingester registers uploads with its service credential.
			withRole(g, auth.RoleService).Post("/", files.Register)

			mut := withRole(g, auth.RoleOperator)
			mut.Post("/{id}/finalize", files.Finalize)
			mut.Delete("/{id}", files.Delete)
		})
	})

	return r
}
