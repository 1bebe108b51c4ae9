// Package api implements the admin module's HTTP surface: registry CRUD,
// authentication, OAuth2 token issuance, key lifecycle, and the file
// registry endpoints.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/artstore/artstore/pkg/admin"
	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/api/middleware"
)

// decodeJSONBody decodes a JSON request body into v. Returns false after
// writing a 400 when the body does not parse.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		api.BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// auditor builds audit entries from the request context and enqueues them on
// the background writer, so mutations never wait on the audit table. A nil
// writer disables auditing, which only test setups use.
type auditor struct {
	writer *admin.AuditWriter
}

func (a auditor) record(r *http.Request, action, target, detail string) {
	if a.writer == nil {
		return
	}
	actor := "anonymous"
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		actor = claims.Subject
	}
	a.writer.Enqueue(&models.AuditEntry{
		Actor:    actor,
		Action:   action,
		Target:   target,
		Detail:   detail,
		SourceIP: r.RemoteAddr,
	})
}
