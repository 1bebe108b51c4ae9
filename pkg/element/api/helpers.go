package api

import (
	"encoding/json"
	"net/http"

	"github.com/artstore/artstore/pkg/api"
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
