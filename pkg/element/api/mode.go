package api

import (
	"errors"
	"net/http"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/element/mode"
	"github.com/artstore/artstore/pkg/registry"
)

// ModeHandler serves the element's mode state machine endpoints.
type ModeHandler struct {
	manager *mode.Manager
}

// NewModeHandler creates a ModeHandler over the element's mode manager.
func NewModeHandler(manager *mode.Manager) *ModeHandler {
	return &ModeHandler{manager: manager}
}

// Current handles GET /api/v1/mode.
func (h *ModeHandler) Current(w http.ResponseWriter, _ *http.Request) {
	current := h.manager.Current()
	capabilities := mode.TransitionMatrix()[current]
	api.WriteJSONOK(w, map[string]any{
		"mode":        current,
		"operations":  capabilities.Operations,
		"transitions": capabilities.Transitions,
	})
}

// Matrix handles GET /api/v1/mode/matrix.
func (h *ModeHandler) Matrix(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSONOK(w, mode.TransitionMatrix())
}

// History handles GET /api/v1/mode/history.
func (h *ModeHandler) History(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSONOK(w, map[string]any{
		"mode":    h.manager.Current(),
		"history": h.manager.History(),
	})
}

// ValidateModeRequest is the body for POST /api/v1/mode/validate. From
// defaults to the element's current mode.
type ValidateModeRequest struct {
	From registry.Mode `json:"from,omitempty"`
	To   registry.Mode `json:"to"`
}

// Validate handles POST /api/v1/mode/validate. It never mutates state.
func (h *ModeHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var body ValidateModeRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}
	if !body.To.Valid() {
		api.BadRequest(w, "to must be one of EDIT, RW, RO, AR")
		return
	}
	from := body.From
	if from == "" {
		from = h.manager.Current()
	} else if !from.Valid() {
		api.BadRequest(w, "from must be one of EDIT, RW, RO, AR")
		return
	}

	valid := mode.CanTransition(from, body.To)
	resp := map[string]any{
		"from":  from,
		"to":    body.To,
		"valid": valid,
	}
	if !valid {
		resp["reason"] = "transition is not part of the lifecycle"
	}
	api.WriteJSONOK(w, resp)
}

// ChangeModeRequest is the body for POST /api/v1/mode/change.
type ChangeModeRequest struct {
	Mode   registry.Mode `json:"mode"`
	Reason string        `json:"reason,omitempty"`
}

// Change handles POST /api/v1/mode/change. Invalid transitions leave the
// mode untouched and answer 400.
func (h *ModeHandler) Change(w http.ResponseWriter, r *http.Request) {
	var body ChangeModeRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}
	if !body.Mode.Valid() {
		api.BadRequest(w, "mode must be one of EDIT, RW, RO, AR")
		return
	}

	change, err := h.manager.Transition(body.Mode, body.Reason)
	if errors.Is(err, mode.ErrInvalidTransition) {
		api.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		api.InternalServerError(w, "Mode change failed")
		return
	}

	logger.InfoCtx(r.Context(), "Mode changed",
		"from", string(change.From), "to", string(change.To), "reason", change.Reason)
	api.WriteJSONOK(w, change)
}
