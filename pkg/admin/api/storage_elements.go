package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/admin"
	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/element/mode"
	"github.com/artstore/artstore/pkg/registry"
)

// ElementHandler serves the storage-element registry CRUD.
type ElementHandler struct {
	store    *store.Store
	topology *admin.Topology
	audit    auditor
	now      func() time.Time
}

// NewElementHandler creates the registry endpoints. topology may be nil in
// tests; mutations then skip the publish.
func NewElementHandler(st *store.Store, topology *admin.Topology, audit *admin.AuditWriter) *ElementHandler {
	return &ElementHandler{
		store:    st,
		topology: topology,
		audit:    auditor{writer: audit},
		now:      time.Now,
	}
}

// CreateStorageElementRequest is the body for POST /api/v1/storage-elements.
type CreateStorageElementRequest struct {
	ElementID     string `json:"element_id"`
	Name          string `json:"name"`
	Mode          string `json:"mode"`
	StorageType   string `json:"storage_type"`
	APIURL        string `json:"api_url"`
	BasePath      string `json:"base_path"`
	CapacityBytes int64  `json:"capacity_bytes"`
	Priority      uint16 `json:"priority"`
	RetentionDays int    `json:"retention_days"`
}

// UpdateStorageElementRequest is the body for PATCH
// /api/v1/storage-elements/{id}. Zero fields are left unchanged; element_id
// and mode are immutable here (mode moves through change-mode).
type UpdateStorageElementRequest struct {
	Name          *string `json:"name,omitempty"`
	APIURL        *string `json:"api_url,omitempty"`
	BasePath      *string `json:"base_path,omitempty"`
	CapacityBytes *int64  `json:"capacity_bytes,omitempty"`
	Priority      *uint16 `json:"priority,omitempty"`
	RetentionDays *int    `json:"retention_days,omitempty"`
}

// ChangeModeRequest is the body for POST /api/v1/storage-elements/{id}/change-mode.
type ChangeModeRequest struct {
	NewMode string `json:"new_mode"`
	Reason  string `json:"reason,omitempty"`
}

// Create handles POST /api/v1/storage-elements.
func (h *ElementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateStorageElementRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.ElementID == "" || req.Name == "" || req.APIURL == "" {
		api.BadRequest(w, "element_id, name and api_url are required")
		return
	}

	elementMode := registry.ModeRW
	if req.Mode != "" {
		elementMode = registry.Mode(strings.ToUpper(req.Mode))
		if !elementMode.Valid() {
			api.BadRequest(w, fmt.Sprintf("Unknown mode %q", req.Mode))
			return
		}
	}
	storageType := registry.StorageTypeLocal
	if req.StorageType != "" {
		storageType = registry.StorageType(strings.ToUpper(req.StorageType))
	}

	element := &models.StorageElement{
		ElementID:     req.ElementID,
		Name:          req.Name,
		Mode:          elementMode,
		StorageType:   storageType,
		APIURL:        req.APIURL,
		BasePath:      req.BasePath,
		CapacityBytes: req.CapacityBytes,
		Priority:      req.Priority,
		RetentionDays: req.RetentionDays,
		Status:        registry.StatusOffline,
	}
	if element.Priority == 0 {
		element.Priority = 100
	}

	if _, err := h.store.CreateStorageElement(r.Context(), element); err != nil {
		if errors.Is(err, models.ErrDuplicateElement) {
			api.Conflict(w, "An element with this element_id or name already exists")
			return
		}
		api.InternalServerError(w, "Failed to create storage element")
		return
	}

	h.audit.record(r, "storage_element.create", element.ElementID, element.Name)
	h.publish(r, admin.ActionElementCreated)
	api.WriteJSONCreated(w, element)
}

// List handles GET /api/v1/storage-elements.
func (h *ElementHandler) List(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	elements, err := h.store.ListStorageElements(r.Context(), includeDeleted)
	if err != nil {
		api.InternalServerError(w, "Failed to list storage elements")
		return
	}
	api.WriteJSONOK(w, map[string]any{
		"storage_elements": elements,
		"count":            len(elements),
	})
}

// Get handles GET /api/v1/storage-elements/{id}.
func (h *ElementHandler) Get(w http.ResponseWriter, r *http.Request) {
	element, ok := h.load(w, r)
	if !ok {
		return
	}
	api.WriteJSONOK(w, element)
}

// Update handles PATCH /api/v1/storage-elements/{id}.
func (h *ElementHandler) Update(w http.ResponseWriter, r *http.Request) {
	element, ok := h.load(w, r)
	if !ok {
		return
	}

	var req UpdateStorageElementRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name != nil {
		element.Name = *req.Name
	}
	if req.APIURL != nil {
		element.APIURL = *req.APIURL
	}
	if req.BasePath != nil {
		element.BasePath = *req.BasePath
	}
	if req.CapacityBytes != nil {
		element.CapacityBytes = *req.CapacityBytes
	}
	if req.Priority != nil {
		element.Priority = *req.Priority
	}
	if req.RetentionDays != nil {
		element.RetentionDays = *req.RetentionDays
	}

	if err := h.store.UpdateStorageElement(r.Context(), element); err != nil {
		if errors.Is(err, models.ErrDuplicateElement) {
			api.Conflict(w, "An element with this name already exists")
			return
		}
		api.InternalServerError(w, "Failed to update storage element")
		return
	}

	h.audit.record(r, "storage_element.update", element.ElementID, "")
	h.publish(r, admin.ActionElementUpdated)
	api.WriteJSONOK(w, element)
}

// Delete handles DELETE /api/v1/storage-elements/{id}. The delete is
// logical: the row keeps its element_id forever.
func (h *ElementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	elementID := chi.URLParam(r, "id")
	err := h.store.DeleteStorageElement(r.Context(), elementID, h.now())
	if err != nil {
		if errors.Is(err, models.ErrElementNotFound) {
			api.NotFound(w, "Storage element not found")
			return
		}
		api.InternalServerError(w, "Failed to delete storage element")
		return
	}

	h.audit.record(r, "storage_element.delete", elementID, "")
	h.publish(r, admin.ActionElementDeleted)
	api.WriteNoContent(w)
}

// ChangeMode handles POST /api/v1/storage-elements/{id}/change-mode. The
// new mode must be reachable from the current one in the element state
// machine; elements adopt it from the published topology.
func (h *ElementHandler) ChangeMode(w http.ResponseWriter, r *http.Request) {
	element, ok := h.load(w, r)
	if !ok {
		return
	}

	var req ChangeModeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.NewMode == "" {
		api.BadRequest(w, "new_mode is required")
		return
	}
	newMode := registry.Mode(strings.ToUpper(req.NewMode))
	if !newMode.Valid() {
		api.BadRequest(w, fmt.Sprintf("Unknown mode %q", req.NewMode))
		return
	}
	if element.Mode == newMode {
		api.BadRequest(w, fmt.Sprintf("Already in %s mode", strings.ToLower(string(newMode))))
		return
	}
	if !mode.CanTransition(element.Mode, newMode) {
		api.BadRequest(w, fmt.Sprintf("Transition %s -> %s is not allowed", element.Mode, newMode))
		return
	}

	previous := element.Mode
	element.Mode = newMode
	if err := h.store.UpdateStorageElement(r.Context(), element); err != nil {
		api.InternalServerError(w, "Failed to change mode")
		return
	}

	h.audit.record(r, "storage_element.change_mode", element.ElementID,
		fmt.Sprintf("%s -> %s", previous, newMode))
	h.publish(r, admin.ActionModeChanged)
	api.WriteJSONOK(w, element)
}

// load resolves the {id} path parameter to a live element, writing the
// error response on failure.
func (h *ElementHandler) load(w http.ResponseWriter, r *http.Request) (*models.StorageElement, bool) {
	elementID := chi.URLParam(r, "id")
	element, err := h.store.GetStorageElement(r.Context(), elementID)
	if err != nil {
		if errors.Is(err, models.ErrElementNotFound) {
			api.NotFound(w, "Storage element not found")
			return nil, false
		}
		api.InternalServerError(w, "Failed to load storage element")
		return nil, false
	}
	if element.Deleted() {
		api.NotFound(w, "Storage element not found")
		return nil, false
	}
	return element, true
}

// publish broadcasts the topology after a mutation. The database is the
// source of truth; a failed publish is recovered by the heartbeat.
func (h *ElementHandler) publish(r *http.Request, action string) {
	if h.topology == nil {
		return
	}
	if err := h.topology.Publish(r.Context(), action); err != nil {
		logger.WarnCtx(r.Context(), "topology publish failed",
			"action", action, logger.Err(err))
	}
}
