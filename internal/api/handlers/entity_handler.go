package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	apiContext "pipesync/internal/api/context"
	"pipesync/internal/pkg/errors"
	"pipesync/internal/platform/models"
	"pipesync/internal/platform/repositories"
)

// MergeLookup answers whether a deleted record was inferred to have been
// merged into a surviving one.
type MergeLookup interface {
	InferMerge(entityType, entityID string) (survivingID string, ok bool)
}

// EntityHandler exposes a read-only view of the mirrored CRM records.
type EntityHandler struct {
	repo   *repositories.EntityRepository
	merges MergeLookup // nil when merge detection is disabled
}

func NewEntityHandler(repo *repositories.EntityRepository, merges MergeLookup) *EntityHandler {
	return &EntityHandler{repo: repo, merges: merges}
}

func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	objectType := params.ByName("type")

	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}

	entities, err := h.repo.ListByType(objectType, limit, offset)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list entities", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		ObjectType string `json:"object_type"`
		Count      int    `json:"count"`
		Entities   any    `json:"entities"`
	}{
		ObjectType: objectType,
		Count:      len(entities),
		Entities:   entities,
	})
}

func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	objectType := params.ByName("type")
	externalID := params.ByName("id")

	entity, err := h.repo.GetByExternalID(objectType, externalID)
	if err == sql.ErrNoRows {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Entity not found", nil)
		return
	}
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load entity", nil)
		return
	}

	response := struct {
		*models.Entity
		MergedInto string `json:"merged_into,omitempty"`
	}{Entity: entity}

	// A soft-deleted record may have been swallowed by a merge the platform
	// never announced.
	if entity.DeletedAt != nil && h.merges != nil {
		if survivingID, ok := h.merges.InferMerge(objectType, externalID); ok {
			response.MergedInto = survivingID
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
