package httpapi

import (
	"net/http"

	"github.com/biokg/explorer/pkg/types"
)

type snapshotResponse struct {
	ID string `json:"id"`
}

// handlePostSnapshot implements POST /api/graph/snapshot: store the posted
// payload verbatim and hand back its generated id.
func (s *Server) handlePostSnapshot(w http.ResponseWriter, r *http.Request) {
	var payload types.GraphPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid graph payload")
		return
	}

	id, err := s.snapshots.Put(r.Context(), payload)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "httpapi: snapshot put failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{ID: id})
}

// handleGetSnapshot implements GET /api/graph/snapshot/{id}.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	payload, ok, err := s.snapshots.Get(r.Context(), id)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "httpapi: snapshot get failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
