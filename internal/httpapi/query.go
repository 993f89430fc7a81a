package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/biokg/explorer/internal/graphbuilder"
	"github.com/biokg/explorer/internal/intent"
	"github.com/biokg/explorer/pkg/types"
)

type queryRequest struct {
	Query string `json:"query"`
}

type expandRequest struct {
	EntityID string `json:"entity_id"`
}

// handleQuery implements POST /api/query: resolve the free-text query to a
// single-entity or entity-pair intent, then build the corresponding
// neighborhood or path payload.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" || len(req.Query) > maxQueryLen {
		writeError(w, http.StatusBadRequest, "query must be 1-500 characters")
		return
	}

	ctx := r.Context()
	result, err := s.resolver.Resolve(ctx, req.Query)
	if err != nil {
		if errors.Is(err, intent.ErrExtractionFailed) {
			writeError(w, http.StatusBadGateway, "entity_extraction_failed")
			return
		}
		s.logger.ErrorContext(ctx, "httpapi: intent resolution failed", "error", err)
		writeError(w, http.StatusInternalServerError, "intent resolution failed")
		return
	}

	switch result.Kind {
	case intent.KindSingle:
		writeJSON(w, http.StatusOK, s.singleEntityPayload(ctx, req.Query, result.Entity))
	case intent.KindPair:
		writeJSON(w, http.StatusOK, s.pairPathPayload(ctx, req.Query, result.Entities))
	default:
		writeError(w, http.StatusBadGateway, "entity_extraction_failed")
	}
}

// handleExpand implements POST /api/expand: look an entity up by its
// canonical id (no name-matching fallback) and return its neighborhood.
func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if err := decodeJSON(r, &req); err != nil || req.EntityID == "" {
		writeError(w, http.StatusBadRequest, "entity_id is required")
		return
	}

	ctx := r.Context()
	entity, err := s.lookup.FindByID(ctx, req.EntityID)
	if err != nil {
		s.logger.ErrorContext(ctx, "httpapi: expand lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "entity lookup failed")
		return
	}
	if entity == nil {
		writeJSON(w, http.StatusOK, graphbuilder.NotFoundResponse(req.EntityID))
		return
	}

	writeJSON(w, http.StatusOK, s.neighborhoodPayload(ctx, *entity))
}

func (s *Server) singleEntityPayload(ctx context.Context, query string, ref intent.EntityRef) types.GraphPayload {
	entity, err := s.lookup.Find(ctx, ref.Name, ref.Type)
	if err != nil {
		s.logger.ErrorContext(ctx, "httpapi: entity lookup failed", "error", err)
		return graphbuilder.NotFoundResponse(query)
	}
	if entity == nil {
		return graphbuilder.NotFoundResponse(query)
	}
	return s.neighborhoodPayload(ctx, *entity)
}

func (s *Server) neighborhoodPayload(ctx context.Context, center types.Entity) types.GraphPayload {
	related, err := s.neighbors.Related(ctx, center.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "httpapi: neighborhood query failed", "error", err)
		related = nil
	}

	pmids := make(map[string]bool)
	for _, n := range related {
		for _, p := range n.PMIDs {
			pmids[p] = true
		}
	}
	paperDetails, err := s.fetcher.PaperDetails(ctx, keys(pmids))
	if err != nil {
		s.logger.WarnContext(ctx, "httpapi: paper detail enrichment failed", "error", err)
		paperDetails = nil
	}

	return graphbuilder.NeighborhoodPayload(center, related, paperDetails)
}

func (s *Server) pairPathPayload(ctx context.Context, query string, refs [2]intent.EntityRef) types.GraphPayload {
	start, err := s.lookup.Find(ctx, refs[0].Name, refs[0].Type)
	if err != nil {
		s.logger.ErrorContext(ctx, "httpapi: entity lookup failed", "error", err)
		return graphbuilder.NotFoundResponse(query)
	}
	end, err := s.lookup.Find(ctx, refs[1].Name, refs[1].Type)
	if err != nil {
		s.logger.ErrorContext(ctx, "httpapi: entity lookup failed", "error", err)
		return graphbuilder.NotFoundResponse(query)
	}
	if start == nil || end == nil {
		return graphbuilder.NotFoundResponse(query)
	}
	if start.ID == end.ID {
		return graphbuilder.SameEntityResponse(query)
	}

	segments, err := s.paths.Path(ctx, start.ID, end.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "httpapi: path query failed", "error", err)
		return graphbuilder.NotFoundResponse(query)
	}
	if segments == nil {
		return graphbuilder.NoPathResponse(query)
	}

	pathIDs := make([]string, 0, len(segments)+1)
	pathIDs = append(pathIDs, start.ID)
	for _, seg := range segments {
		pathIDs = append(pathIDs, seg.To)
	}

	entityDetails := make(map[string]types.Entity, len(pathIDs))
	for _, id := range pathIDs {
		e, err := s.lookup.FindByID(ctx, id)
		if err != nil || e == nil {
			continue
		}
		entityDetails[id] = *e
	}

	edgePMIDs, err := s.fetcher.EdgePMIDs(ctx, segments)
	if err != nil {
		s.logger.WarnContext(ctx, "httpapi: edge pmid enrichment failed", "error", err)
		edgePMIDs = nil
	}

	allPMIDs := make(map[string]bool)
	for _, pmids := range edgePMIDs {
		for _, p := range pmids {
			allPMIDs[p] = true
		}
	}
	paperDetails, err := s.fetcher.PaperDetails(ctx, keys(allPMIDs))
	if err != nil {
		s.logger.WarnContext(ctx, "httpapi: paper detail enrichment failed", "error", err)
		paperDetails = nil
	}

	return graphbuilder.PathPayload(pathIDs, segments, entityDetails, edgePMIDs, paperDetails)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
