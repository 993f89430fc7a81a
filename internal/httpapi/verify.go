package httpapi

import "net/http"

// probeText is a deliberately generic biomedical phrase used to sanity-check
// that the embedding model and vector index are both reachable and wired to
// the same embedding space, without depending on any specific seeded data.
const probeText = "gene disease pathway drug protein interaction"

type verifyResponse struct {
	OK             bool     `json:"ok"`
	NeighborsFound int      `json:"neighbors_found,omitempty"`
	SampleIDs      []string `json:"sample_ids,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

// handleOverviewVerify implements GET /api/overview/verify: embed a probe
// phrase and ANN-search the vector index, confirming the RAG retrieval path
// is live end to end.
func (s *Server) handleOverviewVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vec, err := s.embedder.Embed(ctx, probeText)
	if err != nil {
		writeJSON(w, http.StatusOK, verifyResponse{Reason: "embedding probe failed: " + err.Error()})
		return
	}

	matches, err := s.vectors.Search(ctx, vec, 5)
	if err != nil {
		writeJSON(w, http.StatusOK, verifyResponse{Reason: "vector index search failed: " + err.Error()})
		return
	}
	if len(matches) == 0 {
		writeJSON(w, http.StatusOK, verifyResponse{Reason: "vector index returned no neighbors"})
		return
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}
	writeJSON(w, http.StatusOK, verifyResponse{OK: true, NeighborsFound: len(matches), SampleIDs: ids})
}
