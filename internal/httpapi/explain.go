package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/biokg/explorer/internal/evidence"
	"github.com/biokg/explorer/internal/rag"
	"github.com/biokg/explorer/internal/stream"
	"github.com/biokg/explorer/pkg/types"
)

// maxExternalPapers bounds how many scholarly contributions are fetched to
// supplement an explanation's citations.
const maxExternalPapers = 3

// handleOverviewStream implements POST /api/overview/stream: explain a
// single selected edge, or summarize a center node over its visible edges.
func (s *Server) handleOverviewStream(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sel, streamReq := s.buildOverviewRequest(req, stream.VariantOverview)
	s.runExplain(w, r, sel, streamReq, false)
}

// handleDeepThinkStream implements POST /api/deep-think/stream: explain a
// full multi-hop path, with no required question.
func (s *Server) handleDeepThinkStream(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sel, streamReq := s.buildPathRequest(req, stream.VariantDeepThink)
	s.runExplain(w, r, sel, streamReq, false)
}

// handleDeepThinkChatStream implements POST /api/deep-think/chat/stream: a
// path explanation that answers req.Question, with rolling chat history and
// a synchronous reviewer pass folded into the done event.
func (s *Server) handleDeepThinkChatStream(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if err := decodeJSON(r, &req); err != nil || req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	sel, streamReq := s.buildPathRequest(req, stream.VariantDeepThinkChat)
	streamReq.Question = req.Question
	streamReq.Messages = req.chatMessages()
	s.runExplain(w, r, sel, streamReq, true)
}

// buildOverviewRequest builds the RAG selection and the streamer request for
// an edge or center-node overview selection.
func (s *Server) buildOverviewRequest(req explainRequest, variant stream.Variant) (rag.Selection, stream.Request) {
	if req.SelectionType == "node" {
		center, _ := req.findNode(req.CenterNodeID)

		var relatedEdges []rag.RelatedEdge
		var summaries []stream.RelatedEdgeSummary
		for _, e := range req.Edges {
			if e.Source != req.CenterNodeID && e.Target != req.CenterNodeID {
				continue
			}
			otherID := e.Target
			if otherID == req.CenterNodeID {
				otherID = e.Source
			}
			other, _ := req.findNode(otherID)
			relatedEdges = append(relatedEdges, rag.RelatedEdge{OtherName: other.Name, Label: e.Label, Evidence: e.Evidence})
			summaries = append(summaries, stream.RelatedEdgeSummary{
				SourceName: center.Name, OtherName: other.Name, Label: e.Label, Score: float64(e.CooccurrenceScore),
			})
		}

		sel := rag.Selection{SourceID: req.CenterNodeID, SourceName: center.Name, CenterOverview: true, RelatedEdges: relatedEdges}
		streamReq := stream.Request{
			Variant: variant, SelectionKey: req.CenterNodeID, SelectionType: "node",
			CenterOverview: true, SourceName: center.Name, RelatedEdges: summaries,
			History: req.historyEntries(),
		}
		return sel, streamReq
	}

	edge, _ := req.findEdge(req.EdgeID)
	source, _ := req.findNode(edge.Source)
	target, _ := req.findNode(edge.Target)

	sel := rag.Selection{
		SourceName: source.Name, TargetName: target.Name,
		SourceID: edge.Source, TargetID: edge.Target,
		Predicate: edge.Predicate, Label: edge.Label, Evidence: edge.Evidence,
	}
	streamReq := stream.Request{
		Variant: variant, SelectionKey: edge.ID, SelectionType: "edge", EdgeID: edge.ID,
		SourceName: source.Name, TargetName: target.Name, Predicate: edge.Predicate,
		PaperCount: edge.PaperCount, TrialCount: edge.TrialCount, PatentCount: edge.PatentCount,
		Evidence: edge.Evidence, History: req.historyEntries(),
	}
	return sel, streamReq
}

// buildPathRequest builds the RAG selection and streamer request for a
// multi-hop path explanation: req.Path names the nodes in traversal order
// and req.Edges the segments connecting them.
func (s *Server) buildPathRequest(req explainRequest, variant stream.Variant) (rag.Selection, stream.Request) {
	pathNodes := req.pathNodes()

	var sourceName, targetName string
	if len(pathNodes) > 0 {
		sourceName = pathNodes[0].Name
		targetName = pathNodes[len(pathNodes)-1].Name
	}

	var sourceID, targetID string
	if len(req.Path) > 0 {
		sourceID = req.Path[0]
		targetID = req.Path[len(req.Path)-1]
	}

	var allEvidence []types.Evidence
	for _, e := range req.Edges {
		allEvidence = append(allEvidence, e.Evidence...)
	}

	sel := rag.Selection{
		SourceName: sourceName, TargetName: targetName,
		SourceID: sourceID, TargetID: targetID,
		Predicate: "path", Evidence: allEvidence,
	}
	streamReq := stream.Request{
		Variant: variant, SelectionKey: strings.Join(req.Path, "-"), SelectionType: "path",
		SourceName: sourceName, TargetName: targetName, Evidence: allEvidence,
		Path: pathNodes, History: req.historyEntries(),
	}
	return sel, streamReq
}

// runExplain retrieves grounding chunks, fetches optional external
// scholarly context, runs the streamer, and forwards its events as SSE,
// running the reviewer fire-and-forget (overview/deep-think) or
// synchronously folded into the done event (chat).
func (s *Server) runExplain(w http.ResponseWriter, r *http.Request, sel rag.Selection, req stream.Request, chatSync bool) {
	ctx := r.Context()

	req.RAGChunks = s.retriever.Retrieve(ctx, sel)

	if s.external != nil {
		query := strings.TrimSpace(req.SourceName + " " + req.TargetName)
		if papers, err := s.external.Search(ctx, query, maxExternalPapers); err == nil {
			req.External = evidence.ContributionText(papers)
		} else {
			s.logger.WarnContext(ctx, "httpapi: external contribution lookup failed", "error", err)
		}
	}

	events := s.streamer.Run(ctx, req)

	review := func(done stream.DoneData) stream.DoneData {
		return s.reviewDone(r, req, done, chatSync)
	}
	s.streamEvents(w, r, events, review)
}

// reviewDone runs the reviewer against the finished explanation. In the
// chat path it runs synchronously so its score can be folded into the done
// event; otherwise it fires in the background and its result only reaches
// the logs, matching the reviewer's fire-and-forget overview contract.
func (s *Server) reviewDone(r *http.Request, req stream.Request, done stream.DoneData, chatSync bool) stream.DoneData {
	contextText := reviewContextText(req)

	if chatSync {
		score, _ := s.reviewer.Review(r.Context(), req.Question, contextText, done.Text)
		if score > 0 {
			done = stream.WithChatReview(done, score)
		}
		return done
	}

	go func() {
		ctx := context.Background()
		score, reasoning := s.reviewer.Review(ctx, req.Question, contextText, done.Text)
		s.logger.InfoContext(ctx, "httpapi: background review complete",
			"selection_key", done.SelectionKey, "score", score, "reasoning", reasoning)
	}()
	return done
}

func reviewContextText(req stream.Request) string {
	var sb strings.Builder
	for _, e := range req.Evidence {
		sb.WriteString(e.Snippet)
		sb.WriteString("\n")
	}
	for _, c := range req.RAGChunks {
		sb.WriteString(c.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
