// Package httpapi wires the Intent Resolver, Entity Lookup, Neighborhood
// Query, Path Engine, Evidence Fetcher, Graph Builder, RAG Retriever,
// Explanation Streamer, and Reviewer onto the HTTP/SSE surface described in
// spec §6: plain JSON request/response endpoints for graph queries, SSE
// endpoints for grounded explanations, a diagnostic verify endpoint, and the
// in-memory snapshot store's POST/GET pair.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/biokg/explorer/internal/entitylookup"
	"github.com/biokg/explorer/internal/evidence"
	"github.com/biokg/explorer/internal/intent"
	"github.com/biokg/explorer/internal/neighborhood"
	"github.com/biokg/explorer/internal/pathengine"
	"github.com/biokg/explorer/internal/rag"
	"github.com/biokg/explorer/internal/reviewer"
	"github.com/biokg/explorer/internal/stream"
	"github.com/biokg/explorer/pkg/provider/embeddings"
	"github.com/biokg/explorer/pkg/store"
)

// maxQueryLen bounds the "query" field of POST /api/query, per spec §6.
const maxQueryLen = 500

// Server holds every engine the HTTP surface dispatches to. Construct it
// with [New] and register its routes with [Server.Routes].
type Server struct {
	resolver  *intent.Resolver
	lookup    *entitylookup.Lookup
	neighbors *neighborhood.Query
	paths     *pathengine.Engine
	fetcher   *evidence.Fetcher
	external  *evidence.ExternalFetcher
	retriever *rag.Retriever
	streamer  *stream.Streamer
	reviewer  *reviewer.Reviewer
	snapshots store.SnapshotStore
	embedder  embeddings.Provider
	vectors   store.VectorIndex
	logger    *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Server)

// WithExternalFetcher attaches an optional scholarly-contribution lookup
// used to enrich explanation citations. When absent, explanations are built
// from warehouse evidence and RAG chunks only.
func WithExternalFetcher(f *evidence.ExternalFetcher) Option {
	return func(s *Server) { s.external = f }
}

// WithLogger overrides the default [slog.Default] logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds a Server. All arguments except those set via Option are
// required — the caller (cmd/server) is expected to have already resolved
// every engine from its providers and store.
func New(
	resolver *intent.Resolver,
	lookup *entitylookup.Lookup,
	neighbors *neighborhood.Query,
	paths *pathengine.Engine,
	fetcher *evidence.Fetcher,
	retriever *rag.Retriever,
	streamer *stream.Streamer,
	rev *reviewer.Reviewer,
	snapshots store.SnapshotStore,
	embedder embeddings.Provider,
	vectors store.VectorIndex,
	opts ...Option,
) *Server {
	s := &Server{
		resolver:  resolver,
		lookup:    lookup,
		neighbors: neighbors,
		paths:     paths,
		fetcher:   fetcher,
		retriever: retriever,
		streamer:  streamer,
		reviewer:  rev,
		snapshots: snapshots,
		embedder:  embedder,
		vectors:   vectors,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes registers every endpoint from spec §6 onto mux, except /health,
// which cmd/server serves with internal/health's liveness handler.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("POST /api/expand", s.handleExpand)
	mux.HandleFunc("POST /api/overview/stream", s.handleOverviewStream)
	mux.HandleFunc("POST /api/deep-think/stream", s.handleDeepThinkStream)
	mux.HandleFunc("POST /api/deep-think/chat/stream", s.handleDeepThinkChatStream)
	mux.HandleFunc("GET /api/overview/verify", s.handleOverviewVerify)
	mux.HandleFunc("POST /api/graph/snapshot", s.handlePostSnapshot)
	mux.HandleFunc("GET /api/graph/snapshot/{id}", s.handleGetSnapshot)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
