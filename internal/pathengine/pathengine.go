// Package pathengine finds the shortest path between two knowledge-graph
// entities.
//
// Resolution is two-stage: a fast-path query attempts an ANY-SHORTEST match
// of bounded length, and when the store cannot satisfy that (or finds
// nothing), a bidirectional breadth-first search takes over, expanding the
// smaller of two frontiers one level at a time until they meet.
package pathengine

import (
	"context"
	"log/slog"

	"github.com/biokg/explorer/pkg/store"
	"github.com/biokg/explorer/pkg/types"
)

const (
	// DefaultMaxHops bounds the fast-path ANY-SHORTEST query.
	DefaultMaxHops = 8

	// maxDepth bounds BFS iterations per side; total path length is at most
	// 2*maxDepth.
	maxDepth = 4

	// maxFrontierSize caps how many nodes are expanded per BFS level, to
	// contain hub-node explosions.
	maxFrontierSize = 500
)

// Engine computes shortest paths via a [store.GraphStore].
type Engine struct {
	graph   store.GraphStore
	maxHops int
	logger  *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithMaxHops overrides [DefaultMaxHops].
func WithMaxHops(n int) Option {
	return func(e *Engine) { e.maxHops = n }
}

// WithLogger overrides the default [slog.Default] logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New builds an [Engine] backed by graph.
func New(graph store.GraphStore, opts ...Option) *Engine {
	e := &Engine{graph: graph, maxHops: DefaultMaxHops, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// parent records how a node was reached during BFS: the node it was reached
// from, and the relation type of that edge.
type parent struct {
	from     string
	relation string
}

// Path returns the shortest path from startID to endID, or nil when none
// exists within the configured bounds. Returns an empty, non-nil slice when
// startID == endID. Transport errors from the graph store are logged and
// surfaced as (nil, nil) — indistinguishable from "no path" to the caller,
// per the contract callers that care about the distinction (the router)
// handle by emitting a "no path" response either way.
func (e *Engine) Path(ctx context.Context, startID, endID string) ([]types.PathSegment, error) {
	if startID == endID {
		return []types.PathSegment{}, nil
	}

	segments, found, err := e.graph.TryDirectPath(ctx, startID, endID, e.maxHops)
	if err != nil {
		e.logger.ErrorContext(ctx, "pathengine: direct path query failed", "error", err, "start", startID, "end", endID)
		return nil, nil
	}
	if found {
		return segments, nil
	}

	segments, err = e.bidirectionalBFS(ctx, startID, endID)
	if err != nil {
		e.logger.ErrorContext(ctx, "pathengine: bidirectional bfs failed", "error", err, "start", startID, "end", endID)
		return nil, nil
	}
	return segments, nil
}

// bidirectionalBFS expands the smaller of two frontiers at each depth until
// they meet, up to maxDepth iterations per side. Each side's visited set
// starts seeded with its own root so the walk never cycles back through it.
func (e *Engine) bidirectionalBFS(ctx context.Context, startID, endID string) ([]types.PathSegment, error) {
	forwardParents := map[string]parent{}
	backwardParents := map[string]parent{}
	forwardVisited := map[string]bool{startID: true}
	backwardVisited := map[string]bool{endID: true}
	forwardFrontier := []string{startID}
	backwardFrontier := []string{endID}

	for depth := 0; depth < maxDepth; depth++ {
		var meeting string
		var ok bool
		var err error

		if len(forwardFrontier) <= len(backwardFrontier) {
			forwardFrontier, meeting, ok, err = e.expandFrontier(ctx, forwardFrontier, forwardVisited, forwardParents, backwardVisited)
			if err != nil {
				return nil, err
			}
			if ok {
				return reconstructPath(meeting, startID, endID, forwardParents, backwardParents), nil
			}
			if len(forwardFrontier) == 0 {
				return nil, nil
			}
		} else {
			backwardFrontier, meeting, ok, err = e.expandFrontier(ctx, backwardFrontier, backwardVisited, backwardParents, forwardVisited)
			if err != nil {
				return nil, err
			}
			if ok {
				return reconstructPath(meeting, startID, endID, forwardParents, backwardParents), nil
			}
			if len(backwardFrontier) == 0 {
				return nil, nil
			}
		}
	}
	return nil, nil
}

// expandFrontier expands one BFS level from frontier, recording discovered
// nodes into ownParents/ownVisited. It returns the next frontier and, if a
// node already present in otherVisited is reached, that meeting node.
//
// The frontier is truncated to maxFrontierSize in enumeration order before
// expansion, and within a single expansion step the first write to a given
// node's parent entry wins: later neighbors that resolve to the same node are
// discarded rather than overwriting it.
func (e *Engine) expandFrontier(ctx context.Context, frontier []string, ownVisited map[string]bool, ownParents map[string]parent, otherVisited map[string]bool) ([]string, string, bool, error) {
	if len(frontier) > maxFrontierSize {
		frontier = frontier[:maxFrontierSize]
	}

	neighbors, err := e.graph.BatchNeighbors(ctx, frontier)
	if err != nil {
		return nil, "", false, err
	}

	var nextFrontier []string
	for _, src := range frontier {
		for _, hop := range neighbors[src] {
			if ownVisited[hop.NeighborID] {
				continue
			}
			ownVisited[hop.NeighborID] = true
			ownParents[hop.NeighborID] = parent{from: src, relation: hop.RelationType}
			nextFrontier = append(nextFrontier, hop.NeighborID)

			if otherVisited[hop.NeighborID] {
				return nextFrontier, hop.NeighborID, true, nil
			}
		}
	}
	return nextFrontier, "", false, nil
}

// reconstructPath walks forwardParents backward from meeting to start,
// reversed to forward order, then walks backwardParents backward from
// meeting to end, keeping (current, parent) direction, and concatenates.
func reconstructPath(meeting, startID, endID string, forwardParents, backwardParents map[string]parent) []types.PathSegment {
	var forwardPath []types.PathSegment
	for current := meeting; current != startID; {
		p := forwardParents[current]
		forwardPath = append(forwardPath, types.PathSegment{From: p.from, To: current, RelationType: p.relation})
		current = p.from
	}
	for i, j := 0, len(forwardPath)-1; i < j; i, j = i+1, j-1 {
		forwardPath[i], forwardPath[j] = forwardPath[j], forwardPath[i]
	}

	var backwardPath []types.PathSegment
	for current := meeting; current != endID; {
		p := backwardParents[current]
		backwardPath = append(backwardPath, types.PathSegment{From: current, To: p.from, RelationType: p.relation})
		current = p.from
	}

	return append(forwardPath, backwardPath...)
}
