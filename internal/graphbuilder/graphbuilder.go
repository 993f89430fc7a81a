// Package graphbuilder assembles the [types.GraphPayload] JSON contract the
// frontend consumes, from either a center entity plus its ranked neighbors
// (neighborhood view) or a resolved shortest path (path view).
package graphbuilder

import (
	"fmt"
	"math"
	"strings"

	"github.com/biokg/explorer/pkg/types"
)

const (
	centerNodeSize   = 1.5
	pathStartSize    = 1.5
	pathOtherSize    = 1.0
	minNeighborSize  = 0.6
	neighborSizeSpan = 0.8

	// pathEdgeSaturationPMIDs is the evidence-count at which a path edge's
	// confidence score saturates at 1.0.
	pathEdgeSaturationPMIDs = 10
)

// relationPredicates maps raw warehouse relation types to biolink predicates.
// Unmapped relation types fall back to "biolink:related_to".
var relationPredicates = map[string]string{
	"treats":            "biolink:treats",
	"causes":            "biolink:causes",
	"associated_with":   "biolink:associated_with",
	"regulates":         "biolink:regulates",
	"interacts_with":    "biolink:interacts_with",
	"part_of":           "biolink:part_of",
	"located_in":        "biolink:located_in",
	"biomarker_for":     "biolink:biomarker_for",
	"contraindicated_for": "biolink:contraindicated_for",
	"gene_associated_with_condition": "biolink:gene_associated_with_condition",
}

const fallbackPredicate = "biolink:related_to"

// entityPalette maps an entity type to the color the frontend renders it in.
var entityPalette = map[types.EntityType]string{
	types.EntityGene:    "#4C72B0",
	types.EntityDisease: "#C44E52",
	types.EntityDrug:    "#55A868",
	types.EntityPathway: "#8172B2",
	types.EntityProtein: "#CCB974",
	types.EntityOther:   "#64748B",
}

func colorFor(t types.EntityType) string {
	if c, ok := entityPalette[t]; ok {
		return c
	}
	return entityPalette[types.EntityOther]
}

func predicateFor(relationType string) string {
	if p, ok := relationPredicates[relationType]; ok {
		return p
	}
	return fallbackPredicate
}

// labelFor derives a human-readable label from a biolink predicate by
// stripping the "biolink:" prefix and replacing underscores with spaces.
func labelFor(predicate string) string {
	label := strings.TrimPrefix(predicate, "biolink:")
	return strings.ReplaceAll(label, "_", " ")
}

func edgeID(source, target, relationType string) string {
	return source + "--" + target + "--" + relationType
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func buildEvidence(pmids []string, paperDetails map[string]types.PaperDetail) []types.Evidence {
	evidence := make([]types.Evidence, 0, len(pmids))
	for _, pmid := range pmids {
		detail := paperDetails[pmid]
		evidence = append(evidence, types.Evidence{
			PMID:    pmid,
			Snippet: detail.Title,
			PubYear: detail.Year,
			Source:  "PubMed",
		})
	}
	return evidence
}

// NotFoundResponse returns an empty payload carrying a not-found message for
// query, per spec §4.6's build_not_found_response.
func NotFoundResponse(query string) types.GraphPayload {
	return types.GraphPayload{
		Nodes:   []types.GraphNode{},
		Edges:   []types.GraphEdge{},
		Message: fmt.Sprintf("No entity found for %q", query),
	}
}

// SameEntityResponse returns an empty payload for a pair query whose two
// entity references resolved to the same entity, so there is no path to
// compute.
func SameEntityResponse(query string) types.GraphPayload {
	return types.GraphPayload{
		Nodes:   []types.GraphNode{},
		Edges:   []types.GraphEdge{},
		Message: fmt.Sprintf("Both ends of %q resolve to the same entity", query),
	}
}

// NoPathResponse returns an empty payload for a pair query whose two
// entities were both resolved but no path connects them within the engine's
// hop budget.
func NoPathResponse(query string) types.GraphPayload {
	return types.GraphPayload{
		Nodes:   []types.GraphNode{},
		Edges:   []types.GraphEdge{},
		Message: fmt.Sprintf("No path found for %q", query),
	}
}

// NeighborhoodPayload builds the neighborhood-view payload for center and its
// ranked neighbors, enriching evidence from paperDetails.
func NeighborhoodPayload(center types.Entity, related []types.NeighborEdge, paperDetails map[string]types.PaperDetail) types.GraphPayload {
	maxScore := 0
	for _, n := range related {
		if n.CooccurrenceScore > maxScore {
			maxScore = n.CooccurrenceScore
		}
	}

	nodes := []types.GraphNode{{
		ID:         center.ID,
		Name:       center.Mention,
		Type:       center.Type,
		Color:      colorFor(center.Type),
		Size:       centerNodeSize,
		IsExpanded: true,
	}}
	nodeIndex := map[string]int{center.ID: 0}

	edges := make([]types.GraphEdge, 0, len(related))
	for _, n := range related {
		size := minNeighborSize
		if maxScore > 0 {
			size = round3(minNeighborSize + neighborSizeSpan*(float64(n.CooccurrenceScore)/float64(maxScore)))
		}

		if i, ok := nodeIndex[n.OtherEntityID]; ok {
			if size > nodes[i].Size {
				nodes[i].Size = size
			}
		} else {
			nodeIndex[n.OtherEntityID] = len(nodes)
			nodes = append(nodes, types.GraphNode{
				ID:    n.OtherEntityID,
				Name:  n.OtherMention,
				Type:  n.OtherType,
				Color: colorFor(n.OtherType),
				Size:  size,
			})
		}

		source, target := center.ID, n.OtherEntityID
		if n.Direction != types.DirectionOut {
			source, target = target, source
		}

		predicate := predicateFor(n.RelationType)
		confidence := 0.0
		if maxScore > 0 {
			confidence = math.Min(math.Log1p(float64(n.CooccurrenceScore))/math.Log1p(float64(maxScore)), 1.0)
		}

		edges = append(edges, types.GraphEdge{
			ID:                edgeID(source, target, n.RelationType),
			Source:            source,
			Target:            target,
			Predicate:         predicate,
			Label:             labelFor(predicate),
			Color:             colorFor(n.OtherType),
			Direction:         n.Direction,
			ConfidenceScore:   confidence,
			Evidence:          buildEvidence(n.PMIDs, paperDetails),
			PaperCount:        n.CoOccurrence.PaperCount,
			TrialCount:        n.CoOccurrence.TrialCount,
			PatentCount:       n.CoOccurrence.PatentCount,
			CooccurrenceScore: n.CooccurrenceScore,
		})
	}

	return types.GraphPayload{CenterNodeID: center.ID, Nodes: nodes, Edges: edges}
}

// PathPayload builds the path-view payload from pathIDs in traversal order,
// the segments connecting them, entityDetails for node metadata, and
// edgePMIDs (keyed "{from}--{to}--{relation_type}", as produced by
// internal/evidence.Fetcher.EdgePMIDs) for per-edge evidence.
func PathPayload(pathIDs []string, segments []types.PathSegment, entityDetails map[string]types.Entity, edgePMIDs map[string][]string, paperDetails map[string]types.PaperDetail) types.GraphPayload {
	nodes := make([]types.GraphNode, 0, len(pathIDs))
	for i, id := range pathIDs {
		e := entityDetails[id]
		size := pathOtherSize
		expanded := false
		if i == 0 {
			size = pathStartSize
			expanded = true
		}
		nodes = append(nodes, types.GraphNode{
			ID:         id,
			Name:       e.Mention,
			Type:       e.Type,
			Color:      colorFor(e.Type),
			Size:       size,
			IsExpanded: expanded,
		})
	}

	edges := make([]types.GraphEdge, 0, len(segments))
	for _, seg := range segments {
		predicate := predicateFor(seg.RelationType)
		pmids := edgePMIDs[edgeID(seg.From, seg.To, seg.RelationType)]
		confidence := math.Min(float64(len(pmids))/float64(pathEdgeSaturationPMIDs), 1.0)
		target := entityDetails[seg.To]

		edges = append(edges, types.GraphEdge{
			ID:              edgeID(seg.From, seg.To, seg.RelationType),
			Source:          seg.From,
			Target:          seg.To,
			Predicate:       predicate,
			Label:           labelFor(predicate),
			Color:           colorFor(target.Type),
			Direction:       types.DirectionOut,
			ConfidenceScore: confidence,
			Evidence:        buildEvidence(pmids, paperDetails),
		})
	}

	var centerNodeID string
	if len(pathIDs) > 0 {
		centerNodeID = pathIDs[0]
	}
	return types.GraphPayload{CenterNodeID: centerNodeID, Nodes: nodes, Edges: edges}
}
