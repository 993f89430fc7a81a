package httpapi

import (
	"github.com/biokg/explorer/internal/stream"
	"github.com/biokg/explorer/pkg/types"
)

// historyEntryDTO is the wire shape of one prior turn in a "history" array.
type historyEntryDTO struct {
	SelectionKey string `json:"selection_key"`
	Summary      string `json:"summary"`
}

func (d historyEntryDTO) toHistoryEntry() stream.HistoryEntry {
	return stream.HistoryEntry{SelectionKey: d.SelectionKey, Summary: d.Summary}
}

// messageDTO is the wire shape of one chat turn in a "messages" array.
type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (d messageDTO) toMessage() types.Message {
	return types.Message{Role: d.Role, Content: d.Content}
}

// explainRequest is the common body shape shared by /api/overview/stream,
// /api/deep-think/stream, and /api/deep-think/chat/stream; each handler
// reads only the fields relevant to its variant.
type explainRequest struct {
	SelectionType string            `json:"selection_type"`
	EdgeID        string            `json:"edge_id"`
	NodeID        string            `json:"node_id"`
	CenterNodeID  string            `json:"center_node_id"`
	Entities      []types.GraphNode `json:"entities"`
	Edges         []types.GraphEdge `json:"edges"`
	History       []historyEntryDTO `json:"history"`
	Path          []string          `json:"path"`
	Question      string            `json:"question"`
	Messages      []messageDTO      `json:"messages"`
}

func (req explainRequest) findNode(id string) (types.GraphNode, bool) {
	for _, n := range req.Entities {
		if n.ID == id {
			return n, true
		}
	}
	return types.GraphNode{}, false
}

func (req explainRequest) findEdge(id string) (types.GraphEdge, bool) {
	for _, e := range req.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return types.GraphEdge{}, false
}

func (req explainRequest) historyEntries() []stream.HistoryEntry {
	out := make([]stream.HistoryEntry, len(req.History))
	for i, h := range req.History {
		out[i] = h.toHistoryEntry()
	}
	return out
}

// chatMessages converts the rolling chat history, keeping only the last 20
// turns.
func (req explainRequest) chatMessages() []types.Message {
	const maxTurns = 20
	msgs := req.Messages
	if len(msgs) > maxTurns {
		msgs = msgs[len(msgs)-maxTurns:]
	}
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.toMessage()
	}
	return out
}

// pathNodes resolves req.Path (a list of entity ids in traversal order)
// against req.Entities.
func (req explainRequest) pathNodes() []stream.PathNode {
	out := make([]stream.PathNode, 0, len(req.Path))
	for _, id := range req.Path {
		n, ok := req.findNode(id)
		if !ok {
			continue
		}
		out = append(out, stream.PathNode{Name: n.Name, Type: string(n.Type)})
	}
	return out
}
