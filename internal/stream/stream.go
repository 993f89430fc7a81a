// Package stream builds the grounded explanation prompt, streams it from a
// primary LLM with an ordered fallback chain, normalizes provider-specific
// delta/cumulative chunking, and emits the resulting events in the fixed
// start/context/delta*/done-or-error sequence.
//
// Package stream does not know about HTTP or SSE wire framing; callers drain
// the channel returned by [Streamer.Run] and serialize each [Event] onto
// whatever transport they use.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/biokg/explorer/internal/rag"
	"github.com/biokg/explorer/pkg/provider/llm"
	"github.com/biokg/explorer/pkg/types"
)

// EventName identifies one of the five SSE event kinds in the explanation stream.
type EventName string

const (
	EventStart   EventName = "start"
	EventContext EventName = "context"
	EventDelta   EventName = "delta"
	EventDone    EventName = "done"
	EventError   EventName = "error"
)

// Event is one item of the sequence returned by [Streamer.Run]: exactly one
// Start, one Context, zero or more Delta, then exactly one of Done or Error.
type Event struct {
	Name EventName
	Data any
}

// StartData is the payload of the start event.
type StartData struct {
	SelectionKey  string `json:"selection_key"`
	SelectionType string `json:"selection_type"`
	EdgeID        string `json:"edge_id,omitempty"`
	Source        string `json:"source"`
	Target        string `json:"target"`
}

// ChunkDescriptor is the context event's summary of one retrieved RAG chunk.
type ChunkDescriptor struct {
	ChunkID  string       `json:"chunk_id"`
	DocID    string       `json:"doc_id"`
	SourceID string       `json:"source_id"`
	DocType  types.DocType `json:"doc_type"`
}

// ContextData is the payload of the context event.
type ContextData struct {
	Citations []types.Citation  `json:"citations"`
	Chunks    []ChunkDescriptor `json:"rag_chunks"`
}

// DeltaData is the payload of a delta event: incremental text only.
type DeltaData struct {
	Text string `json:"text"`
}

// DoneData is the payload of the terminal done event.
type DoneData struct {
	Text         string           `json:"text"`
	Citations    []types.Citation `json:"citations"`
	SelectionKey string           `json:"selection_key"`
	SelectionType string          `json:"selection_type"`
	Model        string           `json:"model"`

	// Confidence and CitedPapers are populated only for the chat variant.
	Confidence  *int     `json:"confidence,omitempty"`
	CitedPapers []string `json:"cited_papers,omitempty"`
}

// ErrorData is the payload of the terminal error event.
type ErrorData struct {
	Message     string `json:"message"`
	PartialText string `json:"partial_text"`
	Detail      string `json:"detail"`
}

// Variant selects which prompt and word-budget rules apply.
type Variant int

const (
	// VariantOverview explains a single selected edge or a center-node summary.
	VariantOverview Variant = iota
	// VariantDeepThink explains a full multi-hop path, no question.
	VariantDeepThink
	// VariantDeepThinkChat is VariantDeepThink plus a user question and rolling history.
	VariantDeepThinkChat
)

func (v Variant) wordBudget() string {
	if v == VariantDeepThinkChat {
		return "150-350 words"
	}
	return "120-220 words"
}

// PathNode is one entity along an exploration path.
type PathNode struct {
	Name string
	Type string
}

// RelatedEdgeSummary is one adjacent edge shown in a center-node overview's
// "visible relations" prompt section.
type RelatedEdgeSummary struct {
	SourceName string
	OtherName  string
	Label      string
	Score      float64
}

// HistoryEntry is one prior turn's summary, shown to the model for continuity.
type HistoryEntry struct {
	SelectionKey string
	Summary      string
}

// Request carries everything needed to build the prompt and run the stream
// for one explanation.
type Request struct {
	Variant       Variant
	SelectionKey  string
	SelectionType string // "edge", "node", or "path"
	CenterOverview bool
	EdgeID        string

	SourceName string
	TargetName string

	Predicate   string
	PaperCount  int
	TrialCount  int
	PatentCount int

	RelatedEdges []RelatedEdgeSummary
	Evidence     []types.Evidence
	RAGChunks    []rag.Chunk
	External     string // e.g. ORKG scholarly contribution text; "" if unavailable
	Path         []PathNode
	History      []HistoryEntry

	// CompressedContext, when non-empty, replaces the Evidence/RAGChunks
	// sections of the prompt. Populated by Run for the chat variant when
	// the concatenated evidence/chunk text exceeds compressionThresholdChars.
	CompressedContext string

	// Question and Messages are only used by VariantDeepThinkChat.
	Question string
	Messages []types.Message
}

// namedModel pairs a candidate LLM with the name used in logs and in the
// done event's model field.
type namedModel struct {
	name  string
	model llm.Provider
}

// Streamer runs the explanation pipeline: prompt construction, model
// fallback, delta normalization, and event sequencing.
type Streamer struct {
	candidates []namedModel
	logger     *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Streamer)

// WithLogger overrides the default [slog.Default] logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Streamer) { s.logger = l }
}

// New builds a Streamer with primary as the first model tried.
func New(primary llm.Provider, primaryName string, opts ...Option) *Streamer {
	s := &Streamer{
		candidates: []namedModel{{name: primaryName, model: primary}},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddFallback appends a fallback model, tried in registration order after
// the primary and any previously added fallbacks.
func (s *Streamer) AddFallback(name string, model llm.Provider) {
	s.candidates = append(s.candidates, namedModel{name: name, model: model})
}

// Run builds the prompt for req and streams the explanation, returning a
// channel of events in the fixed start/context/delta*/done-or-error order.
// The channel is closed after the terminal event. Run never panics or
// returns an error directly; failures surface as an error event.
func (s *Streamer) Run(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, 8)
	go s.run(ctx, req, out)
	return out
}

func (s *Streamer) run(ctx context.Context, req Request, out chan<- Event) {
	defer close(out)

	citations := normalizeCitations(req.Evidence, req.RAGChunks, req.External)

	out <- Event{Name: EventStart, Data: StartData{
		SelectionKey:  req.SelectionKey,
		SelectionType: req.SelectionType,
		EdgeID:        req.EdgeID,
		Source:        req.SourceName,
		Target:        req.TargetName,
	}}
	out <- Event{Name: EventContext, Data: ContextData{
		Citations: citations,
		Chunks:    chunkDescriptors(req.RAGChunks),
	}}

	if req.Variant == VariantDeepThinkChat {
		s.applyCompression(ctx, &req)
	}

	prompt := buildPrompt(req)

	chunkCh, modelName, err := s.streamModel(ctx, llm.CompletionRequest{
		SystemPrompt: prompt,
		Messages:     chatMessages(req),
		Temperature:  0.2,
		MaxTokens:    600,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "stream: all candidate models failed", "error", err)
		out <- Event{Name: EventError, Data: ErrorData{
			Message: "AI explanation generation failed. Showing available grounded context only.",
			Detail:  err.Error(),
		}}
		return
	}

	var fullText string
	for chunk := range chunkCh {
		if chunk.FinishReason == "error" {
			s.logger.ErrorContext(ctx, "stream: mid-stream model error", "model", modelName)
			out <- Event{Name: EventError, Data: ErrorData{
				Message:     "AI explanation generation failed. Showing available grounded context only.",
				PartialText: fullText,
				Detail:      "model stream ended with an error",
			}}
			return
		}
		delta, next := computeDelta(chunk.Text, fullText)
		fullText = next
		if delta != "" {
			out <- Event{Name: EventDelta, Data: DeltaData{Text: delta}}
		}
	}

	done := DoneData{
		Text:          fullText,
		Citations:     citations,
		SelectionKey:  req.SelectionKey,
		SelectionType: req.SelectionType,
		Model:         modelName,
	}
	if req.Variant == VariantDeepThinkChat {
		done.CitedPapers = extractCitedPapers(fullText, citations)
	}
	out <- Event{Name: EventDone, Data: done}
}

// WithChatReview fills in done.Confidence from a reviewer score computed by
// the caller. The chat variant's done event is the only one that carries a
// confidence field, and its score comes from running
// [github.com/biokg/explorer/internal/reviewer.Reviewer] synchronously against
// the finished text after the done event is built; Run itself never invokes
// the reviewer, since only the caller knows this request is on the
// synchronous chat path rather than the fire-and-forget overview path.
func WithChatReview(d DoneData, score int) DoneData {
	d.Confidence = &score
	return d
}

// streamModel tries each candidate in order: start the stream, pull the
// first chunk, and treat either a start error or a first chunk carrying
// FinishReason=="error" as that candidate failing over to the next. The
// first chunk is replayed to the caller ahead of the rest of the stream.
func (s *Streamer) streamModel(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, string, error) {
	var lastErr error
	for _, c := range s.candidates {
		ch, err := c.model.StreamCompletion(ctx, req)
		if err != nil {
			s.logger.WarnContext(ctx, "stream: model failed to start, trying next", "model", c.name, "error", err)
			lastErr = err
			continue
		}

		first, ok := <-ch
		if !ok {
			// Closed with no chunks at all: nothing to replay, nothing failed either.
			return ch, c.name, nil
		}
		if first.FinishReason == "error" {
			s.logger.WarnContext(ctx, "stream: model's first chunk was an error, trying next", "model", c.name)
			lastErr = fmt.Errorf("model %s: first chunk carried an error", c.name)
			continue
		}

		merged := make(chan llm.Chunk, cap(ch)+1)
		merged <- first
		go func() {
			defer close(merged)
			for chunk := range ch {
				merged <- chunk
			}
		}()
		return merged, c.name, nil
	}
	return nil, "", fmt.Errorf("stream: all candidate models failed: %w", lastErr)
}

// computeDelta normalizes a provider's chunk text against the accumulated
// full text so far, handling both cumulative-snapshot and true-delta
// streaming modes.
func computeDelta(current, previousFull string) (delta, fullText string) {
	if current == "" {
		return "", previousFull
	}
	if strings.HasPrefix(current, previousFull) {
		return current[len(previousFull):], current
	}
	if strings.HasPrefix(previousFull, current) {
		return "", previousFull
	}
	return current, previousFull + current
}

var citedMarkerPattern = regexp.MustCompile(`\[(\d+)\]`)

// extractCitedPapers resolves each "[n]" footnote-style marker in text to the
// nth citation's id (1-indexed), deduplicated and in first-appearance order.
// Markers with no corresponding citation are ignored.
func extractCitedPapers(text string, citations []types.Citation) []string {
	var papers []string
	seen := map[string]bool{}
	for _, m := range citedMarkerPattern.FindAllStringSubmatch(text, -1) {
		idx := 0
		for _, ch := range m[1] {
			idx = idx*10 + int(ch-'0')
		}
		if idx < 1 || idx > len(citations) {
			continue
		}
		id := citations[idx-1].ID
		if !seen[id] {
			seen[id] = true
			papers = append(papers, id)
		}
	}
	return papers
}

// chatMessages builds the conversational turn sent alongside the system
// prompt. For the chat variant this is the rolling history (already capped
// to the last 20 turns by the caller) plus the current question; the
// overview and deep-think variants carry all of their context in the
// system prompt and just need a turn to kick off generation.
func chatMessages(req Request) []types.Message {
	if req.Variant != VariantDeepThinkChat {
		return []types.Message{{Role: "user", Content: "Generate the explanation now."}}
	}
	msgs := make([]types.Message, len(req.Messages), len(req.Messages)+1)
	copy(msgs, req.Messages)
	if req.Question != "" {
		msgs = append(msgs, types.Message{Role: "user", Content: req.Question})
	}
	return msgs
}
