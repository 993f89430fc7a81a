package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultExternalTimeout bounds how long ExternalFetcher waits for a single
// paper-search call before giving up.
const DefaultExternalTimeout = 15 * time.Second

const semanticScholarSearchURL = "https://api.semanticscholar.org/graph/v1/paper/search"

// ExternalPaper is one scholarly contribution returned by [ExternalFetcher.Search].
type ExternalPaper struct {
	Title   string
	Authors []string
	Year    int
	DOI     string
	URL     string
}

// ExternalFetcher looks up scholarly contributions from a public literature
// API, supplementing the warehouse's own evidence when a center node or path
// segment has thin PMID coverage. It has no authenticated dependency on the
// warehouse at all: a plain timed-out HTTP client is enough.
type ExternalFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// ExternalOption configures an [ExternalFetcher].
type ExternalOption func(*ExternalFetcher)

// WithExternalBaseURL overrides the Semantic Scholar search endpoint, mainly
// for pointing tests at a local server.
func WithExternalBaseURL(url string) ExternalOption {
	return func(f *ExternalFetcher) { f.baseURL = url }
}

// WithExternalTimeout overrides [DefaultExternalTimeout].
func WithExternalTimeout(d time.Duration) ExternalOption {
	return func(f *ExternalFetcher) { f.httpClient.Timeout = d }
}

// NewExternalFetcher builds an ExternalFetcher with a 15-second default
// per-request timeout.
func NewExternalFetcher(opts ...ExternalOption) *ExternalFetcher {
	f := &ExternalFetcher{
		baseURL:    semanticScholarSearchURL,
		httpClient: &http.Client{Timeout: DefaultExternalTimeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type searchResponse struct {
	Data []struct {
		Title         string `json:"title"`
		Year          int    `json:"year"`
		ExternalIDs   struct {
			DOI string `json:"DOI"`
		} `json:"externalIds"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"data"`
}

// Search queries the public paper-search endpoint for query and returns up
// to limit results. Any failure (network, non-200 status, malformed body)
// yields a nil slice and a non-nil error; callers treat this source as
// best-effort and fall back to warehouse-only evidence on error.
func (f *ExternalFetcher) Search(ctx context.Context, query string, limit int) ([]ExternalPaper, error) {
	if query == "" {
		return nil, nil
	}

	u := f.baseURL + "?" + url.Values{
		"query":  {query},
		"limit":  {fmt.Sprintf("%d", limit)},
		"fields": {"title,year,externalIds,authors"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("evidence: build external search request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("evidence: external search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("evidence: external search: unexpected status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("evidence: decode external search response: %w", err)
	}

	papers := make([]ExternalPaper, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		authors := make([]string, 0, len(d.Authors))
		for _, a := range d.Authors {
			authors = append(authors, a.Name)
		}
		papers = append(papers, ExternalPaper{
			Title:   d.Title,
			Authors: authors,
			Year:    d.Year,
			DOI:     d.ExternalIDs.DOI,
		})
	}
	return papers, nil
}

// ContributionText renders papers as the free-text block [stream.buildPrompt]
// expects for its "ORKG scholarly contributions" section, one line per paper
// with an inline "DOI: ..." marker so [normalizeCitations] can mine citations
// out of it the same way it would from a curated ORKG export.
func ContributionText(papers []ExternalPaper) string {
	if len(papers) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range papers {
		sb.WriteString("- ")
		sb.WriteString(p.Title)
		if p.Year != 0 {
			sb.WriteString(fmt.Sprintf(" (%d)", p.Year))
		}
		if p.DOI != "" {
			sb.WriteString(" DOI: " + p.DOI)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
