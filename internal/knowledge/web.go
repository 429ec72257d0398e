package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultWebMaxResults is the default number of web results per search.
const DefaultWebMaxResults = 3

// webRequestTimeout bounds one web search round trip.
const webRequestTimeout = 20 * time.Second

// maxWebResponseBytes caps the response body read from the search API.
const maxWebResponseBytes = 1 << 20

// WebSource is a Source backed by a Tavily-compatible search API.
// It is the loop's general fallback when the curated collections come up
// short; like the curated sources it degrades to the sentinel passage
// rather than failing the turn.
type WebSource struct {
	endpoint   string
	apiKey     string
	maxResults int
	client     *http.Client
	logger     *slog.Logger
}

// NewWebSource creates a web search Source. maxResults <= 0 selects
// DefaultWebMaxResults.
func NewWebSource(endpoint, apiKey string, maxResults int, logger *slog.Logger) *WebSource {
	if maxResults <= 0 {
		maxResults = DefaultWebMaxResults
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSource{
		endpoint:   endpoint,
		apiKey:     apiKey,
		maxResults: maxResults,
		client:     &http.Client{Timeout: webRequestTimeout},
		logger:     logger,
	}
}

type webSearchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type webSearchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Retrieve implements Source. The k argument is ignored; the result count
// is fixed by the source's configuration.
func (w *WebSource) Retrieve(ctx context.Context, query string, _ int) ([]Passage, error) {
	passages, err := w.search(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		w.logger.Warn("web search failed, returning sentinel", "error", err)
		return []Passage{SentinelPassage(WebSourceID)}, nil
	}
	if len(passages) == 0 {
		return []Passage{SentinelPassage(WebSourceID)}, nil
	}
	return passages, nil
}

func (w *WebSource) search(ctx context.Context, query string) ([]Passage, error) {
	body, err := json.Marshal(webSearchRequest{
		APIKey:     w.apiKey,
		Query:      query,
		MaxResults: w.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling search API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var parsed webSearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxWebResponseBytes)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	passages := make([]Passage, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Content == "" {
			continue
		}
		text := r.Content
		if r.Title != "" {
			text = r.Title + "\n" + text
		}
		passages = append(passages, Passage{SourceID: WebSourceID, Text: text})
	}
	return passages, nil
}
