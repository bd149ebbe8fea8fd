// Package amazon wraps the marketplace's public search-completion endpoint.
// Unlike the SP-API it needs no credentials; it is only used by the keyword
// discovery suggest strategy.
package amazon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const defaultSuggestBaseURL = "https://completion.amazon.co.jp/api/2017/suggestions"

// jpMarketplaceID identifies amazon.co.jp to the completion endpoint.
const jpMarketplaceID = "A1VC38T7YXB528"

// SuggestClient fetches search autocomplete suggestions.
type SuggestClient struct {
	httpClient *http.Client
	baseURL    string
	log        zerolog.Logger
}

// NewSuggestClient creates an autocomplete client.
func NewSuggestClient(timeout time.Duration, log zerolog.Logger) *SuggestClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SuggestClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultSuggestBaseURL,
		log:        log.With().Str("component", "amazon-suggest").Logger(),
	}
}

// SetBaseURL points the client at a test server.
func (c *SuggestClient) SetBaseURL(u string) { c.baseURL = u }

// FetchSuggestions returns the completion strings for a search prefix.
func (c *SuggestClient) FetchSuggestions(ctx context.Context, prefix string) ([]string, error) {
	q := url.Values{}
	q.Set("mid", jpMarketplaceID)
	q.Set("alias", "aps")
	q.Set("prefix", prefix)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suggest fetch for %q: %w", prefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("suggest fetch for %q: status %d", prefix, resp.StatusCode)
	}

	var payload struct {
		Suggestions []struct {
			Value string `json:"value"`
		} `json:"suggestions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("suggest decode for %q: %w", prefix, err)
	}

	values := make([]string, 0, len(payload.Suggestions))
	for _, s := range payload.Suggestions {
		if s.Value != "" {
			values = append(values, s.Value)
		}
	}
	return values, nil
}
