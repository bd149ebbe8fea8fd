// Package keepa provides client functionality for the Keepa product
// analytics API. Every call consumes provider tokens; the client tracks the
// remaining balance from response metadata and surfaces failures as
// TokenError so callers can budget their scans.
package keepa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://api.keepa.com"

// searchCacheCap bounds the in-memory search-result cache. When the cap is
// reached the whole cache is dropped before inserting, which keeps one scan
// cycle coherent without an eviction queue.
const searchCacheCap = 50

// maxBatchSize is the provider's per-request ASIN limit.
const maxBatchSize = 100

// ErrNotFound is returned when a queried ASIN has no product record.
var ErrNotFound = errors.New("keepa: product not found")

// TokenError wraps a request failure together with the last known token
// balance, so callers can distinguish exhaustion from transport faults.
type TokenError struct {
	TokensLeft int
	Err        error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("keepa request failed (tokens left: %d): %v", e.TokensLeft, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// Client is an HTTP client for the analytics provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	domain     int
	log        zerolog.Logger

	mu          sync.Mutex
	tokensLeft  int
	searchCache map[searchKey][]Product
}

type searchKey struct {
	term      string
	statsDays int
}

// NewClient creates a new analytics client. domain selects the marketplace
// (5 = amazon.co.jp).
func NewClient(apiKey string, domain int, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     defaultBaseURL,
		apiKey:      apiKey,
		domain:      domain,
		log:         log.With().Str("client", "keepa").Logger(),
		tokensLeft:  -1,
		searchCache: make(map[searchKey][]Product),
	}
}

// SetBaseURL overrides the provider endpoint (for testing).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// TokensLeft returns the last token balance reported by the provider, or -1
// before the first call.
func (c *Client) TokensLeft() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokensLeft
}

// ClearSearchCache drops all cached search results. The deal scanner calls
// this once at the start of each cycle.
func (c *Client) ClearSearchCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searchCache = make(map[searchKey][]Product)
}

// QueryProduct fetches a single product by ASIN. Returns ErrNotFound when the
// provider has no record for it.
func (c *Client) QueryProduct(ctx context.Context, asin string, statsDays int, history bool) (*Product, error) {
	products, err := c.QueryProducts(ctx, []string{asin}, statsDays, history)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrNotFound
	}
	return &products[0], nil
}

// QueryProducts fetches product records for a list of ASINs, batching requests
// at the provider's 100-ASIN limit.
func (c *Client) QueryProducts(ctx context.Context, asins []string, statsDays int, history bool) ([]Product, error) {
	var products []Product
	for start := 0; start < len(asins); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(asins) {
			end = len(asins)
		}

		q := url.Values{}
		q.Set("key", c.apiKey)
		q.Set("domain", fmt.Sprintf("%d", c.domain))
		q.Set("asin", strings.Join(asins[start:end], ","))
		q.Set("stats", fmt.Sprintf("%d", statsDays))
		if history {
			q.Set("history", "1")
		} else {
			q.Set("history", "0")
		}

		var resp apiResponse
		if err := c.get(ctx, "/product", q, &resp); err != nil {
			return nil, err
		}
		for _, raw := range resp.Products {
			products = append(products, parseProduct(raw))
		}
	}
	return products, nil
}

// SearchProducts runs a product search for a free-text term, returning up to
// 40 results. Results are cached per (term, statsDays) for the lifetime of the
// cache.
func (c *Client) SearchProducts(ctx context.Context, term string, statsDays int) ([]Product, error) {
	key := searchKey{term: term, statsDays: statsDays}

	c.mu.Lock()
	if cached, ok := c.searchCache[key]; ok {
		c.mu.Unlock()
		c.log.Debug().Str("term", term).Msg("search cache hit")
		return cached, nil
	}
	c.mu.Unlock()

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("domain", fmt.Sprintf("%d", c.domain))
	q.Set("type", "product")
	q.Set("term", term)
	q.Set("stats", fmt.Sprintf("%d", statsDays))

	var resp apiResponse
	if err := c.get(ctx, "/search", q, &resp); err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(resp.Products))
	for _, raw := range resp.Products {
		products = append(products, parseProduct(raw))
		if len(products) == 40 {
			break
		}
	}

	c.mu.Lock()
	if len(c.searchCache) >= searchCacheCap {
		c.searchCache = make(map[searchKey][]Product)
	}
	c.searchCache[key] = products
	c.mu.Unlock()

	return products, nil
}

// ProductFinder runs the provider's filter endpoint with a raw selection
// document and resolves the top 50 matching ASINs into full product records.
func (c *Client) ProductFinder(ctx context.Context, selection json.RawMessage, statsDays int) ([]Product, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("domain", fmt.Sprintf("%d", c.domain))
	q.Set("selection", string(selection))

	var resp apiResponse
	if err := c.post(ctx, "/query", q, selection, &resp); err != nil {
		return nil, err
	}
	if len(resp.ASINList) == 0 {
		return nil, nil
	}

	asins := resp.ASINList
	if len(asins) > 50 {
		asins = asins[:50]
	}
	return c.QueryProducts(ctx, asins, statsDays, false)
}

type apiResponse struct {
	TokensLeft int               `json:"tokensLeft"`
	Products   []json.RawMessage `json:"products"`
	ASINList   []string          `json:"asinList"`
	Error      *apiError         `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out *apiResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return &TokenError{TokensLeft: c.TokensLeft(), Err: err}
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, q url.Values, body []byte, out *apiResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return &TokenError{TokensLeft: c.TokensLeft(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out *apiResponse) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TokenError{TokensLeft: c.TokensLeft(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return &TokenError{TokensLeft: c.TokensLeft(), Err: err}
	}

	// The provider reports the token balance even on errors; decode before
	// checking the status so the balance stays current.
	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &TokenError{TokensLeft: c.TokensLeft(), Err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		return &TokenError{TokensLeft: c.TokensLeft(), Err: fmt.Errorf("decode response: %w", err)}
	}
	c.updateTokens(out.TokensLeft)

	if resp.StatusCode != http.StatusOK || out.Error != nil {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if out.Error != nil {
			msg = out.Error.Message
		}
		return &TokenError{TokensLeft: out.TokensLeft, Err: errors.New(msg)}
	}
	return nil
}

func (c *Client) updateTokens(left int) {
	c.mu.Lock()
	c.tokensLeft = left
	c.mu.Unlock()
	if left <= 0 {
		c.log.Warn().Int("tokens_left", left).Msg("analytics token balance exhausted")
	}
}
