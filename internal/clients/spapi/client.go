// Package spapi provides client functionality for the Amazon Selling Partner
// API: catalog lookups, listings management, JSON feed submissions, order
// polling and referral-fee estimates. Authentication uses LWA refresh-token
// exchange; there is no official Go SDK, so the REST surface is wrapped
// directly.
package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config holds SP-API credentials and marketplace settings.
type Config struct {
	RefreshToken  string
	ClientID      string
	ClientSecret  string
	SellerID      string
	MarketplaceID string
	Endpoint      string
	Timeout       time.Duration
}

// Client is an SP-API client bound to one marketplace.
type Client struct {
	httpClient    *http.Client
	tokens        *tokenSource
	endpoint      string
	sellerID      string
	marketplaceID string
	log           zerolog.Logger

	feeLimiter *rate.Limiter
	feeCache   *feeCache
}

// NewClient creates an SP-API client. The referral-fee endpoint is
// rate-limited to one request per second regardless of caller concurrency.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		httpClient:    httpClient,
		tokens:        newTokenSource(httpClient, cfg.RefreshToken, cfg.ClientID, cfg.ClientSecret),
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		sellerID:      cfg.SellerID,
		marketplaceID: cfg.MarketplaceID,
		log:           log.With().Str("client", "spapi").Logger(),
		feeLimiter:    rate.NewLimiter(rate.Limit(1), 1),
		feeCache:      newFeeCache(feeCacheCap),
	}
}

// SetEndpoints overrides the API and LWA endpoints (for testing).
func (c *Client) SetEndpoints(apiEndpoint, tokenURL string) {
	c.endpoint = strings.TrimRight(apiEndpoint, "/")
	c.tokens.tokenURL = tokenURL
}

// SellerID returns the configured seller account id.
func (c *Client) SellerID() string { return c.sellerID }

// MarketplaceID returns the configured marketplace id.
func (c *Client) MarketplaceID() string { return c.marketplaceID }

// apiError is a decoded SP-API error list.
type apiError struct {
	StatusCode int
	Errors     []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *apiError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("sp-api: status %d", e.StatusCode)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", item.Code, item.Message))
	}
	return fmt.Sprintf("sp-api: status %d: %s", e.StatusCode, strings.Join(msgs, "; "))
}

// call performs one authenticated request. body and out may be nil. Non-2xx
// responses decode into apiError.
func (c *Client) call(ctx context.Context, method, path string, query map[string]string, body, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	u := c.endpoint + path
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("x-amz-access-token", token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	return nil
}
