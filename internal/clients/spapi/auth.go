package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTokenURL = "https://api.amazon.com/auth/o2/token"

// tokenSource exchanges an LWA refresh token for short-lived access tokens
// and caches them until shortly before expiry.
type tokenSource struct {
	httpClient   *http.Client
	tokenURL     string
	refreshToken string
	clientID     string
	clientSecret string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func newTokenSource(httpClient *http.Client, refreshToken, clientID, clientSecret string) *tokenSource {
	return &tokenSource{
		httpClient:   httpClient,
		tokenURL:     defaultTokenURL,
		refreshToken: refreshToken,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Token returns a valid access token, refreshing when the cached one is
// within a minute of expiry.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.accessToken != "" && time.Now().Before(ts.expiresAt.Add(-time.Minute)) {
		return ts.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", ts.refreshToken)
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lwa token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lwa token refresh: status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("lwa token refresh: decode: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("lwa token refresh: empty access token")
	}

	ts.accessToken = body.AccessToken
	ts.expiresAt = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return ts.accessToken, nil
}
