// Package yahoo provides a scraper client for the Yahoo Auctions site.
// Pages are fetched with a plain HTTP client and parsed offline; an optional
// headless-browser fallback covers responses that block the simple fetch.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultItemBaseURL   = "https://page.auctions.yahoo.co.jp/jp/auction"
	defaultSearchBaseURL = "https://auctions.yahoo.co.jp/search/search"

	searchResultsPerPage = 50

	// Pacing for uncached fetches against the live site.
	fetchInterval = 500 * time.Millisecond
	fetchBurst    = 2
)

// ErrGone marks an auction page that no longer exists (404/410). The monitor
// treats it as a silent termination without a known winner.
var ErrGone = errors.New("yahoo: auction gone")

// ErrBlocked marks a fetch the site refused; with the browser fallback
// disabled it surfaces to the caller.
var ErrBlocked = errors.New("yahoo: fetch blocked")

// Config holds scraper settings.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	BrowserEnabled bool
	CacheTTL       time.Duration
}

// Client fetches and parses auction pages.
type Client struct {
	httpClient    *http.Client
	itemBaseURL   string
	searchBaseURL string
	userAgent     string
	browser       bool
	pageCache     *gocache.Cache
	limiter       *rate.Limiter
	log           zerolog.Logger
}

// NewClient creates a scraper client. The page cache keeps raw HTML for a
// short TTL so the monitor and the deal scanner never hit the same URL twice
// in quick succession.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		itemBaseURL:   defaultItemBaseURL,
		searchBaseURL: defaultSearchBaseURL,
		userAgent:     cfg.UserAgent,
		browser:       cfg.BrowserEnabled,
		pageCache:     gocache.New(ttl, 2*ttl),
		limiter:       rate.NewLimiter(rate.Every(fetchInterval), fetchBurst),
		log:           log.With().Str("client", "yahoo").Logger(),
	}
}

// SetBaseURLs overrides the site endpoints (for testing).
func (c *Client) SetBaseURLs(itemBase, searchBase string) {
	c.itemBaseURL = strings.TrimRight(itemBase, "/")
	c.searchBaseURL = searchBase
}

// FetchAuction fetches and parses one auction item page.
func (c *Client) FetchAuction(ctx context.Context, auctionID string) (*Auction, error) {
	html, err := c.fetchPage(ctx, c.itemURL(auctionID))
	if err != nil {
		return nil, err
	}
	auction, err := parseAuctionPage(html)
	if err != nil {
		return nil, fmt.Errorf("parse auction %s: %w", auctionID, err)
	}
	if auction.ID == "" {
		auction.ID = auctionID
	}
	return auction, nil
}

// FetchSearch fetches one page of search results for a query. Pages are
// 1-based.
func (c *Client) FetchSearch(ctx context.Context, query string, page int) ([]SearchResult, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("p", query)
	q.Set("n", fmt.Sprintf("%d", searchResultsPerPage))
	q.Set("b", fmt.Sprintf("%d", (page-1)*searchResultsPerPage+1))

	html, err := c.fetchPage(ctx, c.searchBaseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return parseSearchPage(html)
}

// FetchImages returns all image URLs of an auction, deduplicated in page
// order.
func (c *Client) FetchImages(ctx context.Context, auctionID string) ([]string, error) {
	html, err := c.fetchPage(ctx, c.itemURL(auctionID))
	if err != nil {
		return nil, err
	}
	return parseImages(html), nil
}

// FetchDescription returns the seller's description text of an auction.
func (c *Client) FetchDescription(ctx context.Context, auctionID string) (string, error) {
	html, err := c.fetchPage(ctx, c.itemURL(auctionID))
	if err != nil {
		return "", err
	}
	return parseDescription(html)
}

func (c *Client) itemURL(auctionID string) string {
	return c.itemBaseURL + "/" + url.PathEscape(auctionID)
}

// fetchPage returns the raw HTML of a URL, serving repeats from the page
// cache. Uncached fetches are paced by the limiter; blocked responses fall
// through to the browser when enabled.
func (c *Client) fetchPage(ctx context.Context, pageURL string) (string, error) {
	if cached, ok := c.pageCache.Get(pageURL); ok {
		return cached.(string), nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	html, err := c.fetchHTTP(ctx, pageURL)
	if errors.Is(err, ErrBlocked) && c.browser {
		c.log.Debug().Str("url", pageURL).Msg("plain fetch blocked, retrying with browser")
		html, err = c.fetchBrowser(ctx, pageURL)
	}
	if err != nil {
		return "", err
	}

	c.pageCache.SetDefault(pageURL, html)
	return html, nil
}

func (c *Client) fetchHTTP(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept-Language", "ja,en;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return "", ErrGone
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return "", ErrBlocked
	default:
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}
	return string(body), nil
}

// fetchBrowser loads the page in a headless browser and returns the rendered
// document.
func (c *Client) fetchBrowser(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(c.userAgent),
		chromedp.Flag("headless", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser fetch %s: %w", pageURL, err)
	}
	return html, nil
}
