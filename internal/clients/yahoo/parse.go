package yahoo

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

// jst is the site's display timezone; all parsed times are converted to UTC.
var jst = time.FixedZone("JST", 9*60*60)

// Auction is one parsed item-page snapshot.
type Auction struct {
	ID           string
	Title        string
	CurrentPrice int
	WinPrice     int
	Bids         int
	StartTime    time.Time
	EndTime      time.Time
	IsClosed     bool
	HasWinner    bool
	Status       string
	ImageURL     string
	SellerID     string
}

// SearchResult is one parsed search-results row.
type SearchResult struct {
	AuctionID    string
	Title        string
	CurrentPrice int
	BuyNowPrice  int // 0 when the listing has no buy-now option
	EndTime      time.Time
	Shipping     int // 0 free, -1 unknown
	ImageURL     string
}

var (
	pageDataPattern = regexp.MustCompile(`(?s)var\s+pageData\s*=\s*(\{.*?\});`)
	sellerPattern   = regexp.MustCompile(`seller/([A-Za-z0-9_-]+)`)
	cdnImagePattern = regexp.MustCompile(`https://auctions\.c\.yimg\.jp/images\.auctions\.yahoo\.co\.jp/image/[^\s"'\\]+`)
	firstIntPattern = regexp.MustCompile(`\d[\d,]*`)
)

// pageData is the JSON blob embedded in every item page. All values arrive as
// strings.
type pageData struct {
	Items map[string]json.RawMessage `json:"items"`
}

func parseAuctionPage(html string) (*Auction, error) {
	m := pageDataPattern.FindStringSubmatch(html)
	if m == nil {
		return nil, errors.New("pageData blob not found")
	}

	var pd pageData
	if err := json.Unmarshal([]byte(m[1]), &pd); err != nil {
		return nil, fmt.Errorf("decode pageData: %w", err)
	}
	if pd.Items == nil {
		return nil, errors.New("pageData has no items")
	}

	auction := &Auction{
		ID:           itemString(pd.Items, "productID"),
		Title:        itemString(pd.Items, "productName"),
		CurrentPrice: itemInt(pd.Items, "price"),
		WinPrice:     itemInt(pd.Items, "winPrice"),
		Bids:         itemInt(pd.Items, "bids"),
		IsClosed:     itemString(pd.Items, "isClosed") == "1",
		HasWinner:    itemString(pd.Items, "hasWinner") == "1",
	}
	auction.StartTime = parseJSTTime(itemString(pd.Items, "starttime"))
	auction.EndTime = parseJSTTime(itemString(pd.Items, "endtime"))

	switch {
	case auction.IsClosed && auction.HasWinner:
		auction.Status = domain.ItemStatusEndedSold
	case auction.IsClosed:
		auction.Status = domain.ItemStatusEndedNoWinner
	default:
		auction.Status = domain.ItemStatusActive
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		auction.ImageURL, _ = doc.Find(`meta[property="og:image"]`).Attr("content")
	}
	if sm := sellerPattern.FindStringSubmatch(html); sm != nil {
		auction.SellerID = sm[1]
	}
	return auction, nil
}

// itemString reads a pageData value that may be a JSON string or number.
func itemString(items map[string]json.RawMessage, key string) string {
	raw, ok := items[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func itemInt(items map[string]json.RawMessage, key string) int {
	s := strings.ReplaceAll(itemString(items, key), ",", "")
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

// parseJSTTime parses the site's "YYYY-MM-DD HH:MM:SS" timestamps, which are
// JST wall-clock times, into UTC. Zero time on failure.
func parseJSTTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, jst)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseSearchPage(html string) ([]SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var results []SearchResult
	doc.Find(".Product").Each(func(_ int, item *goquery.Selection) {
		id := auctionAttr(item, "data-auction-id")
		if id == "" {
			return
		}
		r := SearchResult{
			AuctionID:    id,
			Title:        auctionAttr(item, "data-auction-title"),
			CurrentPrice: atoiLoose(auctionAttr(item, "data-auction-price")),
			ImageURL:     auctionAttr(item, "data-auction-img"),
		}
		if ts := atoiLoose(auctionAttr(item, "data-auction-endtime")); ts > 0 {
			r.EndTime = time.Unix(int64(ts), 0).UTC()
		}
		r.BuyNowPrice = parseBuyNow(item)
		r.Shipping = parseShipping(item)
		results = append(results, r)
	})
	return results, nil
}

// auctionAttr finds a data-auction-* attribute on the item or any descendant,
// preferring the first non-empty value.
func auctionAttr(item *goquery.Selection, name string) string {
	if v, ok := item.Attr(name); ok && v != "" {
		return v
	}
	var found string
	item.Find("[" + name + "]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr(name); ok && v != "" {
			found = v
			return false
		}
		return true
	})
	return found
}

// parseBuyNow reads the buy-now price from the data attribute or, when
// absent, from the price element labelled 即決 (instant purchase).
func parseBuyNow(item *goquery.Selection) int {
	if v := auctionAttr(item, "data-auction-buynowprice"); v != "" {
		return atoiLoose(v)
	}
	price := 0
	item.Find(".Product__price").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Find(".Product__label").Text(), "即決") {
			return true
		}
		price = atoiLoose(s.Find(".Product__priceValue").Text())
		if price == 0 {
			price = atoiLoose(s.Text())
		}
		return false
	})
	return price
}

// parseShipping extracts the shipping cost: 0 for free shipping, -1 unknown.
func parseShipping(item *goquery.Selection) int {
	if strings.Contains(item.Text(), "送料無料") {
		return 0
	}
	shipping := -1
	item.Find(".Product__postage, [class*=shipping]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := firstIntPattern.FindString(s.Text()); m != "" {
			shipping = atoiLoose(m)
			return false
		}
		return true
	})
	return shipping
}

// parseImages gathers all item images: pageData image arrays first, then
// og:image, then a raw scan for CDN image URLs. Order-preserving dedup.
func parseImages(html string) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	if m := pageDataPattern.FindStringSubmatch(html); m != nil {
		var pd struct {
			Items map[string]json.RawMessage `json:"items"`
		}
		if json.Unmarshal([]byte(m[1]), &pd) == nil && pd.Items != nil {
			for _, key := range []string{"img", "images", "imgArray"} {
				raw, ok := pd.Items[key]
				if !ok {
					continue
				}
				var list []string
				if json.Unmarshal(raw, &list) == nil {
					for _, u := range list {
						add(u)
					}
				}
			}
		}
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
			add(og)
		}
	}

	for _, u := range cdnImagePattern.FindAllString(html, -1) {
		add(u)
	}
	return urls
}

// parseDescription extracts the seller's free-text description.
func parseDescription(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse description: %w", err)
	}
	for _, sel := range []string{".ProductExplanation__commentBody", "#ProductExplanation", ".ProductExplanation"} {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text, nil
		}
	}
	return "", nil
}

func atoiLoose(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimSuffix(s, "円")
	if s == "" {
		return 0
	}
	if m := firstIntPattern.FindString(s); m != "" {
		s = strings.ReplaceAll(m, ",", "")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
