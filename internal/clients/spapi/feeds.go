package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const feedTypeJSONListings = "JSON_LISTINGS_FEED"

// SubmitPriceFeed submits a JSON listings feed that updates one SKU's price,
// in whole yen. Returns the feed id for later status polling.
func (c *Client) SubmitPriceFeed(ctx context.Context, sellerID, sku string, priceJPY int) (string, error) {
	message := map[string]interface{}{
		"sku":           sku,
		"operationType": "PATCH",
		"productType":   "PRODUCT",
		"patches": []map[string]interface{}{{
			"op":   "replace",
			"path": "/attributes/purchasable_offer",
			"value": []map[string]interface{}{{
				"marketplace_id": c.marketplaceID,
				"currency":       "JPY",
				"our_price": []map[string]interface{}{{
					"schedule": []map[string]interface{}{{"value_with_tax": priceJPY}},
				}},
			}},
		}},
	}
	return c.submitListingsFeed(ctx, sellerID, []map[string]interface{}{message})
}

// SubmitInventoryFeed submits a JSON listings feed that updates one SKU's
// quantity and handling lead time.
func (c *Client) SubmitInventoryFeed(ctx context.Context, sellerID, sku string, quantity, leadTimeDays int) (string, error) {
	message := map[string]interface{}{
		"sku":           sku,
		"operationType": "PATCH",
		"productType":   "PRODUCT",
		"patches": []map[string]interface{}{{
			"op":   "replace",
			"path": "/attributes/fulfillment_availability",
			"value": []map[string]interface{}{{
				"fulfillment_channel_code":   "DEFAULT",
				"quantity":                   quantity,
				"lead_time_to_ship_max_days": leadTimeDays,
			}},
		}},
	}
	return c.submitListingsFeed(ctx, sellerID, []map[string]interface{}{message})
}

// submitListingsFeed runs the three-step feed flow: create a feed document,
// upload the payload to the signed URL, then create the feed referencing it.
func (c *Client) submitListingsFeed(ctx context.Context, sellerID string, messages []map[string]interface{}) (string, error) {
	for i, m := range messages {
		m["messageId"] = i + 1
	}
	payload := map[string]interface{}{
		"header": map[string]interface{}{
			"sellerId": sellerID,
			"version":  "2.0",
		},
		"messages": messages,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode feed: %w", err)
	}

	var doc struct {
		FeedDocumentID string `json:"feedDocumentId"`
		URL            string `json:"url"`
	}
	err = c.call(ctx, http.MethodPost, "/feeds/2021-06-30/documents", nil, map[string]string{
		"contentType": "application/json; charset=UTF-8",
	}, &doc)
	if err != nil {
		return "", fmt.Errorf("create feed document: %w", err)
	}

	if err := c.uploadFeedDocument(ctx, doc.URL, encoded); err != nil {
		return "", err
	}

	var feed struct {
		FeedID string `json:"feedId"`
	}
	err = c.call(ctx, http.MethodPost, "/feeds/2021-06-30/feeds", nil, map[string]interface{}{
		"feedType":            feedTypeJSONListings,
		"marketplaceIds":      []string{c.marketplaceID},
		"inputFeedDocumentId": doc.FeedDocumentID,
	}, &feed)
	if err != nil {
		return "", fmt.Errorf("create feed: %w", err)
	}

	c.log.Info().Str("feed_id", feed.FeedID).Int("messages", len(messages)).Msg("listings feed submitted")
	return feed.FeedID, nil
}

// uploadFeedDocument PUTs the feed payload to the pre-signed document URL.
// The URL is absolute and unauthenticated, so this bypasses call().
func (c *Client) uploadFeedDocument(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload feed document: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload feed document: status %d", resp.StatusCode)
	}
	return nil
}
