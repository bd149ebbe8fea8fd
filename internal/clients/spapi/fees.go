package spapi

import (
	"context"
	"math"
	"net/http"
	"sync"
)

// feeCacheCap bounds the referral-fee cache; on overflow the whole cache is
// dropped before inserting.
const feeCacheCap = 200

type feeCache struct {
	mu      sync.Mutex
	cap     int
	entries map[string]float64
}

func newFeeCache(cap int) *feeCache {
	return &feeCache{cap: cap, entries: make(map[string]float64)}
}

func (f *feeCache) get(asin string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pct, ok := f.entries[asin]
	return pct, ok
}

func (f *feeCache) put(asin string, pct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) >= f.cap {
		f.entries = make(map[string]float64)
	}
	f.entries[asin] = pct
}

// GetReferralFeePct estimates the referral fee percentage for selling an ASIN
// at the given price. Results are cached per ASIN; network requests are
// limited to one per second. Returns 0 with no error when the marketplace
// reports no referral fee, so callers can fall back to their default.
func (c *Client) GetReferralFeePct(ctx context.Context, asin string, price int) (float64, error) {
	if pct, ok := c.feeCache.get(asin); ok {
		return pct, nil
	}
	if err := c.feeLimiter.Wait(ctx); err != nil {
		return 0, err
	}

	body := map[string]interface{}{
		"FeesEstimateRequest": map[string]interface{}{
			"MarketplaceId":     c.marketplaceID,
			"Identifier":        asin,
			"IsAmazonFulfilled": false,
			"PriceToEstimateFees": map[string]interface{}{
				"ListingPrice": map[string]interface{}{
					"CurrencyCode": "JPY",
					"Amount":       price,
				},
			},
		},
	}

	var payload struct {
		Payload struct {
			FeesEstimateResult struct {
				FeesEstimate struct {
					FeeDetailList []struct {
						FeeType   string `json:"FeeType"`
						FeeAmount struct {
							Amount float64 `json:"Amount"`
						} `json:"FeeAmount"`
					} `json:"FeeDetailList"`
				} `json:"FeesEstimate"`
			} `json:"FeesEstimateResult"`
		} `json:"payload"`
	}
	err := c.call(ctx, http.MethodPost, "/products/fees/v0/items/"+asin+"/feesEstimate", nil, body, &payload)
	if err != nil {
		return 0, err
	}

	var pct float64
	for _, fee := range payload.Payload.FeesEstimateResult.FeesEstimate.FeeDetailList {
		if fee.FeeType == "ReferralFee" && price > 0 {
			pct = math.Round(fee.FeeAmount.Amount/float64(price)*1000) / 10
			break
		}
	}

	c.feeCache.put(asin, pct)
	return pct, nil
}
