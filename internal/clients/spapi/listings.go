package spapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ListingStatusInvalid is the submission status that must surface as an
// error: the marketplace accepted the request but rejected the listing.
const ListingStatusInvalid = "INVALID"

// CatalogItem is the subset of a catalog record the pipeline uses.
type CatalogItem struct {
	ASIN        string
	Title       string
	Brand       string
	ProductType string
	ImageURL    string
}

type catalogItemPayload struct {
	ASIN      string `json:"asin"`
	Summaries []struct {
		ItemName    string `json:"itemName"`
		Brand       string `json:"brand"`
		ProductType string `json:"productType"`
	} `json:"summaries"`
	Images []struct {
		Images []struct {
			Link string `json:"link"`
		} `json:"images"`
	} `json:"images"`
}

func (p *catalogItemPayload) toCatalogItem() CatalogItem {
	item := CatalogItem{ASIN: p.ASIN}
	if len(p.Summaries) > 0 {
		item.Title = p.Summaries[0].ItemName
		item.Brand = p.Summaries[0].Brand
		item.ProductType = p.Summaries[0].ProductType
	}
	if len(p.Images) > 0 && len(p.Images[0].Images) > 0 {
		item.ImageURL = p.Images[0].Images[0].Link
	}
	return item
}

// GetCatalogItem fetches one catalog record by ASIN.
func (c *Client) GetCatalogItem(ctx context.Context, asin string) (*CatalogItem, error) {
	var payload catalogItemPayload
	err := c.call(ctx, http.MethodGet, "/catalog/2022-04-01/items/"+asin, map[string]string{
		"marketplaceIds": c.marketplaceID,
		"includedData":   "summaries,images",
	}, nil, &payload)
	if err != nil {
		return nil, err
	}
	item := payload.toCatalogItem()
	return &item, nil
}

// SearchCatalogItems runs a keyword search over the catalog.
func (c *Client) SearchCatalogItems(ctx context.Context, keywords string) ([]CatalogItem, error) {
	var payload struct {
		Items []catalogItemPayload `json:"items"`
	}
	err := c.call(ctx, http.MethodGet, "/catalog/2022-04-01/items", map[string]string{
		"marketplaceIds": c.marketplaceID,
		"keywords":       keywords,
		"includedData":   "summaries,images",
	}, nil, &payload)
	if err != nil {
		return nil, err
	}
	items := make([]CatalogItem, 0, len(payload.Items))
	for i := range payload.Items {
		items = append(items, payload.Items[i].toCatalogItem())
	}
	return items, nil
}

// GetProductType resolves the marketplace product type of an ASIN, falling
// back to the generic "PRODUCT" when the catalog record has none.
func (c *Client) GetProductType(ctx context.Context, asin string) (string, error) {
	item, err := c.GetCatalogItem(ctx, asin)
	if err != nil {
		return "", err
	}
	if item.ProductType == "" {
		return "PRODUCT", nil
	}
	return item.ProductType, nil
}

// Restriction is one listing restriction with its reasons flattened.
type Restriction struct {
	ConditionType string
	Reasons       []string
}

// GetListingRestrictions returns the restrictions for listing an ASIN in the
// given condition. An empty slice means the seller may list it.
func (c *Client) GetListingRestrictions(ctx context.Context, asin, conditionType string) ([]Restriction, error) {
	var payload struct {
		Restrictions []struct {
			ConditionType string `json:"conditionType"`
			Reasons       []struct {
				Message string `json:"message"`
			} `json:"reasons"`
		} `json:"restrictions"`
	}
	err := c.call(ctx, http.MethodGet, "/listings/2021-08-01/restrictions", map[string]string{
		"asin":           asin,
		"conditionType":  conditionType,
		"sellerId":       c.sellerID,
		"marketplaceIds": c.marketplaceID,
	}, nil, &payload)
	if err != nil {
		return nil, err
	}

	restrictions := make([]Restriction, 0, len(payload.Restrictions))
	for _, r := range payload.Restrictions {
		reasons := make([]string, 0, len(r.Reasons))
		for _, reason := range r.Reasons {
			reasons = append(reasons, reason.Message)
		}
		restrictions = append(restrictions, Restriction{ConditionType: r.ConditionType, Reasons: reasons})
	}
	return restrictions, nil
}

// ListingIssue is one validation message attached to a listings submission.
type ListingIssue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// ListingSubmission is the result of a listings API write.
type ListingSubmission struct {
	SKU          string         `json:"sku"`
	Status       string         `json:"status"`
	SubmissionID string         `json:"submissionId"`
	Issues       []ListingIssue `json:"issues"`
}

// CreateListing creates or fully replaces a listing. offerOnly restricts the
// submission to offer data for an existing catalog page. A submission with
// status INVALID is returned as an error carrying the concatenated issue
// messages.
func (c *Client) CreateListing(ctx context.Context, sellerID, sku, productType string, attributes map[string]interface{}, offerOnly bool) (*ListingSubmission, error) {
	body := map[string]interface{}{
		"productType": productType,
		"attributes":  attributes,
	}
	if offerOnly {
		body["requirements"] = "LISTING_OFFER_ONLY"
	}

	var submission ListingSubmission
	err := c.call(ctx, http.MethodPut, c.listingPath(sellerID, sku), map[string]string{
		"marketplaceIds": c.marketplaceID,
	}, body, &submission)
	if err != nil {
		return nil, err
	}
	if submission.Status == ListingStatusInvalid {
		return nil, fmt.Errorf("create listing %s rejected: %s", sku, joinIssues(submission.Issues))
	}
	return &submission, nil
}

// Listing is a live listing record.
type Listing struct {
	SKU      string
	Status   []string
	ASIN     string
	Quantity int
	Price    int // whole yen; 0 when the record carries no price
	Issues   []ListingIssue
}

// GetListing fetches a listing by SKU. Returns nil without error when the SKU
// does not exist.
func (c *Client) GetListing(ctx context.Context, sellerID, sku string) (*Listing, error) {
	var payload struct {
		SKU       string `json:"sku"`
		Summaries []struct {
			ASIN   string   `json:"asin"`
			Status []string `json:"status"`
			Price  struct {
				Amount float64 `json:"amount"`
			} `json:"price"`
		} `json:"summaries"`
		Attributes struct {
			PurchasableOffer []struct {
				OurPrice []struct {
					Schedule []struct {
						ValueWithTax float64 `json:"value_with_tax"`
					} `json:"schedule"`
				} `json:"our_price"`
			} `json:"purchasable_offer"`
		} `json:"attributes"`
		Issues []ListingIssue `json:"issues"`
	}
	err := c.call(ctx, http.MethodGet, c.listingPath(sellerID, sku), map[string]string{
		"marketplaceIds": c.marketplaceID,
		"includedData":   "summaries,attributes,issues",
	}, nil, &payload)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	listing := &Listing{SKU: payload.SKU, Issues: payload.Issues}
	if len(payload.Summaries) > 0 {
		listing.ASIN = payload.Summaries[0].ASIN
		listing.Status = payload.Summaries[0].Status
		listing.Price = int(payload.Summaries[0].Price.Amount)
	}
	if listing.Price == 0 {
		// Not every marketplace includes the summary price; the submitted
		// offer attribute still has it.
		for _, offer := range payload.Attributes.PurchasableOffer {
			for _, p := range offer.OurPrice {
				for _, s := range p.Schedule {
					if s.ValueWithTax > 0 {
						listing.Price = int(s.ValueWithTax)
						break
					}
				}
			}
		}
	}
	return listing, nil
}

// DeleteListing removes a listing by SKU.
func (c *Client) DeleteListing(ctx context.Context, sellerID, sku string) error {
	return c.call(ctx, http.MethodDelete, c.listingPath(sellerID, sku), map[string]string{
		"marketplaceIds": c.marketplaceID,
	}, nil, nil)
}

type listingPatch struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

func (c *Client) patchListing(ctx context.Context, sellerID, sku, productType string, patches []listingPatch) (*ListingSubmission, error) {
	body := map[string]interface{}{
		"productType": productType,
		"patches":     patches,
	}
	var submission ListingSubmission
	err := c.call(ctx, http.MethodPatch, c.listingPath(sellerID, sku), map[string]string{
		"marketplaceIds": c.marketplaceID,
	}, body, &submission)
	if err != nil {
		return nil, err
	}
	if submission.Status == ListingStatusInvalid {
		return nil, fmt.Errorf("patch listing %s rejected: %s", sku, joinIssues(submission.Issues))
	}
	return &submission, nil
}

// PatchListingQuantity updates the available quantity and fulfillment lead
// time of a listing.
func (c *Client) PatchListingQuantity(ctx context.Context, sellerID, sku string, quantity, leadTimeDays int) (*ListingSubmission, error) {
	return c.patchListing(ctx, sellerID, sku, "PRODUCT", []listingPatch{{
		Op:   "replace",
		Path: "/attributes/fulfillment_availability",
		Value: []map[string]interface{}{{
			"fulfillment_channel_code":   "DEFAULT",
			"quantity":                   quantity,
			"lead_time_to_ship_max_days": leadTimeDays,
		}},
	}})
}

// PatchListingPrice updates the standard price of a listing, in whole yen.
func (c *Client) PatchListingPrice(ctx context.Context, sellerID, sku string, priceJPY int) (*ListingSubmission, error) {
	return c.patchListing(ctx, sellerID, sku, "PRODUCT", []listingPatch{{
		Op:   "replace",
		Path: "/attributes/purchasable_offer",
		Value: []map[string]interface{}{{
			"marketplace_id": c.marketplaceID,
			"currency":       "JPY",
			"our_price": []map[string]interface{}{{
				"schedule": []map[string]interface{}{{"value_with_tax": priceJPY}},
			}},
		}},
	}})
}

// PatchListingLeadTime updates only the fulfillment lead time.
func (c *Client) PatchListingLeadTime(ctx context.Context, sellerID, sku string, leadTimeDays int) (*ListingSubmission, error) {
	return c.patchListing(ctx, sellerID, sku, "PRODUCT", []listingPatch{{
		Op:   "replace",
		Path: "/attributes/fulfillment_availability",
		Value: []map[string]interface{}{{
			"fulfillment_channel_code":   "DEFAULT",
			"lead_time_to_ship_max_days": leadTimeDays,
		}},
	}})
}

// PatchListingShippingGroup assigns the listing to a shipping template.
func (c *Client) PatchListingShippingGroup(ctx context.Context, sellerID, sku, shippingGroup string) (*ListingSubmission, error) {
	return c.patchListing(ctx, sellerID, sku, "PRODUCT", []listingPatch{{
		Op:   "replace",
		Path: "/attributes/merchant_shipping_group",
		Value: []map[string]interface{}{{
			"value": shippingGroup,
		}},
	}})
}

// PatchOfferImages replaces the offer images of a listing. The first URL
// becomes the main image, the rest fill the numbered slots.
func (c *Client) PatchOfferImages(ctx context.Context, sellerID, sku string, urls []string) (*ListingSubmission, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("patch offer images %s: no image urls", sku)
	}

	patches := []listingPatch{{
		Op:    "replace",
		Path:  "/attributes/main_offer_image_locator",
		Value: []map[string]interface{}{{"media_location": urls[0]}},
	}}
	for i, u := range urls[1:] {
		if i >= 5 {
			break
		}
		patches = append(patches, listingPatch{
			Op:    "replace",
			Path:  fmt.Sprintf("/attributes/other_offer_image_locator_%d", i+1),
			Value: []map[string]interface{}{{"media_location": u}},
		})
	}
	return c.patchListing(ctx, sellerID, sku, "PRODUCT", patches)
}

func (c *Client) listingPath(sellerID, sku string) string {
	return "/listings/2021-08-01/items/" + sellerID + "/" + sku
}

func joinIssues(issues []ListingIssue) string {
	if len(issues) == 0 {
		return "no issues reported"
	}
	msgs := make([]string, 0, len(issues))
	for _, issue := range issues {
		msgs = append(msgs, issue.Message)
	}
	return strings.Join(msgs, "; ")
}
