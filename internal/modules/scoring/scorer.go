// Package scoring turns a matched (auction, marketplace product) pair into a
// costed deal candidate. All functions are pure; thresholds and fallbacks
// come in as arguments so the scorer stays independent of configuration.
package scoring

import (
	"math"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/keepa"
)

// forwardingSteps maps a parcel size category (total of three sides, mm) to
// the forwarding cost in yen. The figures come from the operator's carrier
// contract; parcels past the last step cannot be forwarded at all.
var forwardingSteps = []struct {
	maxTotalMM int
	cost       int
}{
	{600, 735},
	{800, 840},
	{1000, 960},
	{1200, 1150},
	{1400, 1340},
	{1600, 1810},
	{1800, 3060},
	{2000, 3810},
}

// Input carries the auction-side numbers and operator settings for one
// scoring pass.
type Input struct {
	YahooPrice        int
	YahooShipping     int
	FeePct            float64
	ForwardingCost    int // fallback when the product has no package dimensions
	SystemFee         int
	GoodRankThreshold int
}

// DealCandidate is a fully costed potential deal.
type DealCandidate struct {
	ASIN        string
	AmazonTitle string
	Condition   string // "used" or "new", whichever price was assumed

	YahooPrice     int
	YahooShipping  int
	ForwardingCost int
	SystemFee      int
	TotalCost      int

	SellPrice      int
	FeePct         float64
	AmazonFee      int
	GrossProfit    int
	GrossMarginPct float64

	SalesRank int
	SellsWell bool
	Trends    []string
}

// ScoreDeal costs a potential deal. Returns nil when the product has no sell
// price, the fee percentage leaves no room for revenue, or the parcel is too
// large to forward.
func ScoreDeal(product *keepa.Product, in Input) *DealCandidate {
	sellPrice := product.SellPrice()
	if sellPrice <= 0 {
		return nil
	}
	if in.FeePct >= 100 {
		return nil
	}

	forwarding := in.ForwardingCost
	if product.HasDimensions() {
		total := product.PackageLength + product.PackageWidth + product.PackageHeight
		cost, ok := forwardingCostFor(total)
		if !ok {
			return nil
		}
		forwarding = cost
	}

	condition := "used"
	if product.UsedPrice <= 0 {
		condition = "new"
	}

	totalCost := in.YahooPrice + in.YahooShipping + forwarding + in.SystemFee
	amazonFee := int(math.Floor(float64(sellPrice) * in.FeePct / 100))
	grossProfit := sellPrice - totalCost - amazonFee
	grossMargin := math.Round(float64(grossProfit)/float64(sellPrice)*1000) / 10

	return &DealCandidate{
		ASIN:           product.ASIN,
		AmazonTitle:    product.Title,
		Condition:      condition,
		YahooPrice:     in.YahooPrice,
		YahooShipping:  in.YahooShipping,
		ForwardingCost: forwarding,
		SystemFee:      in.SystemFee,
		TotalCost:      totalCost,
		SellPrice:      sellPrice,
		FeePct:         in.FeePct,
		AmazonFee:      amazonFee,
		GrossProfit:    grossProfit,
		GrossMarginPct: grossMargin,
		SalesRank:      product.SalesRank,
		SellsWell:      product.SalesRank > 0 && product.SalesRank <= in.GoodRankThreshold,
		Trends:         trendTags(product),
	}
}

func forwardingCostFor(totalMM int) (int, bool) {
	for _, step := range forwardingSteps {
		if totalMM <= step.maxTotalMM {
			return step.cost, true
		}
	}
	return 0, false
}

// trendTags derives coarse demand labels from the provider's rank-drop
// counters. A rank drop means a sale happened.
func trendTags(p *keepa.Product) []string {
	var tags []string
	if p.RankDrops30 >= 30 {
		tags = append(tags, "fast_moving")
	} else if p.RankDrops30 >= 10 {
		tags = append(tags, "steady_seller")
	}
	if p.RankDrops90 > 0 && p.RankDrops30 == 0 {
		tags = append(tags, "slowing_down")
	}
	return tags
}

// CalculateAmazonPrice computes the listing price that leaves the requested
// margin after the referral fee: price × (1 − fee% − margin%) must cover the
// purchase and forwarding cost. The result is rounded up to the nearest 10
// yen. Returns 0 when margin plus fee leaves nothing.
func CalculateAmazonPrice(purchaseCost, forwardingCost int, marginPct, feePct float64) int {
	keep := 1 - (marginPct+feePct)/100
	if keep <= 0 {
		return 0
	}
	raw := float64(purchaseCost+forwardingCost) / keep
	return int(math.Ceil(raw/10)) * 10
}
