package keepa

import "encoding/json"

// Indices into the provider's stats.current price array.
const (
	statAmazon = 0
	statNew    = 1
	statUsed   = 2
	statRank   = 3
)

// Product is the subset of a provider product record the pipeline uses.
// Prices are in the marketplace's smallest currency unit (whole yen for
// amazon.co.jp); zero means no offer exists on that channel.
type Product struct {
	ASIN  string
	Title string
	Brand string
	Model string

	NewPrice  int
	UsedPrice int
	SalesRank int

	RankDrops30 int
	RankDrops90 int

	// Package dimensions in millimetres, zero when unknown.
	PackageLength int
	PackageWidth  int
	PackageHeight int
}

// HasDimensions reports whether all three package dimensions are known.
func (p *Product) HasDimensions() bool {
	return p.PackageLength > 0 && p.PackageWidth > 0 && p.PackageHeight > 0
}

// SellPrice returns the price the deal scorer should assume: the used price
// when one exists, else the new price. Zero means the product is unsellable.
func (p *Product) SellPrice() int {
	if p.UsedPrice > 0 {
		return p.UsedPrice
	}
	return p.NewPrice
}

type rawProduct struct {
	ASIN          string    `json:"asin"`
	Title         string    `json:"title"`
	Brand         string    `json:"brand"`
	Model         string    `json:"model"`
	PackageLength int       `json:"packageLength"`
	PackageWidth  int       `json:"packageWidth"`
	PackageHeight int       `json:"packageHeight"`
	Stats         *rawStats `json:"stats"`
}

type rawStats struct {
	Current         []int `json:"current"`
	SalesRankDrops30 int  `json:"salesRankDrops30"`
	SalesRankDrops90 int  `json:"salesRankDrops90"`
}

// parseProduct maps a raw provider record onto a Product. The provider uses
// -1 for "no data" throughout; those collapse to zero here.
func parseProduct(raw json.RawMessage) Product {
	var rp rawProduct
	if err := json.Unmarshal(raw, &rp); err != nil {
		return Product{}
	}

	p := Product{
		ASIN:          rp.ASIN,
		Title:         rp.Title,
		Brand:         rp.Brand,
		Model:         rp.Model,
		PackageLength: clampNonNegative(rp.PackageLength),
		PackageWidth:  clampNonNegative(rp.PackageWidth),
		PackageHeight: clampNonNegative(rp.PackageHeight),
	}
	if rp.Stats != nil {
		p.NewPrice = statAt(rp.Stats.Current, statNew)
		p.UsedPrice = statAt(rp.Stats.Current, statUsed)
		p.SalesRank = statAt(rp.Stats.Current, statRank)
		p.RankDrops30 = clampNonNegative(rp.Stats.SalesRankDrops30)
		p.RankDrops90 = clampNonNegative(rp.Stats.SalesRankDrops90)
	}
	return p
}

func statAt(current []int, idx int) int {
	if idx >= len(current) {
		return 0
	}
	return clampNonNegative(current[idx])
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
