package sources

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"deal-sniper/internal/domain/deal"
)

type catalogItem struct {
	name     string
	category string
	base     float64
}

var demoCatalog = []catalogItem{
	{"MacBook Pro 16-inch", "electronics_computers", 2499},
	{"Dell XPS 13", "electronics_computers", 1299},
	{"Sony WH-1000XM5 Headphones", "electronics_audio", 399},
	{"AirPods Pro", "electronics_audio", 249},
	{"iPhone 15 Pro", "electronics_mobile", 999},
	{"Google Pixel 8", "electronics_mobile", 699},
	{"Canon EOS R6", "electronics_camera", 2299},
	{"Nintendo Switch OLED", "electronics_gaming", 349},
	{"PlayStation 5", "electronics_gaming", 499},
	{"iPad Air", "electronics_tablets", 599},
}

// SyntheticFetcher 產生示範用 listing，讓沒有真實來源時系統仍可運作。
// 價格以每個 (來源, 商品) 為單位做隨機漫步，偶爾出現閃購或缺貨。
type SyntheticFetcher struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
}

// NewSyntheticFetcher seed 為 0 時以目前時間為種子。
func NewSyntheticFetcher(seed int64) *SyntheticFetcher {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SyntheticFetcher{
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]float64),
	}
}

// Fetch 依 metadata["items"]（預設全部）回傳目錄中的商品。
func (f *SyntheticFetcher) Fetch(ctx context.Context, source deal.Source) ([]deal.RawListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(demoCatalog)
	if v, err := strconv.Atoi(source.MetaOr("items", "")); err == nil && v > 0 && v < n {
		n = v
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]deal.RawListing, 0, n)
	for i, item := range demoCatalog[:n] {
		if !source.SupportsCategory(item.category) {
			continue
		}
		key := source.Name + "|" + item.name
		price, ok := f.prices[key]
		if !ok {
			price = item.base * (0.95 + f.rng.Float64()*0.1)
		}
		// 約三成機率降價 5%-30%，其餘小幅回升但不超過原價
		if f.rng.Float64() < 0.3 {
			price *= 1 - (0.05 + f.rng.Float64()*0.25)
		} else {
			price = min(price*(1+f.rng.Float64()*0.03), item.base)
		}
		f.prices[key] = price

		raw := deal.RawListing{
			ExternalID:        fmt.Sprintf("%s-%d", source.Name, i),
			Name:              item.name,
			PriceText:         fmt.Sprintf("%.2f", price),
			OriginalPriceText: fmt.Sprintf("%.2f", item.base),
			Currency:          source.Currency,
			URL:               fmt.Sprintf("/products/%d", i),
			Category:          item.category,
			Availability:      "in_stock",
		}
		switch r := f.rng.Float64(); {
		case r < 0.05:
			raw.Availability = "out_of_stock"
		case r < 0.15:
			raw.Availability = "limited"
		case r < 0.25:
			raw.DealType = string(deal.TypeFlashSale)
		}
		out = append(out, raw)
	}
	return out, nil
}
