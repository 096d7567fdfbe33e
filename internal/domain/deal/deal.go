package deal

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound 查無資料。
var ErrNotFound = errors.New("not found")

// DefaultTTL 為 deal 預設存活時間，逾期未被來源刷新即失效。
const DefaultTTL = 7 * 24 * time.Hour

// Availability 商品庫存狀態。
type Availability string

const (
	InStock    Availability = "in_stock"
	Limited    Availability = "limited"
	OutOfStock Availability = "out_of_stock"
)

// Type 列舉 deal 類型。
type Type string

const (
	TypePriceDrop Type = "price_drop"
	TypeFlashSale Type = "flash_sale"
	TypeCoupon    Type = "coupon"
	TypeClearance Type = "clearance"
)

// ParseType 將來源字串轉為 Type，無法辨識時視為 price_drop。
func ParseType(raw string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeFlashSale:
		return TypeFlashSale
	case TypeCoupon:
		return TypeCoupon
	case TypeClearance:
		return TypeClearance
	default:
		return TypePriceDrop
	}
}

// Deal 為目前追蹤中的 (product, retailer) 優惠。
type Deal struct {
	ID              string
	ProductName     string
	Retailer        string
	CurrentPrice    float64
	OriginalPrice   float64
	DiscountPercent int
	Currency        string
	ProductURL      string
	ImageURL        string
	Availability    Availability
	Score           float64
	Category        string
	DealType        Type
	IsActive        bool
	ExpiresAt       time.Time
	LastSeenAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Key 回傳 inventory 唯一鍵。
func (d Deal) Key() Key {
	return Key{ProductName: d.ProductName, Retailer: d.Retailer}
}

// Key 以 (productName, retailer) 識別同一筆 deal 與價格歷史。
type Key struct {
	ProductName string
	Retailer    string
}

func (k Key) String() string {
	return k.Retailer + "|" + k.ProductName
}

// DiscountPercent 計算 round((original-current)/original*100)，不會小於 0。
func DiscountPercent(original, current float64) int {
	if original <= 0 || current >= original {
		return 0
	}
	o := decimal.NewFromFloat(original)
	c := decimal.NewFromFloat(current)
	pct := o.Sub(c).Div(o).Mul(decimal.NewFromInt(100)).Round(0)
	return int(pct.IntPart())
}

// Score 計算 0-100 的 deal 分數：折扣越深越高，缺貨扣分，越新越高。
func Score(discount int, availability Availability, createdAt, now time.Time, ttl time.Duration) float64 {
	d := math.Min(math.Max(float64(discount), 0), 100)
	score := 0.6 * d

	switch availability {
	case InStock:
		score += 25
	case Limited:
		score += 20
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	freshness := 1.0
	if !createdAt.IsZero() {
		age := now.Sub(createdAt)
		freshness = 1 - float64(age)/float64(ttl)
	}
	score += 15 * math.Min(math.Max(freshness, 0), 1)

	return math.Round(math.Min(math.Max(score, 0), 100)*100) / 100
}

// Reprice 以新價格更新 deal，並重新計算折扣、分數與到期時間。
func (d Deal) Reprice(price, reportedOriginal float64, availability Availability, now time.Time, ttl time.Duration) Deal {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if reportedOriginal > d.OriginalPrice {
		d.OriginalPrice = reportedOriginal
	}
	d.CurrentPrice = price
	d.DiscountPercent = DiscountPercent(d.OriginalPrice, price)
	if availability != "" {
		d.Availability = availability
	}
	d.Score = Score(d.DiscountPercent, d.Availability, d.CreatedAt, now, ttl)
	d.IsActive = true
	d.LastSeenAt = now
	d.ExpiresAt = now.Add(ttl)
	return d
}

// Expired 判斷 deal 是否已過期或超過 ttl 未被刷新。
func (d Deal) Expired(now time.Time, ttl time.Duration) bool {
	if !d.ExpiresAt.IsZero() && !d.ExpiresAt.After(now) {
		return true
	}
	if ttl > 0 && !d.LastSeenAt.IsZero() && d.LastSeenAt.Before(now.Add(-ttl)) {
		return true
	}
	return false
}

// PriceObservation 為價格歷史中的單筆觀測，寫入後不可變。
type PriceObservation struct {
	ID          string
	ProductName string
	Retailer    string
	Price       float64
	Currency    string
	ObservedAt  time.Time
}

// SortField 列舉搜尋排序欄位。
type SortField string

const (
	SortScore    SortField = "score"
	SortDiscount SortField = "discount"
	SortPrice    SortField = "price"
	SortRecent   SortField = "recent"
)

// SearchFilter 定義 deal 搜尋條件。
type SearchFilter struct {
	Category    string
	Retailer    string
	MinDiscount int
	MaxPrice    float64
	SortBy      SortField
	Limit       int
}

// Normalize 套用預設值與上下限。
func (f SearchFilter) Normalize() SearchFilter {
	switch f.SortBy {
	case SortScore, SortDiscount, SortPrice, SortRecent:
	default:
		f.SortBy = SortScore
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.MinDiscount < 0 {
		f.MinDiscount = 0
	}
	return f
}

// Match 判斷 deal 是否符合搜尋條件（僅回傳 active deal）。
func (f SearchFilter) Match(d Deal) bool {
	if !d.IsActive {
		return false
	}
	if f.Category != "" && !strings.EqualFold(d.Category, f.Category) {
		return false
	}
	if f.Retailer != "" && !strings.EqualFold(d.Retailer, f.Retailer) {
		return false
	}
	if d.DiscountPercent < f.MinDiscount {
		return false
	}
	if f.MaxPrice > 0 && d.CurrentPrice > f.MaxPrice {
		return false
	}
	return true
}

// Change 為一次會觸發比對的 deal 變動（新建或降價）。
type Change struct {
	Deal     Deal
	Previous *Deal // 新建時為 nil
}
