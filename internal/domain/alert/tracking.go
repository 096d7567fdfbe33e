package alert

import (
	"net/url"
	"strings"
	"time"
)

// PriceTarget 為使用者追蹤的單一商品頁，TargetPrice 為 nil 時任何降價都算達標。
type PriceTarget struct {
	ID          string
	UserID      string
	ProductURL  string
	TargetPrice *float64
	AlertType   Type
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WithDefaults 清理空白並補上預設 alert 類型。
func (t PriceTarget) WithDefaults() PriceTarget {
	t.UserID = strings.TrimSpace(t.UserID)
	t.ProductURL = strings.TrimSpace(t.ProductURL)
	if t.AlertType == "" {
		t.AlertType = TypePriceDrop
	}
	return t
}

// Problems 回傳所有不合法的欄位說明。
func (t PriceTarget) Problems() []string {
	var reasons []string
	if t.UserID == "" {
		reasons = append(reasons, "user_id is required")
	}
	if u, err := url.Parse(t.ProductURL); t.ProductURL == "" || err != nil || u.Host == "" {
		reasons = append(reasons, "product_url must be an absolute url")
	}
	if t.TargetPrice != nil && *t.TargetPrice <= 0 {
		reasons = append(reasons, "target_price must be > 0")
	}
	switch t.AlertType {
	case TypePriceDrop, TypeFlashSale, TypeCoupon, TypeRestock:
	default:
		reasons = append(reasons, "unsupported alert_type: "+string(t.AlertType))
	}
	return reasons
}

// Reached 目前價格是否已達追蹤目標。
func (t PriceTarget) Reached(currentPrice, originalPrice float64) bool {
	if currentPrice <= 0 {
		return false
	}
	if t.TargetPrice == nil {
		return currentPrice < originalPrice
	}
	return currentPrice <= *t.TargetPrice
}

// TypeCount 為某 alert 類型在期間內的數量。
type TypeCount struct {
	Type  Type
	Count int
}
