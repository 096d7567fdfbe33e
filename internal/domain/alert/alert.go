package alert

import "time"

// Type 列舉 alert 類型。
type Type string

const (
	TypePriceDrop Type = "price_drop"
	TypeFlashSale Type = "flash_sale"
	TypeCoupon    Type = "coupon"
	TypeRestock   Type = "restock"
)

// Urgency 為 alert 的嚴重程度。
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// ComputeUrgency 依折扣與 deal 分數決定 urgency。
func ComputeUrgency(discount int, score float64) Urgency {
	switch {
	case discount >= 50 || score >= 90:
		return UrgencyCritical
	case discount >= 30 || score >= 80:
		return UrgencyHigh
	case discount >= 15 || score >= 70:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// DealAlert 為單一 (subscription, deal) 的通知紀錄。
// 同一組合最多只會有一筆未送出的 alert；送出後僅 IsRead 可變。
// Version 在每次就地更新時遞增，標記送出時必須與讀取時一致。
type DealAlert struct {
	ID              string
	SubscriptionID  string
	UserID          string
	DealID          string
	ProductName     string
	Retailer        string
	ProductURL      string
	Category        string
	Type            Type
	OriginalPrice   float64
	NewPrice        float64
	DiscountPercent int
	DealScore       float64
	Urgency         Urgency
	DeliverAfter    time.Time
	IsSent          bool
	SentAt          *time.Time
	IsRead          bool
	Attempts        int
	LastError       string
	NeedsReview     bool
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Pending 是否仍在待送集合中（未送出且未被標記人工檢查）。
func (a DealAlert) Pending(now time.Time) bool {
	return !a.IsSent && !a.NeedsReview && !a.DeliverAfter.After(now)
}
