package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	alertDomain "deal-sniper/internal/domain/alert"
	"deal-sniper/internal/domain/deal"
)

// SubscriptionRepository 管理訂閱存取。
type SubscriptionRepository interface {
	ListActive(ctx context.Context) ([]alertDomain.Subscription, error)
}

// AlertRepository 為持久化的待送 alert 集合。
type AlertRepository interface {
	// UpsertPending 同一 (subscription, deal) 已有未送出的 alert 時就地更新，回傳是否為新建。
	UpsertPending(ctx context.Context, a alertDomain.DealAlert) (alertDomain.DealAlert, bool, error)
	// ListPending 依 createdAt、id 順序回傳可送出的 alert。
	ListPending(ctx context.Context, now time.Time, limit int) ([]alertDomain.DealAlert, error)
	// MarkSent 只在 alert 尚未送出且 version 與讀取時相同時成功（compare-and-set）。
	MarkSent(ctx context.Context, id string, version int, at time.Time) (bool, error)
	// RecordFailure 累計失敗次數，達 maxAttempts 時標記人工檢查。
	RecordFailure(ctx context.Context, id, reason string, maxAttempts int) (alertDomain.DealAlert, error)
	// ClearReview 清除人工檢查標記並重置失敗次數。
	ClearReview(ctx context.Context, id string) error
}

// Notifier 將 alert 交給實際的推送通道。
type Notifier interface {
	Deliver(ctx context.Context, a alertDomain.DealAlert) error
}

// Generator 在 deal 變動時比對訂閱並建立 alert。
type Generator struct {
	subsRepo SubscriptionRepository
	alerts   AlertRepository
	matcher  Matcher
	now      func() time.Time
}

// NewGenerator 建立 alert 產生器。
func NewGenerator(subs SubscriptionRepository, alerts AlertRepository) *Generator {
	return &Generator{
		subsRepo: subs,
		alerts:   alerts,
		now:      time.Now,
	}
}

// HandleDealChanged 對所有符合的訂閱建立或更新待送 alert。
func (g *Generator) HandleDealChanged(ctx context.Context, change deal.Change) error {
	if !change.Deal.IsActive {
		return nil
	}
	subs, err := g.subsRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	var errs []error
	for _, sub := range g.matcher.Match(change.Deal, subs) {
		a := BuildAlert(sub, change, g.now())
		if _, _, err := g.alerts.UpsertPending(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("upsert alert for subscription %s: %w", sub.ID, err))
			continue
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// BuildAlert 依訂閱與 deal 變動組出 alert。
func BuildAlert(sub alertDomain.Subscription, change deal.Change, now time.Time) alertDomain.DealAlert {
	d := change.Deal
	return alertDomain.DealAlert{
		SubscriptionID:  sub.ID,
		UserID:          sub.UserID,
		DealID:          d.ID,
		ProductName:     d.ProductName,
		Retailer:        d.Retailer,
		ProductURL:      d.ProductURL,
		Category:        d.Category,
		Type:            alertType(change),
		OriginalPrice:   d.OriginalPrice,
		NewPrice:        d.CurrentPrice,
		DiscountPercent: d.DiscountPercent,
		DealScore:       d.Score,
		Urgency:         alertDomain.ComputeUrgency(d.DiscountPercent, d.Score),
		DeliverAfter:    alertDomain.NextDelivery(sub.Criteria.AlertFrequency, now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func alertType(change deal.Change) alertDomain.Type {
	switch change.Deal.DealType {
	case deal.TypeFlashSale:
		return alertDomain.TypeFlashSale
	case deal.TypeCoupon:
		return alertDomain.TypeCoupon
	}
	if prev := change.Previous; prev != nil && prev.Availability == deal.OutOfStock && change.Deal.Availability != deal.OutOfStock {
		return alertDomain.TypeRestock
	}
	return alertDomain.TypePriceDrop
}
