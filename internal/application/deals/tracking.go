package deals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	alertDomain "deal-sniper/internal/domain/alert"
	"deal-sniper/internal/domain/deal"
)

const defaultTrackingLimit = 100

// TrackedProduct 為追蹤項目加上目前 inventory 中對應 deal 的狀態。
type TrackedProduct struct {
	Target  alertDomain.PriceTarget
	Deal    *deal.Deal
	Reached bool
}

// TrackProduct 新增一筆商品頁追蹤。
func (s *Service) TrackProduct(ctx context.Context, target alertDomain.PriceTarget) (alertDomain.PriceTarget, error) {
	target = target.WithDefaults()
	target.IsActive = true
	if problems := target.Problems(); len(problems) > 0 {
		return alertDomain.PriceTarget{}, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	created, err := s.tracking.Create(ctx, target)
	if err != nil {
		return alertDomain.PriceTarget{}, fmt.Errorf("create tracking: %w", err)
	}
	return created, nil
}

// ListTracking 回傳使用者啟用中的追蹤，並以商品網址對上目前的 deal 判斷是否達標。
func (s *Service) ListTracking(ctx context.Context, userID string, limit int) ([]TrackedProduct, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	targets, err := s.tracking.ListActiveByUser(ctx, userID, clampLimit(limit, defaultTrackingLimit))
	if err != nil {
		return nil, fmt.Errorf("list tracking: %w", err)
	}
	out := make([]TrackedProduct, 0, len(targets))
	for _, t := range targets {
		item := TrackedProduct{Target: t}
		d, err := s.deals.FindByURL(ctx, t.ProductURL)
		switch {
		case errors.Is(err, deal.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("find deal for %s: %w", t.ProductURL, err)
		default:
			item.Deal = &d
			item.Reached = d.IsActive && t.Reached(d.CurrentPrice, d.OriginalPrice)
		}
		out = append(out, item)
	}
	return out, nil
}
