package deals

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	alertDomain "deal-sniper/internal/domain/alert"
	"deal-sniper/internal/domain/deal"
)

const (
	defaultAnalyticsWindow = 30 * 24 * time.Hour
	topRetailerLimit       = 10
)

// Analytics 為期間內的 deal 發現量、alert 類型與零售商統計。
type Analytics struct {
	Start     time.Time
	End       time.Time
	Deals     []deal.DiscoveryCount
	Alerts    []alertDomain.TypeCount
	Retailers []deal.RetailerStat
	Summary   AnalyticsSummary
}

// AnalyticsSummary 期間總數；沒有任何 deal 時 TopRetailer 為 "N/A"。
type AnalyticsSummary struct {
	TotalDeals  int
	TotalAlerts int
	TopRetailer string
}

// Analytics 統計 [start, end]，零值 end 代表現在，零值 start 代表 end 前 30 天。
func (s *Service) Analytics(ctx context.Context, start, end time.Time) (Analytics, error) {
	if end.IsZero() {
		end = s.now()
	}
	if start.IsZero() {
		start = end.Add(-defaultAnalyticsWindow)
	}
	if start.After(end) {
		return Analytics{}, fmt.Errorf("%w: startDate must not be after endDate", ErrInvalidInput)
	}
	out := Analytics{Start: start, End: end}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if out.Deals, err = s.deals.DiscoveryStats(gctx, start, end); err != nil {
			return fmt.Errorf("deal stats: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if out.Alerts, err = s.alerts.CountByType(gctx, start, end); err != nil {
			return fmt.Errorf("alert stats: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if out.Retailers, err = s.deals.RetailerStats(gctx, start, end, topRetailerLimit); err != nil {
			return fmt.Errorf("retailer stats: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Analytics{}, err
	}

	out.Summary.TopRetailer = "N/A"
	for _, c := range out.Deals {
		out.Summary.TotalDeals += c.Count
	}
	for _, c := range out.Alerts {
		out.Summary.TotalAlerts += c.Count
	}
	if len(out.Retailers) > 0 {
		out.Summary.TopRetailer = out.Retailers[0].Retailer
	}
	return out, nil
}
