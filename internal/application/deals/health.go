package deals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deal-sniper/internal/application/scanner"
)

// ErrInvalidInput 參數不合法。
var ErrInvalidInput = errors.New("invalid input")

// SourceHealth 單一來源的掃描統計。
type SourceHealth struct {
	Name          string     `json:"name"`
	Active        bool       `json:"active"`
	SuccessCount  int        `json:"successCount"`
	ErrorCount    int        `json:"errorCount"`
	LastError     string     `json:"lastError,omitempty"`
	LastScannedAt *time.Time `json:"lastScannedAt,omitempty"`
}

// Health 營運監控摘要。
type Health struct {
	ActiveDeals         int                 `json:"activeDeals"`
	RecentAlerts24h     int                 `json:"recentAlerts24h"`
	ActiveSources       int                 `json:"activeSources"`
	PendingQueueSize    int                 `json:"pendingQueueSize"`
	FlaggedAlerts       int                 `json:"flaggedAlerts"`
	ActiveSubscriptions int                 `json:"activeSubscriptions"`
	Sources             []SourceHealth      `json:"sources"`
	LastScan            *scanner.ScanReport `json:"lastScan,omitempty"`
}

// Health 彙整 inventory、alert 佇列與來源狀態。
func (s *Service) Health(ctx context.Context) (Health, error) {
	var h Health
	var err error

	if h.ActiveDeals, err = s.deals.CountActive(ctx); err != nil {
		return h, fmt.Errorf("count deals: %w", err)
	}
	if h.RecentAlerts24h, err = s.alerts.CountSince(ctx, s.now().Add(-24*time.Hour)); err != nil {
		return h, fmt.Errorf("count recent alerts: %w", err)
	}
	if h.ActiveSources, err = s.sources.CountActive(ctx); err != nil {
		return h, fmt.Errorf("count sources: %w", err)
	}
	if h.PendingQueueSize, err = s.alerts.CountPending(ctx); err != nil {
		return h, fmt.Errorf("count pending alerts: %w", err)
	}
	if h.FlaggedAlerts, err = s.alerts.CountFlagged(ctx); err != nil {
		return h, fmt.Errorf("count flagged alerts: %w", err)
	}
	if h.ActiveSubscriptions, err = s.subs.CountActive(ctx); err != nil {
		return h, fmt.Errorf("count subscriptions: %w", err)
	}

	sources, err := s.sources.List(ctx)
	if err != nil {
		return h, fmt.Errorf("list sources: %w", err)
	}
	h.Sources = make([]SourceHealth, 0, len(sources))
	for _, src := range sources {
		h.Sources = append(h.Sources, SourceHealth{
			Name:          src.Name,
			Active:        src.Active,
			SuccessCount:  src.SuccessCount,
			ErrorCount:    src.ErrorCount,
			LastError:     src.LastError,
			LastScannedAt: src.LastScannedAt,
		})
	}

	if s.reporter != nil {
		if r, ok := s.reporter.LastReport(); ok {
			h.LastScan = &r
		}
	}
	return h, nil
}
