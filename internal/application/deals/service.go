package deals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deal-sniper/internal/application/scanner"
	alertDomain "deal-sniper/internal/domain/alert"
	"deal-sniper/internal/domain/deal"
)

// DealReader 讀取 deal inventory。
type DealReader interface {
	ListTrending(ctx context.Context, since time.Time, limit int) ([]deal.Deal, error)
	ListByCategory(ctx context.Context, category string, limit int) ([]deal.Deal, error)
	Search(ctx context.Context, filter deal.SearchFilter) ([]deal.Deal, error)
	FindByURL(ctx context.Context, productURL string) (deal.Deal, error)
	DiscoveryStats(ctx context.Context, start, end time.Time) ([]deal.DiscoveryCount, error)
	RetailerStats(ctx context.Context, start, end time.Time, limit int) ([]deal.RetailerStat, error)
	CountActive(ctx context.Context) (int, error)
}

// PriceHistoryReader 讀取價格歷史。
type PriceHistoryReader interface {
	History(ctx context.Context, key deal.Key, limit int) ([]deal.PriceObservation, error)
}

// SourceRepository 來源管理。
type SourceRepository interface {
	Register(ctx context.Context, src deal.Source) (deal.Source, error)
	List(ctx context.Context) ([]deal.Source, error)
	Deactivate(ctx context.Context, name string) error
	CountActive(ctx context.Context) (int, error)
}

// SubscriptionRepository 訂閱管理。
type SubscriptionRepository interface {
	Create(ctx context.Context, sub alertDomain.Subscription) (string, error)
	Get(ctx context.Context, id string) (alertDomain.Subscription, error)
	Update(ctx context.Context, sub alertDomain.Subscription) error
	Deactivate(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]alertDomain.Subscription, error)
	CountActive(ctx context.Context) (int, error)
}

// AlertReader 使用者 alert 歷史與佇列統計。
type AlertReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]alertDomain.DealAlert, error)
	MarkRead(ctx context.Context, id string) error
	CountPending(ctx context.Context) (int, error)
	CountFlagged(ctx context.Context) (int, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
	CountByType(ctx context.Context, start, end time.Time) ([]alertDomain.TypeCount, error)
}

// TrackingRepository 使用者的商品追蹤清單。
type TrackingRepository interface {
	Create(ctx context.Context, t alertDomain.PriceTarget) (alertDomain.PriceTarget, error)
	ListActiveByUser(ctx context.Context, userID string, limit int) ([]alertDomain.PriceTarget, error)
}

// ScanReporter 提供最近一次掃描結果。
type ScanReporter interface {
	LastReport() (scanner.ScanReport, bool)
}

// Service 提供 UI 與營運端使用的讀取、訂閱與來源管理操作。
type Service struct {
	deals    DealReader
	history  PriceHistoryReader
	sources  SourceRepository
	subs     SubscriptionRepository
	alerts   AlertReader
	tracking TrackingRepository
	reporter ScanReporter
	now      func() time.Time
}

// NewService 建立服務，reporter 可為 nil。
func NewService(deals DealReader, history PriceHistoryReader, sources SourceRepository, subs SubscriptionRepository, alerts AlertReader, tracking TrackingRepository, reporter ScanReporter) *Service {
	return &Service{
		deals:    deals,
		history:  history,
		sources:  sources,
		subs:     subs,
		alerts:   alerts,
		tracking: tracking,
		reporter: reporter,
		now:      time.Now,
	}
}

const (
	defaultTrendingLimit = 20
	defaultCategoryLimit = 50
	defaultAlertLimit    = 50
	defaultHistoryLimit  = 100
	maxLimit             = 500
)

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Subscribe 建立訂閱並回傳 id。
func (s *Service) Subscribe(ctx context.Context, userID string, criteria alertDomain.Criteria) (string, error) {
	sub := alertDomain.Subscription{
		UserID:   strings.TrimSpace(userID),
		Criteria: criteria.WithDefaults(),
		IsActive: true,
	}
	if err := sub.Validate(); err != nil {
		return "", err
	}
	id, err := s.subs.Create(ctx, sub)
	if err != nil {
		return "", fmt.Errorf("create subscription: %w", err)
	}
	return id, nil
}

// UpdateSubscription 覆寫訂閱條件。
func (s *Service) UpdateSubscription(ctx context.Context, id string, criteria alertDomain.Criteria) (alertDomain.Subscription, error) {
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		return alertDomain.Subscription{}, err
	}
	sub.Criteria = criteria.WithDefaults()
	if err := sub.Validate(); err != nil {
		return alertDomain.Subscription{}, err
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return alertDomain.Subscription{}, fmt.Errorf("update subscription: %w", err)
	}
	return s.subs.Get(ctx, id)
}

// Unsubscribe 停用訂閱（不刪除）。
func (s *Service) Unsubscribe(ctx context.Context, id string) error {
	return s.subs.Deactivate(ctx, id)
}

// ListSubscriptions 回傳使用者的訂閱。
func (s *Service) ListSubscriptions(ctx context.Context, userID string) ([]alertDomain.Subscription, error) {
	return s.subs.ListByUser(ctx, userID)
}

// ListAlerts 回傳使用者最近的 alert，預設 50 筆。
func (s *Service) ListAlerts(ctx context.Context, userID string, limit int) ([]alertDomain.DealAlert, error) {
	return s.alerts.ListByUser(ctx, userID, clampLimit(limit, defaultAlertLimit))
}

// MarkAlertRead 標記 alert 已讀。
func (s *Service) MarkAlertRead(ctx context.Context, id string) error {
	return s.alerts.MarkRead(ctx, id)
}

// ListTrendingDeals 回傳 24 小時內建立的熱門 deal，預設 20 筆。
func (s *Service) ListTrendingDeals(ctx context.Context, limit int) ([]deal.Deal, error) {
	return s.deals.ListTrending(ctx, s.now().Add(-24*time.Hour), clampLimit(limit, defaultTrendingLimit))
}

// ListDealsByCategory 回傳分類下的 active deal，預設 50 筆。
func (s *Service) ListDealsByCategory(ctx context.Context, category string, limit int) ([]deal.Deal, error) {
	return s.deals.ListByCategory(ctx, strings.ToLower(strings.TrimSpace(category)), clampLimit(limit, defaultCategoryLimit))
}

// SearchDeals 依條件搜尋 deal。
func (s *Service) SearchDeals(ctx context.Context, filter deal.SearchFilter) ([]deal.Deal, error) {
	return s.deals.Search(ctx, filter.Normalize())
}

// PriceHistory 回傳商品價格歷史（由新到舊），預設 100 筆。
func (s *Service) PriceHistory(ctx context.Context, productName, retailer string, limit int) ([]deal.PriceObservation, error) {
	if strings.TrimSpace(productName) == "" || strings.TrimSpace(retailer) == "" {
		return nil, fmt.Errorf("%w: product and retailer are required", ErrInvalidInput)
	}
	return s.history.History(ctx, deal.Key{ProductName: productName, Retailer: retailer}, clampLimit(limit, defaultHistoryLimit))
}

// ListSources 回傳全部來源。
func (s *Service) ListSources(ctx context.Context) ([]deal.Source, error) {
	return s.sources.List(ctx)
}

// RegisterSource 新增或更新來源設定。
func (s *Service) RegisterSource(ctx context.Context, src deal.Source) (deal.Source, error) {
	src.Name = strings.TrimSpace(src.Name)
	if src.Currency == "" {
		src.Currency = "USD"
	}
	if err := src.Validate(); err != nil {
		return deal.Source{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.sources.Register(ctx, src)
}

// DeactivateSource 停用來源。
func (s *Service) DeactivateSource(ctx context.Context, name string) error {
	return s.sources.Deactivate(ctx, name)
}

// Categories 回傳可用的 deal 分類。
func (s *Service) Categories() []deal.Category {
	out := make([]deal.Category, len(deal.DefaultCategories))
	copy(out, deal.DefaultCategories)
	return out
}
