package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"deal-sniper/internal/domain/deal"
)

// SourceRepository 管理來源設定與掃描統計。
type SourceRepository interface {
	ListActive(ctx context.Context) ([]deal.Source, error)
	RecordScan(ctx context.Context, name string, at time.Time, scanErr error) error
}

// PriceHistoryRepository 為 append-only 的價格歷史。
type PriceHistoryRepository interface {
	RecordObservation(ctx context.Context, obs deal.PriceObservation) (deal.PriceObservation, error)
	LatestObservation(ctx context.Context, key deal.Key) (deal.PriceObservation, error)
}

// DealRepository 為 deal inventory，Upsert 需對單一 key 原子化。
type DealRepository interface {
	Get(ctx context.Context, key deal.Key) (deal.Deal, error)
	Upsert(ctx context.Context, d deal.Deal) (deal.Deal, bool, error)
	ExpireOlderThan(ctx context.Context, ttl time.Duration, now time.Time) (int, error)
	NeedsMatchMarker
	// ListNeedsMatch 回傳比對失敗、等待重送的 active deal。
	ListNeedsMatch(ctx context.Context, limit int) ([]deal.Deal, error)
}

// NeedsMatchMarker 持久化「變動尚未完成比對」的標記。
type NeedsMatchMarker interface {
	MarkNeedsMatch(ctx context.Context, id string, needs bool) error
}

const backlogBatch = 500

// DealChangeHandler 接收新建或降價的 deal。
type DealChangeHandler interface {
	HandleDealChanged(ctx context.Context, change deal.Change) error
}

// Config 掃描參數。
type Config struct {
	Workers      int
	FetchTimeout time.Duration
	TTL          time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.TTL <= 0 {
		c.TTL = deal.DefaultTTL
	}
	return c
}

// SourceResult 為單一來源在一次掃描中的結果。
type SourceResult struct {
	Source       string `json:"source"`
	Listings     int    `json:"listings"`
	Dropped      int    `json:"dropped"`
	DealsChanged int    `json:"dealsChanged"`
	WriteErrors  int    `json:"writeErrors"`
	Error        string `json:"error,omitempty"`
}

// ScanReport 彙整一次完整掃描。
type ScanReport struct {
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
	Sources      int            `json:"sources"`
	Skipped      int            `json:"skipped"`
	Failed       int            `json:"failed"`
	Listings     int            `json:"listings"`
	DealsChanged int            `json:"dealsChanged"`
	Expired      int            `json:"expired"`
	Rematched    int            `json:"rematched"`
	Results      []SourceResult `json:"results"`
}

// Scanner 依序掃描所有啟用中的來源，更新價格歷史與 deal inventory。
type Scanner struct {
	sources SourceRepository
	history PriceHistoryRepository
	deals   DealRepository
	fetcher Fetcher
	handler DealChangeHandler
	cfg     Config
	locks   *KeyedMutex
	now     func() time.Time

	passMu sync.Mutex

	mu   sync.RWMutex
	last *ScanReport
}

// NewScanner 建立 Scanner，handler 可為 nil（只更新 inventory）。
func NewScanner(sources SourceRepository, history PriceHistoryRepository, deals DealRepository, fetcher Fetcher, handler DealChangeHandler, cfg Config) *Scanner {
	return &Scanner{
		sources: sources,
		history: history,
		deals:   deals,
		fetcher: fetcher,
		handler: handler,
		cfg:     cfg.withDefaults(),
		locks:   NewKeyedMutex(),
		now:     time.Now,
	}
}

// LastReport 回傳最近一次完成的掃描結果。
func (s *Scanner) LastReport() (ScanReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return ScanReport{}, false
	}
	return *s.last, true
}

// ScanSource 取回並正規化單一來源的 listing，格式錯誤的 listing 會被丟棄並記錄。
func (s *Scanner) ScanSource(ctx context.Context, source deal.Source) ([]deal.Listing, error) {
	listings, _, err := s.fetchListings(ctx, source)
	return listings, err
}

func (s *Scanner) fetchListings(ctx context.Context, source deal.Source) ([]deal.Listing, int, error) {
	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	raws, err := s.fetcher.Fetch(fctx, source)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", source.Name, err)
	}

	out := make([]deal.Listing, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		l, err := Normalize(raw, source)
		if err != nil {
			dropped++
			log.Printf("[Scanner] %s: dropping listing: %v", source.Name, err)
			continue
		}
		out = append(out, l)
	}
	return out, dropped, nil
}

// ScanAll 執行一次完整掃描：先讓過期 deal 失效，再依優先度並行掃描到期的來源。
// 單一來源失敗只會記錄在該來源的錯誤計數，不會中斷其他來源。
func (s *Scanner) ScanAll(ctx context.Context) (ScanReport, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	now := s.now()
	report := ScanReport{StartedAt: now}

	if n, err := s.deals.ExpireOlderThan(ctx, s.cfg.TTL, now); err != nil {
		log.Printf("[Scanner] expire stale deals failed: %v", err)
	} else {
		report.Expired = n
	}
	report.Rematched = s.replayBacklog(ctx)

	sources, err := s.sources.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("list sources: %w", err)
	}
	deal.SortByPriority(sources)

	due := make([]deal.Source, 0, len(sources))
	for _, src := range sources {
		if !src.Due(now) {
			report.Skipped++
			continue
		}
		due = append(due, src)
	}

	results := make([]SourceResult, len(due))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, src := range due {
		if ctx.Err() != nil {
			results[i] = SourceResult{Source: src.Name, Error: ctx.Err().Error()}
			continue
		}
		g.Go(func() error {
			results[i] = s.scanOne(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		report.Sources++
		if r.Error != "" {
			report.Failed++
		}
		report.Listings += r.Listings
		report.DealsChanged += r.DealsChanged
	}
	report.Results = results
	report.FinishedAt = s.now()

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	return report, nil
}

func (s *Scanner) scanOne(ctx context.Context, src deal.Source) SourceResult {
	res := SourceResult{Source: src.Name}

	listings, dropped, err := s.fetchListings(ctx, src)
	if err != nil {
		res.Error = err.Error()
		log.Printf("[Scanner] source %s failed: %v", src.Name, err)
		if rerr := s.sources.RecordScan(context.WithoutCancel(ctx), src.Name, s.now(), err); rerr != nil {
			log.Printf("[Scanner] record scan failure for %s: %v", src.Name, rerr)
		}
		return res
	}
	res.Listings = len(listings)
	res.Dropped = dropped

	for _, l := range listings {
		if ctx.Err() != nil {
			break
		}
		changed, err := s.processListing(ctx, l)
		if err != nil {
			res.WriteErrors++
			log.Printf("[Scanner] %s: %v", src.Name, err)
			continue
		}
		if changed {
			res.DealsChanged++
		}
	}

	if err := s.sources.RecordScan(context.WithoutCancel(ctx), src.Name, s.now(), nil); err != nil {
		log.Printf("[Scanner] record scan for %s: %v", src.Name, err)
	}
	return res
}

// processListing 在 per-key 鎖內決定 listing 是否為新 deal 或降價。
func (s *Scanner) processListing(ctx context.Context, l deal.Listing) (bool, error) {
	key := l.Key()
	unlock := s.locks.Lock(key.String())
	defer unlock()

	now := s.now()
	existing, err := s.deals.Get(ctx, key)
	found := err == nil
	if err != nil && !errors.Is(err, deal.ErrNotFound) {
		return false, fmt.Errorf("get deal %s: %w", key, err)
	}

	if found && existing.IsActive {
		if l.Price < existing.CurrentPrice {
			next := existing.Reprice(l.Price, l.OriginalPrice, l.Availability, now, s.cfg.TTL)
			applyListing(&next, l)
			s.recordObservation(ctx, l, now)
			return s.upsert(ctx, next, &existing)
		}
		// 價格持平或上漲：只記錄歷史並刷新 lastSeenAt
		refreshed := existing.Reprice(existing.CurrentPrice, 0, l.Availability, now, s.cfg.TTL)
		applyListing(&refreshed, l)
		s.recordObservation(ctx, l, now)
		if _, _, err := s.deals.Upsert(ctx, refreshed); err != nil {
			return false, fmt.Errorf("refresh deal %s: %w", key, err)
		}
		return false, nil
	}

	reference := 0.0
	if l.ReportedDiscount() {
		reference = l.OriginalPrice
	} else {
		latest, err := s.history.LatestObservation(ctx, key)
		switch {
		case err == nil:
			if latest.Price > l.Price {
				reference = latest.Price
			}
		case !errors.Is(err, deal.ErrNotFound):
			log.Printf("[Scanner] latest observation for %s: %v", key, err)
		}
	}
	s.recordObservation(ctx, l, now)
	if reference == 0 {
		return false, nil
	}

	created := deal.Deal{
		ProductName:   l.Name,
		Retailer:      l.Retailer,
		OriginalPrice: reference,
		CreatedAt:     now,
	}
	if found {
		created.ID = existing.ID
	}
	created = created.Reprice(l.Price, 0, l.Availability, now, s.cfg.TTL)
	applyListing(&created, l)

	var prev *deal.Deal
	if found {
		prev = &existing
	}
	return s.upsert(ctx, created, prev)
}

func (s *Scanner) upsert(ctx context.Context, d deal.Deal, prev *deal.Deal) (bool, error) {
	stored, changed, err := s.deals.Upsert(ctx, d)
	if err != nil {
		return false, fmt.Errorf("upsert deal %s: %w", d.Key(), err)
	}
	if !changed {
		return false, nil
	}
	if s.handler != nil {
		if err := s.handler.HandleDealChanged(ctx, deal.Change{Deal: stored, Previous: prev}); err != nil {
			log.Printf("[Scanner] deal change handler for %s: %v", d.Key(), err)
			s.markNeedsMatch(ctx, stored)
		}
	}
	return true, nil
}

// replayBacklog 重送上次比對失敗的 deal；先清標記再送出，送出失敗會重新標記。
func (s *Scanner) replayBacklog(ctx context.Context) int {
	if s.handler == nil {
		return 0
	}
	backlog, err := s.deals.ListNeedsMatch(ctx, backlogBatch)
	if err != nil {
		log.Printf("[Scanner] list needs-match deals failed: %v", err)
		return 0
	}
	n := 0
	for _, d := range backlog {
		if ctx.Err() != nil {
			break
		}
		unlock := s.locks.Lock(d.Key().String())
		if err := s.deals.MarkNeedsMatch(ctx, d.ID, false); err != nil {
			unlock()
			log.Printf("[Scanner] clear needs-match for %s: %v", d.Key(), err)
			continue
		}
		if err := s.handler.HandleDealChanged(ctx, deal.Change{Deal: d}); err != nil {
			log.Printf("[Scanner] rematch %s: %v", d.Key(), err)
			s.markNeedsMatch(ctx, d)
			unlock()
			continue
		}
		unlock()
		n++
	}
	if n > 0 {
		log.Printf("[Scanner] re-sent %d deals for matching", n)
	}
	return n
}

func (s *Scanner) markNeedsMatch(ctx context.Context, d deal.Deal) {
	if err := s.deals.MarkNeedsMatch(context.WithoutCancel(ctx), d.ID, true); err != nil {
		log.Printf("[Scanner] mark needs-match for %s: %v", d.Key(), err)
	}
}

// recordObservation 價格歷史為 best-effort，失敗只記錄 log。
func (s *Scanner) recordObservation(ctx context.Context, l deal.Listing, now time.Time) {
	obs := deal.PriceObservation{
		ProductName: l.Name,
		Retailer:    l.Retailer,
		Price:       l.Price,
		Currency:    l.Currency,
		ObservedAt:  now,
	}
	if _, err := s.history.RecordObservation(ctx, obs); err != nil {
		log.Printf("[Scanner] record observation for %s: %v", l.Key(), err)
	}
}

func applyListing(d *deal.Deal, l deal.Listing) {
	d.Currency = l.Currency
	d.Category = l.Category
	d.DealType = l.DealType
	if l.URL != "" {
		d.ProductURL = l.URL
	}
	if l.ImageURL != "" {
		d.ImageURL = l.ImageURL
	}
}
