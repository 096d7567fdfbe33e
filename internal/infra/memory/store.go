package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"deal-sniper/internal/domain/deal"
)

// Store 為沒有設定資料庫時使用的記憶體資料庫，各 repository 皆為併發安全。
type Store struct {
	Sources       *SourceRepo
	Prices        *PriceRepo
	Deals         *DealRepo
	Subscriptions *SubscriptionRepo
	Alerts        *AlertRepo
	Tracking      *TrackingRepo
}

// NewStore 建立新的記憶體 Store 實例。
func NewStore() *Store {
	return &Store{
		Sources:       NewSourceRepo(),
		Prices:        NewPriceRepo(),
		Deals:         NewDealRepo(),
		Subscriptions: NewSubscriptionRepo(),
		Alerts:        NewAlertRepo(),
		Tracking:      NewTrackingRepo(),
	}
}

func newID() string {
	return uuid.NewString()
}

// SourceRepo 以名稱為鍵保存來源設定，來源只會停用不會刪除。
type SourceRepo struct {
	mu      sync.RWMutex
	sources map[string]deal.Source
	now     func() time.Time
}

// NewSourceRepo 建立來源 repository。
func NewSourceRepo() *SourceRepo {
	return &SourceRepo{sources: make(map[string]deal.Source), now: time.Now}
}

// Register 新增或更新來源設定，已存在時保留統計欄位。
func (r *SourceRepo) Register(ctx context.Context, src deal.Source) (deal.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	src = cloneSource(src)
	if prev, ok := r.sources[src.Name]; ok {
		src.ID = prev.ID
		src.CreatedAt = prev.CreatedAt
		src.LastScannedAt = prev.LastScannedAt
		src.SuccessCount = prev.SuccessCount
		src.ErrorCount = prev.ErrorCount
		src.LastError = prev.LastError
	} else {
		if src.ID == "" {
			src.ID = newID()
		}
		src.CreatedAt = now
	}
	src.UpdatedAt = now
	r.sources[src.Name] = src
	return cloneSource(src), nil
}

// Get 依名稱取得來源。
func (r *SourceRepo) Get(ctx context.Context, name string) (deal.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[name]
	if !ok {
		return deal.Source{}, deal.ErrNotFound
	}
	return cloneSource(src), nil
}

// List 回傳全部來源（含停用），依優先度排序。
func (r *SourceRepo) List(ctx context.Context) ([]deal.Source, error) {
	return r.list(false), nil
}

// ListActive 回傳啟用中的來源，依優先度排序。
func (r *SourceRepo) ListActive(ctx context.Context) ([]deal.Source, error) {
	return r.list(true), nil
}

func (r *SourceRepo) list(activeOnly bool) []deal.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]deal.Source, 0, len(r.sources))
	for _, src := range r.sources {
		if activeOnly && !src.Active {
			continue
		}
		out = append(out, cloneSource(src))
	}
	deal.SortByPriority(out)
	return out
}

// Deactivate 停用來源。
func (r *SourceRepo) Deactivate(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[name]
	if !ok {
		return deal.ErrNotFound
	}
	src.Active = false
	src.UpdatedAt = r.now()
	r.sources[name] = src
	return nil
}

// RecordScan 更新掃描時間與成功/失敗計數。
func (r *SourceRepo) RecordScan(ctx context.Context, name string, at time.Time, scanErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[name]
	if !ok {
		return deal.ErrNotFound
	}
	t := at
	src.LastScannedAt = &t
	if scanErr != nil {
		src.ErrorCount++
		src.LastError = scanErr.Error()
	} else {
		src.SuccessCount++
	}
	src.UpdatedAt = at
	r.sources[name] = src
	return nil
}

// CountActive 啟用中的來源數。
func (r *SourceRepo) CountActive(ctx context.Context) (int, error) {
	return len(r.list(true)), nil
}

func cloneSource(src deal.Source) deal.Source {
	if src.Categories != nil {
		src.Categories = append([]string(nil), src.Categories...)
	}
	if src.Metadata != nil {
		m := make(map[string]string, len(src.Metadata))
		for k, v := range src.Metadata {
			m[k] = v
		}
		src.Metadata = m
	}
	if src.LastScannedAt != nil {
		t := *src.LastScannedAt
		src.LastScannedAt = &t
	}
	return src
}

// PriceRepo 為 append-only 的價格歷史，同一 key 的時間戳嚴格遞增。
type PriceRepo struct {
	mu  sync.RWMutex
	obs map[deal.Key][]deal.PriceObservation // 依 ObservedAt 遞增
}

// NewPriceRepo 建立價格歷史 repository。
func NewPriceRepo() *PriceRepo {
	return &PriceRepo{obs: make(map[deal.Key][]deal.PriceObservation)}
}

// RecordObservation 追加一筆觀測；時間不晚於最新一筆時以最新時間 +1µs 寫入。
func (r *PriceRepo) RecordObservation(ctx context.Context, o deal.PriceObservation) (deal.PriceObservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := deal.Key{ProductName: o.ProductName, Retailer: o.Retailer}
	list := r.obs[key]
	if n := len(list); n > 0 {
		latest := list[n-1].ObservedAt
		if !o.ObservedAt.After(latest) {
			o.ObservedAt = latest.Add(time.Microsecond)
		}
	}
	if o.ID == "" {
		o.ID = newID()
	}
	o.Currency = strings.ToUpper(o.Currency)
	r.obs[key] = append(list, o)
	return o, nil
}

// LatestObservation 回傳最新一筆觀測。
func (r *PriceRepo) LatestObservation(ctx context.Context, key deal.Key) (deal.PriceObservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.obs[key]
	if len(list) == 0 {
		return deal.PriceObservation{}, deal.ErrNotFound
	}
	return list[len(list)-1], nil
}

// History 依時間由新到舊回傳最多 limit 筆。
func (r *PriceRepo) History(ctx context.Context, key deal.Key, limit int) ([]deal.PriceObservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.obs[key]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]deal.PriceObservation, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

// DealRepo 為 deal inventory，以 (productName, retailer) 為鍵，Upsert 在 store 鎖內完成。
type DealRepo struct {
	mu         sync.RWMutex
	deals      map[deal.Key]deal.Deal
	needsMatch map[string]bool
	now        func() time.Time
}

// NewDealRepo 建立 deal repository。
func NewDealRepo() *DealRepo {
	return &DealRepo{deals: make(map[deal.Key]deal.Deal), needsMatch: make(map[string]bool), now: time.Now}
}

// Get 依 key 取得 deal（含已失效）。
func (r *DealRepo) Get(ctx context.Context, key deal.Key) (deal.Deal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deals[key]
	if !ok {
		return deal.Deal{}, deal.ErrNotFound
	}
	return d, nil
}

// Upsert 寫入 deal；changed 僅在新建或價格與既有值不同時為 true。
func (r *DealRepo) Upsert(ctx context.Context, d deal.Deal) (deal.Deal, bool, error) {
	if d.DiscountPercent < 0 {
		d.DiscountPercent = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := d.Key()
	prev, ok := r.deals[key]
	if ok {
		d.ID = prev.ID
		if d.CreatedAt.IsZero() {
			d.CreatedAt = prev.CreatedAt
		}
	} else {
		if d.ID == "" {
			d.ID = newID()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = r.now()
		}
	}
	d.UpdatedAt = r.now()
	r.deals[key] = d
	changed := !ok || prev.CurrentPrice != d.CurrentPrice
	if changed {
		// 新的變動事件取代尚未比對的舊事件
		delete(r.needsMatch, d.ID)
	}
	return d, changed, nil
}

// MarkNeedsMatch 設定或清除「等待重新比對」標記。
func (r *DealRepo) MarkNeedsMatch(ctx context.Context, id string, needs bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for _, d := range r.deals {
		if d.ID == id {
			found = true
			break
		}
	}
	if !found {
		return deal.ErrNotFound
	}
	if needs {
		r.needsMatch[id] = true
	} else {
		delete(r.needsMatch, id)
	}
	return nil
}

// ListNeedsMatch 回傳等待重新比對的 active deal，依更新時間排序。
func (r *DealRepo) ListNeedsMatch(ctx context.Context, limit int) ([]deal.Deal, error) {
	r.mu.RLock()
	out := make([]deal.Deal, 0)
	for _, d := range r.deals {
		if d.IsActive && r.needsMatch[d.ID] {
			out = append(out, d)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, limit), nil
}

// ExpireOlderThan 停用已過期或超過 ttl 未刷新的 deal，回傳停用數量。
func (r *DealRepo) ExpireOlderThan(ctx context.Context, ttl time.Duration, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, d := range r.deals {
		if d.IsActive && d.Expired(now, ttl) {
			d.IsActive = false
			d.UpdatedAt = now
			r.deals[k] = d
			n++
		}
	}
	return n, nil
}

// ListTrending 回傳 since 之後建立的 active deal，依分數、折扣遞減。
func (r *DealRepo) ListTrending(ctx context.Context, since time.Time, limit int) ([]deal.Deal, error) {
	out := r.filter(func(d deal.Deal) bool {
		return d.IsActive && !d.CreatedAt.Before(since)
	})
	sortDeals(out, deal.SortScore)
	return truncate(out, limit), nil
}

// ListByCategory 回傳指定分類的 active deal，依分數遞減。
func (r *DealRepo) ListByCategory(ctx context.Context, category string, limit int) ([]deal.Deal, error) {
	out := r.filter(func(d deal.Deal) bool {
		return d.IsActive && strings.EqualFold(d.Category, category)
	})
	sortDeals(out, deal.SortScore)
	return truncate(out, limit), nil
}

// Search 依條件搜尋 active deal。
func (r *DealRepo) Search(ctx context.Context, f deal.SearchFilter) ([]deal.Deal, error) {
	f = f.Normalize()
	out := r.filter(f.Match)
	sortDeals(out, f.SortBy)
	return truncate(out, f.Limit), nil
}

// CountActive active deal 數量。
func (r *DealRepo) CountActive(ctx context.Context) (int, error) {
	return len(r.filter(func(d deal.Deal) bool { return d.IsActive })), nil
}

// FindByURL 依商品頁網址取得 deal（含已失效），多筆時取最近更新者。
func (r *DealRepo) FindByURL(ctx context.Context, productURL string) (deal.Deal, error) {
	var (
		best  deal.Deal
		found bool
	)
	for _, d := range r.filter(func(d deal.Deal) bool { return d.ProductURL == productURL }) {
		if !found || d.UpdatedAt.After(best.UpdatedAt) {
			best, found = d, true
		}
	}
	if !found {
		return deal.Deal{}, deal.ErrNotFound
	}
	return best, nil
}

// DiscoveryStats 依建立日期（UTC）與分類統計 [start, end] 內新建的 deal。
func (r *DealRepo) DiscoveryStats(ctx context.Context, start, end time.Time) ([]deal.DiscoveryCount, error) {
	type bucket struct{ date, category string }
	counts := make(map[bucket]int)
	for _, d := range r.filter(func(d deal.Deal) bool { return inPeriod(d.CreatedAt, start, end) }) {
		counts[bucket{d.CreatedAt.UTC().Format("2006-01-02"), d.Category}]++
	}
	out := make([]deal.DiscoveryCount, 0, len(counts))
	for b, n := range counts {
		out = append(out, deal.DiscoveryCount{Date: b.date, Category: b.category, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// RetailerStats 依 deal 數遞減回傳 [start, end] 內各零售商的 deal 數與平均折扣。
func (r *DealRepo) RetailerStats(ctx context.Context, start, end time.Time, limit int) ([]deal.RetailerStat, error) {
	type agg struct{ n, sum int }
	byRetailer := make(map[string]agg)
	for _, d := range r.filter(func(d deal.Deal) bool { return inPeriod(d.CreatedAt, start, end) }) {
		a := byRetailer[d.Retailer]
		a.n++
		a.sum += d.DiscountPercent
		byRetailer[d.Retailer] = a
	}
	out := make([]deal.RetailerStat, 0, len(byRetailer))
	for name, a := range byRetailer {
		out = append(out, deal.RetailerStat{Retailer: name, DealCount: a.n, AvgDiscount: deal.AverageDiscount(a.sum, a.n)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DealCount != out[j].DealCount {
			return out[i].DealCount > out[j].DealCount
		}
		return out[i].Retailer < out[j].Retailer
	})
	return truncate(out, limit), nil
}

func inPeriod(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

func (r *DealRepo) filter(keep func(deal.Deal) bool) []deal.Deal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]deal.Deal, 0)
	for _, d := range r.deals {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func sortDeals(list []deal.Deal, by deal.SortField) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch by {
		case deal.SortDiscount:
			if a.DiscountPercent != b.DiscountPercent {
				return a.DiscountPercent > b.DiscountPercent
			}
		case deal.SortPrice:
			if a.CurrentPrice != b.CurrentPrice {
				return a.CurrentPrice < b.CurrentPrice
			}
		case deal.SortRecent:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DiscountPercent != b.DiscountPercent {
			return a.DiscountPercent > b.DiscountPercent
		}
		return a.ID < b.ID
	})
}

func truncate[T any](list []T, limit int) []T {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}
