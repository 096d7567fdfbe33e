package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	alertDomain "deal-sniper/internal/domain/alert"
)

// SubscriptionRepo 保存使用者訂閱，取消訂閱只會停用。
type SubscriptionRepo struct {
	mu   sync.RWMutex
	subs map[string]alertDomain.Subscription
	now  func() time.Time
}

// NewSubscriptionRepo 建立訂閱 repository。
func NewSubscriptionRepo() *SubscriptionRepo {
	return &SubscriptionRepo{subs: make(map[string]alertDomain.Subscription), now: time.Now}
}

// Create 新增訂閱並回傳 id。
func (r *SubscriptionRepo) Create(ctx context.Context, sub alertDomain.Subscription) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if sub.ID == "" {
		sub.ID = newID()
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now
	r.subs[sub.ID] = sub
	return sub.ID, nil
}

// Get 依 id 取得訂閱。
func (r *SubscriptionRepo) Get(ctx context.Context, id string) (alertDomain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return alertDomain.Subscription{}, alertDomain.ErrNotFound
	}
	return sub, nil
}

// Update 覆寫訂閱條件與狀態。
func (r *SubscriptionRepo) Update(ctx context.Context, sub alertDomain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.subs[sub.ID]
	if !ok {
		return alertDomain.ErrNotFound
	}
	sub.UserID = prev.UserID
	sub.CreatedAt = prev.CreatedAt
	sub.UpdatedAt = r.now()
	r.subs[sub.ID] = sub
	return nil
}

// Deactivate 停用訂閱。
func (r *SubscriptionRepo) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return alertDomain.ErrNotFound
	}
	sub.IsActive = false
	sub.UpdatedAt = r.now()
	r.subs[id] = sub
	return nil
}

// ListActive 回傳所有啟用中的訂閱。
func (r *SubscriptionRepo) ListActive(ctx context.Context) ([]alertDomain.Subscription, error) {
	return r.list(func(s alertDomain.Subscription) bool { return s.IsActive }), nil
}

// ListByUser 回傳使用者的所有訂閱（含停用）。
func (r *SubscriptionRepo) ListByUser(ctx context.Context, userID string) ([]alertDomain.Subscription, error) {
	return r.list(func(s alertDomain.Subscription) bool { return s.UserID == userID }), nil
}

// CountActive 啟用中的訂閱數。
func (r *SubscriptionRepo) CountActive(ctx context.Context) (int, error) {
	return len(r.list(func(s alertDomain.Subscription) bool { return s.IsActive })), nil
}

func (r *SubscriptionRepo) list(keep func(alertDomain.Subscription) bool) []alertDomain.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]alertDomain.Subscription, 0)
	for _, s := range r.subs {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type pairKey struct {
	subscriptionID string
	dealID         string
}

// AlertRepo 保存 alert；pending 索引保證每個 (subscription, deal) 最多一筆未送出。
type AlertRepo struct {
	mu      sync.RWMutex
	alerts  map[string]alertDomain.DealAlert
	pending map[pairKey]string
	now     func() time.Time
}

// NewAlertRepo 建立 alert repository。
func NewAlertRepo() *AlertRepo {
	return &AlertRepo{
		alerts:  make(map[string]alertDomain.DealAlert),
		pending: make(map[pairKey]string),
		now:     time.Now,
	}
}

// UpsertPending 已有未送出的 alert 時就地更新價格與 urgency，否則新增。
func (r *AlertRepo) UpsertPending(ctx context.Context, a alertDomain.DealAlert) (alertDomain.DealAlert, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	key := pairKey{a.SubscriptionID, a.DealID}
	if id, ok := r.pending[key]; ok {
		existing := r.alerts[id]
		existing.Type = a.Type
		existing.OriginalPrice = a.OriginalPrice
		existing.NewPrice = a.NewPrice
		existing.DiscountPercent = a.DiscountPercent
		existing.DealScore = a.DealScore
		existing.Urgency = a.Urgency
		existing.ProductURL = a.ProductURL
		existing.Category = a.Category
		existing.Version++
		existing.UpdatedAt = now
		r.alerts[id] = existing
		return existing, false, nil
	}

	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.DeliverAfter.IsZero() {
		a.DeliverAfter = a.CreatedAt
	}
	a.IsSent = false
	a.SentAt = nil
	a.Version = 1
	a.UpdatedAt = now
	r.alerts[a.ID] = a
	r.pending[key] = a.ID
	return a, true, nil
}

// ListPending 依 createdAt、id 回傳可送出的 alert。
func (r *AlertRepo) ListPending(ctx context.Context, now time.Time, limit int) ([]alertDomain.DealAlert, error) {
	r.mu.RLock()
	out := make([]alertDomain.DealAlert, 0)
	for _, id := range r.pending {
		if a := r.alerts[id]; a.Pending(now) {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, limit), nil
}

// MarkSent 只在 alert 尚未送出且 version 未變時標記，否則回傳 false 並保留待送。
func (r *AlertRepo) MarkSent(ctx context.Context, id string, version int, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return false, alertDomain.ErrNotFound
	}
	if a.IsSent || a.Version != version {
		return false, nil
	}
	t := at
	a.IsSent = true
	a.SentAt = &t
	a.UpdatedAt = at
	r.alerts[id] = a
	delete(r.pending, pairKey{a.SubscriptionID, a.DealID})
	return true, nil
}

// RecordFailure 累計失敗次數，達 maxAttempts 時標記人工檢查；已送出的 alert 視為不存在。
func (r *AlertRepo) RecordFailure(ctx context.Context, id, reason string, maxAttempts int) (alertDomain.DealAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok || a.IsSent {
		return alertDomain.DealAlert{}, alertDomain.ErrNotFound
	}
	a.Attempts++
	a.LastError = reason
	if maxAttempts > 0 && a.Attempts >= maxAttempts {
		a.NeedsReview = true
	}
	a.UpdatedAt = r.now()
	r.alerts[id] = a
	return a, nil
}

// ClearReview 清除人工檢查標記並重置失敗次數；已送出的 alert 視為不存在。
func (r *AlertRepo) ClearReview(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok || a.IsSent {
		return alertDomain.ErrNotFound
	}
	a.NeedsReview = false
	a.Attempts = 0
	a.UpdatedAt = r.now()
	r.alerts[id] = a
	return nil
}

// ListByUser 依建立時間由新到舊回傳使用者的 alert。
func (r *AlertRepo) ListByUser(ctx context.Context, userID string, limit int) ([]alertDomain.DealAlert, error) {
	r.mu.RLock()
	out := make([]alertDomain.DealAlert, 0)
	for _, a := range r.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return truncate(out, limit), nil
}

// MarkRead 標記已讀；已送出的 alert 只允許變更此欄位。
func (r *AlertRepo) MarkRead(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return alertDomain.ErrNotFound
	}
	a.IsRead = true
	r.alerts[id] = a
	return nil
}

// CountPending 未送出且未標記人工檢查的 alert 數。
func (r *AlertRepo) CountPending(ctx context.Context) (int, error) {
	return r.count(func(a alertDomain.DealAlert) bool { return !a.IsSent && !a.NeedsReview }), nil
}

// CountFlagged 等待人工檢查的 alert 數。
func (r *AlertRepo) CountFlagged(ctx context.Context) (int, error) {
	return r.count(func(a alertDomain.DealAlert) bool { return !a.IsSent && a.NeedsReview }), nil
}

// CountSince since 之後建立的 alert 數。
func (r *AlertRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	return r.count(func(a alertDomain.DealAlert) bool { return !a.CreatedAt.Before(since) }), nil
}

// CountByType 依類型統計 [start, end] 內建立的 alert，依數量遞減。
func (r *AlertRepo) CountByType(ctx context.Context, start, end time.Time) ([]alertDomain.TypeCount, error) {
	r.mu.RLock()
	counts := make(map[alertDomain.Type]int)
	for _, a := range r.alerts {
		if !a.CreatedAt.Before(start) && !a.CreatedAt.After(end) {
			counts[a.Type]++
		}
	}
	r.mu.RUnlock()
	out := make([]alertDomain.TypeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, alertDomain.TypeCount{Type: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (r *AlertRepo) count(keep func(alertDomain.DealAlert) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.alerts {
		if keep(a) {
			n++
		}
	}
	return n
}
