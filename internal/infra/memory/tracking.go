package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	alertDomain "deal-sniper/internal/domain/alert"
)

// TrackingRepo 保存使用者的商品追蹤清單。
type TrackingRepo struct {
	mu      sync.RWMutex
	targets map[string]alertDomain.PriceTarget
	now     func() time.Time
}

// NewTrackingRepo 建立追蹤清單 repository。
func NewTrackingRepo() *TrackingRepo {
	return &TrackingRepo{targets: make(map[string]alertDomain.PriceTarget), now: time.Now}
}

// Create 新增追蹤並回傳儲存後的內容。
func (r *TrackingRepo) Create(ctx context.Context, t alertDomain.PriceTarget) (alertDomain.PriceTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if t.ID == "" {
		t.ID = newID()
	}
	if t.TargetPrice != nil {
		v := *t.TargetPrice
		t.TargetPrice = &v
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	r.targets[t.ID] = t
	return t, nil
}

// ListActiveByUser 依建立時間由新到舊回傳使用者啟用中的追蹤。
func (r *TrackingRepo) ListActiveByUser(ctx context.Context, userID string, limit int) ([]alertDomain.PriceTarget, error) {
	r.mu.RLock()
	out := make([]alertDomain.PriceTarget, 0)
	for _, t := range r.targets {
		if t.UserID == userID && t.IsActive {
			out = append(out, t)
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
