package scanner

import (
	"context"
	"fmt"
	"sync"

	"deal-sniper/internal/domain/deal"
)

// Fetcher 取回單一來源目前的商品清單。
type Fetcher interface {
	Fetch(ctx context.Context, source deal.Source) ([]deal.RawListing, error)
}

// FetcherFunc 讓一般函式滿足 Fetcher。
type FetcherFunc func(ctx context.Context, source deal.Source) ([]deal.RawListing, error)

// Fetch 呼叫 f。
func (f FetcherFunc) Fetch(ctx context.Context, source deal.Source) ([]deal.RawListing, error) {
	return f(ctx, source)
}

// Registry 依來源類型分派 Fetcher。
type Registry struct {
	mu       sync.RWMutex
	fetchers map[deal.SourceKind]Fetcher
}

// NewRegistry 建立空的 Fetcher 註冊表。
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[deal.SourceKind]Fetcher)}
}

// Register 設定某來源類型使用的 Fetcher，重複註冊會覆蓋。
func (r *Registry) Register(kind deal.SourceKind, f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[kind] = f
}

// Fetch 找到對應的 Fetcher 並執行。
func (r *Registry) Fetch(ctx context.Context, source deal.Source) ([]deal.RawListing, error) {
	r.mu.RLock()
	f, ok := r.fetchers[source.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for kind %q", source.Kind)
	}
	return f.Fetch(ctx, source)
}
