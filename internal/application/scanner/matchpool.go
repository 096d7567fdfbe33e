package scanner

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"deal-sniper/internal"
	"deal-sniper/internal/domain/deal"
)

// ErrQueueFull 佇列在等待時間內仍無空位。
var ErrQueueFull = errors.New("match queue full")

// ErrPoolClosed pool 已關閉。
var ErrPoolClosed = errors.New("match pool closed")

// MatchPoolConfig 控制比對 worker 數量與佇列大小。
// Backlog 可為 nil；設定時 worker 比對失敗的 deal 會被標記，由下一輪掃描重送。
type MatchPoolConfig struct {
	Workers        int
	QueueSize      int
	EnqueueTimeout time.Duration
	Backlog        NeedsMatchMarker
}

// MatchPool 以有界佇列把 deal 變動交給獨立的 worker 比對，避免大量訂閱拖慢掃描。
type MatchPool struct {
	next    DealChangeHandler
	backlog NeedsMatchMarker
	queue   chan deal.Change
	timeout time.Duration
	workers int

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewMatchPool 建立 MatchPool，需呼叫 Start 才會開始處理。
func NewMatchPool(next DealChangeHandler, cfg MatchPoolConfig) *MatchPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 5 * time.Second
	}
	return &MatchPool{
		next:    next,
		backlog: cfg.Backlog,
		queue:   make(chan deal.Change, cfg.QueueSize),
		timeout: cfg.EnqueueTimeout,
		workers: cfg.Workers,
	}
}

// Start 啟動 worker。傳給下游的 ctx 不隨 ctx 取消，worker 只在 Close 清空佇列後結束。
func (p *MatchPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for change := range p.queue {
				p.handle(ctx, change)
			}
		}()
	}
}

func (p *MatchPool) handle(ctx context.Context, change deal.Change) {
	err := p.next.HandleDealChanged(ctx, change)
	if err == nil {
		return
	}
	log.Printf("[Matcher] handle %s: %v", change.Deal.Key(), err)
	if internal.IsNil(p.backlog) || change.Deal.ID == "" {
		return
	}
	if merr := p.backlog.MarkNeedsMatch(ctx, change.Deal.ID, true); merr != nil {
		log.Printf("[Matcher] mark needs-match for %s: %v", change.Deal.Key(), merr)
	}
}

// HandleDealChanged 將變動放入佇列；逾時回傳 ErrQueueFull，由呼叫端標記待重送。
func (p *MatchPool) HandleDealChanged(ctx context.Context, change deal.Change) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case p.queue <- change:
		return nil
	case <-timer.C:
		p.dropped.Add(1)
		log.Printf("[Matcher] queue full, dropping change for %s", change.Deal.Key())
		return ErrQueueFull
	case <-ctx.Done():
		p.dropped.Add(1)
		return ctx.Err()
	}
}

// Pending 佇列中尚未處理的事件數。
func (p *MatchPool) Pending() int {
	return len(p.queue)
}

// Dropped 因佇列滿而丟棄的事件數。
func (p *MatchPool) Dropped() int {
	return int(p.dropped.Load())
}

// Close 停止收件並等待佇列處理完畢。
func (p *MatchPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
