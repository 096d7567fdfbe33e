package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"deal-sniper/internal/domain/deal"
)

type blockingHandler struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []string
}

func (h *blockingHandler) HandleDealChanged(ctx context.Context, c deal.Change) error {
	<-h.release
	h.mu.Lock()
	h.seen = append(h.seen, c.Deal.ProductName)
	h.mu.Unlock()
	return nil
}

func TestMatchPool_DeliversAndDrains(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	close(h.release)
	pool := NewMatchPool(h, MatchPoolConfig{Workers: 2, QueueSize: 4})
	pool.Start(context.Background())

	for _, name := range []string{"a", "b", "c"} {
		if err := pool.HandleDealChanged(context.Background(), deal.Change{Deal: deal.Deal{ProductName: name}}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	pool.Close()
	if len(h.seen) != 3 {
		t.Fatalf("expected 3 handled events, got %d", len(h.seen))
	}
	if err := pool.HandleDealChanged(context.Background(), deal.Change{}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestMatchPool_DropsOnEnqueueTimeout(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	pool := NewMatchPool(h, MatchPoolConfig{Workers: 1, QueueSize: 1, EnqueueTimeout: 20 * time.Millisecond})
	pool.Start(context.Background())

	ctx := context.Background()
	// 第一筆由 worker 取走並卡住，第二筆佔滿佇列
	_ = pool.HandleDealChanged(ctx, deal.Change{Deal: deal.Deal{ProductName: "first"}})
	deadline := time.Now().Add(time.Second)
	for pool.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	_ = pool.HandleDealChanged(ctx, deal.Change{Deal: deal.Deal{ProductName: "second"}})

	err := pool.HandleDealChanged(ctx, deal.Change{Deal: deal.Deal{ProductName: "third"}})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if pool.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", pool.Dropped())
	}
	close(h.release)
	pool.Close()
}

// ctxHandler 模擬以 QueryContext 讀取訂閱的下游，ctx 已取消即失敗。
type ctxHandler struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (h *ctxHandler) HandleDealChanged(ctx context.Context, c deal.Change) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := ctx.Err(); err != nil {
		h.failed++
		return err
	}
	h.ok++
	return nil
}

func TestMatchPool_FlushesAfterStartContextCancelled(t *testing.T) {
	h := &ctxHandler{}
	pool := NewMatchPool(h, MatchPoolConfig{Workers: 2, QueueSize: 8})
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 5; i++ {
		if err := pool.HandleDealChanged(context.Background(), deal.Change{Deal: deal.Deal{ProductName: string(rune('a' + i))}}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	cancel()
	pool.Start(ctx)
	pool.Close()

	if h.ok != 5 || h.failed != 0 {
		t.Fatalf("expected all queued changes handled on shutdown, got ok=%d failed=%d", h.ok, h.failed)
	}
}

type failingHandler struct{}

func (failingHandler) HandleDealChanged(ctx context.Context, c deal.Change) error {
	return errors.New("subscriptions unavailable")
}

type markRecorder struct {
	mu    sync.Mutex
	marks map[string]bool
}

func (m *markRecorder) MarkNeedsMatch(ctx context.Context, id string, needs bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[id] = needs
	return nil
}

func TestMatchPool_MarksFailedChanges(t *testing.T) {
	marks := &markRecorder{marks: map[string]bool{}}
	pool := NewMatchPool(failingHandler{}, MatchPoolConfig{Workers: 1, QueueSize: 2, Backlog: marks})
	pool.Start(context.Background())
	if err := pool.HandleDealChanged(context.Background(), deal.Change{Deal: deal.Deal{ID: "deal-7", ProductName: "x"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	pool.Close()
	if !marks.marks["deal-7"] {
		t.Fatalf("failed change must be marked for rematch: %v", marks.marks)
	}
}
