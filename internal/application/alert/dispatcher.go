package alert

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DispatcherConfig 控制每次 drain 的批次大小與重試上限。
type DispatcherConfig struct {
	BatchSize   int
	MaxAttempts int
}

// DrainResult 為一次 drain 的統計。
type DrainResult struct {
	Sent    int
	Failed  int
	Flagged int
	Skipped int
}

// Dispatcher 依 FIFO 取出待送 alert 交給 Notifier，成功後以 CAS 標記已送出。
type Dispatcher struct {
	alerts   AlertRepository
	notifier Notifier
	cfg      DispatcherConfig
	now      func() time.Time
	mu       sync.Mutex
}

// NewDispatcher 建立 Dispatcher。
func NewDispatcher(alerts AlertRepository, notifier Notifier, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Dispatcher{
		alerts:   alerts,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Drain 送出目前可送的 alert。送失敗的 alert 留在待送集合，下次 drain 再試。
func (d *Dispatcher) Drain(ctx context.Context) (DrainResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var res DrainResult
	pending, err := d.alerts.ListPending(ctx, d.now(), d.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list pending alerts: %w", err)
	}

	for _, a := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err := d.notifier.Deliver(ctx, a); err != nil {
			res.Failed++
			updated, rerr := d.alerts.RecordFailure(ctx, a.ID, err.Error(), d.cfg.MaxAttempts)
			if rerr != nil {
				log.Printf("[Dispatcher] record failure for alert %s: %v", a.ID, rerr)
				continue
			}
			if updated.NeedsReview {
				res.Flagged++
				log.Printf("[Dispatcher] alert %s flagged for review after %d attempts: %v", a.ID, updated.Attempts, err)
			} else {
				log.Printf("[Dispatcher] deliver alert %s failed (attempt %d): %v", a.ID, updated.Attempts, err)
			}
			continue
		}

		ok, err := d.alerts.MarkSent(ctx, a.ID, a.Version, d.now())
		if err != nil {
			log.Printf("[Dispatcher] mark alert %s sent: %v", a.ID, err)
			continue
		}
		if !ok {
			// 已被其他 drain 送出，或送出期間被更新；後者留待下次 drain 送新內容
			res.Skipped++
			continue
		}
		res.Sent++
	}
	return res, nil
}

// RetryFlagged 清除人工檢查標記，讓 alert 回到待送集合。
func (d *Dispatcher) RetryFlagged(ctx context.Context, id string) error {
	if err := d.alerts.ClearReview(ctx, id); err != nil {
		return fmt.Errorf("retry alert %s: %w", id, err)
	}
	return nil
}

// DrainWorker 定期執行 Drain。
type DrainWorker struct {
	dispatcher *Dispatcher
	interval   time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	started    atomic.Bool
}

// NewDrainWorker 建立 drain 工作者，interval 預設 2 分鐘。
func NewDrainWorker(d *Dispatcher, interval time.Duration) *DrainWorker {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &DrainWorker{
		dispatcher: d,
		interval:   interval,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start 啟動迴圈，ctx 取消或呼叫 Stop 時結束；進行中的 drain 會跑完。
func (w *DrainWorker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	log.Printf("[Dispatcher] Starting drain worker with interval: %v", w.interval)
	ticker := time.NewTicker(w.interval)
	go func() {
		defer close(w.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.runOnce(ctx)
			case <-w.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop 停止迴圈並等待結束。
func (w *DrainWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	if w.started.Load() {
		<-w.done
	}
}

func (w *DrainWorker) runOnce(ctx context.Context) {
	res, err := w.dispatcher.Drain(context.WithoutCancel(ctx))
	if err != nil {
		log.Printf("[Dispatcher] drain failed: %v", err)
		return
	}
	if res.Sent+res.Failed > 0 {
		log.Printf("[Dispatcher] drain done: sent=%d failed=%d flagged=%d skipped=%d", res.Sent, res.Failed, res.Flagged, res.Skipped)
	}
}
