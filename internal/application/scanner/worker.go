package scanner

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// BackgroundWorker 定期執行 ScanAll。
type BackgroundWorker struct {
	scanner  *Scanner
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewBackgroundWorker 建立背景掃描工作者，interval 預設 30 分鐘。
func NewBackgroundWorker(scanner *Scanner, interval time.Duration) *BackgroundWorker {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &BackgroundWorker{
		scanner:  scanner,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 啟動迴圈，ctx 取消或呼叫 Stop 時結束。
func (w *BackgroundWorker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	log.Printf("[Scanner] Starting scan worker with interval: %v", w.interval)
	ctx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(w.interval)
	go func() {
		defer close(w.done)
		defer cancel()
		defer ticker.Stop()

		// 啟動後立即執行一次
		w.runOnce(ctx)

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
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-w.done:
		}
	}()
}

// Stop 停止迴圈並等待進行中的掃描結束。
func (w *BackgroundWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	if w.started.Load() {
		<-w.done
	}
}

func (w *BackgroundWorker) runOnce(ctx context.Context) {
	report, err := w.scanner.ScanAll(ctx)
	if err != nil {
		log.Printf("[Scanner] scan pass failed: %v", err)
		return
	}
	log.Printf("[Scanner] scan pass done: sources=%d failed=%d skipped=%d listings=%d changed=%d expired=%d (%v)",
		report.Sources, report.Failed, report.Skipped, report.Listings, report.DealsChanged, report.Expired,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
}
