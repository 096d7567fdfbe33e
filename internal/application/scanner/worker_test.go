package scanner

import (
	"context"
	"testing"
	"time"
)

func TestBackgroundWorker_RunsImmediatelyAndStops(t *testing.T) {
	h := newHarness(src("retailerx", 1))
	h.fetcher.set("retailerx", raw("Xbox Series X", "399", "499"))

	w := NewBackgroundWorker(h.scanner, time.Hour)
	w.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := h.scanner.LastReport(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected an immediate scan pass")
		}
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()
	w.Stop()

	if h.handler.count() != 1 {
		t.Fatalf("expected 1 change event, got %d", h.handler.count())
	}
}

func TestBackgroundWorker_StopsOnContextCancel(t *testing.T) {
	h := newHarness()
	w := NewBackgroundWorker(h.scanner, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}
