package deals

import (
	"context"
	"errors"
	"testing"
	"time"

	"deal-sniper/internal/application/scanner"
	alertDomain "deal-sniper/internal/domain/alert"
	"deal-sniper/internal/domain/deal"
	"deal-sniper/internal/infra/memory"
)

type fakeReporter struct {
	report scanner.ScanReport
	ok     bool
}

func (f fakeReporter) LastReport() (scanner.ScanReport, bool) { return f.report, f.ok }

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(store.Deals, store.Prices, store.Sources, store.Subscriptions, store.Alerts, store.Tracking,
		fakeReporter{report: scanner.ScanReport{Sources: 3, Failed: 1}, ok: true})
	return svc, store
}

func TestService_SubscribeAppliesDefaultMinDiscount(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	id, err := svc.Subscribe(ctx, "u1", alertDomain.Criteria{Keywords: []string{"switch"}})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub, err := store.Subscriptions.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Criteria.MinDiscount == nil || *sub.Criteria.MinDiscount != alertDomain.DefaultMinDiscount {
		t.Fatalf("expected default min discount stored, got %+v", sub.Criteria.MinDiscount)
	}

	zeroID, err := svc.Subscribe(ctx, "u1", alertDomain.Criteria{MinDiscount: alertDomain.Discount(0)})
	if err != nil {
		t.Fatal(err)
	}
	zero, _ := store.Subscriptions.Get(ctx, zeroID)
	if zero.Criteria.MinDiscountPercent() != 0 {
		t.Fatalf("explicit zero must be kept, got %d", zero.Criteria.MinDiscountPercent())
	}
}

func TestService_Subscribe(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	id, err := svc.Subscribe(ctx, "u1", alertDomain.Criteria{MinDiscount: alertDomain.Discount(10), Keywords: []string{"macbook"}})
	if err != nil || id == "" {
		t.Fatalf("subscribe: %v", err)
	}
	subs, _ := svc.ListSubscriptions(ctx, "u1")
	if len(subs) != 1 || subs[0].Criteria.AlertFrequency != alertDomain.FrequencyInstant || !subs[0].IsActive {
		t.Fatalf("unexpected subscriptions: %+v", subs)
	}

	if _, err := svc.Subscribe(ctx, "", alertDomain.Criteria{}); !errors.Is(err, alertDomain.ErrInvalidSubscription) {
		t.Fatalf("expected invalid subscription, got %v", err)
	}
	if _, err := svc.Subscribe(ctx, "u1", alertDomain.Criteria{MinDiscount: alertDomain.Discount(150)}); !errors.Is(err, alertDomain.ErrInvalidSubscription) {
		t.Fatalf("expected invalid subscription, got %v", err)
	}

	updated, err := svc.UpdateSubscription(ctx, id, alertDomain.Criteria{MinDiscount: alertDomain.Discount(25), AlertFrequency: alertDomain.FrequencyDaily})
	if err != nil || updated.Criteria.MinDiscountPercent() != 25 || updated.UserID != "u1" {
		t.Fatalf("update: %+v %v", updated, err)
	}
	if _, err := svc.UpdateSubscription(ctx, "missing", alertDomain.Criteria{}); !errors.Is(err, alertDomain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := svc.Unsubscribe(ctx, id); err != nil {
		t.Fatal(err)
	}
	subs, _ = svc.ListSubscriptions(ctx, "u1")
	if subs[0].IsActive {
		t.Fatal("unsubscribe must deactivate, not delete")
	}
}

func TestService_DealQueries(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Now()

	for i, name := range []string{"Sony WH-1000XM5", "Bose QC45", "iPhone 15"} {
		category := deal.Categorize(name)
		if category == "" {
			category = "electronics_audio"
		}
		d := deal.Deal{ProductName: name, Retailer: "amazon", Category: category, OriginalPrice: 400, CreatedAt: now}
		d = d.Reprice(float64(300-i*50), 0, deal.InStock, now, deal.DefaultTTL)
		if _, _, err := store.Deals.Upsert(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	trending, err := svc.ListTrendingDeals(ctx, 0)
	if err != nil || len(trending) != 3 || trending[0].ProductName != "iPhone 15" {
		t.Fatalf("unexpected trending: %+v %v", trending, err)
	}
	audio, _ := svc.ListDealsByCategory(ctx, " Electronics_Audio ", 0)
	if len(audio) != 2 {
		t.Fatalf("expected 2 audio deals, got %d", len(audio))
	}
	found, _ := svc.SearchDeals(ctx, deal.SearchFilter{MinDiscount: 40, SortBy: deal.SortDiscount})
	if len(found) != 1 || found[0].ProductName != "iPhone 15" {
		t.Fatalf("unexpected search: %+v", found)
	}
}

func TestService_PriceHistory(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	ts := time.Now()
	for _, p := range []float64{2000, 1800, 1600} {
		_, _ = store.Prices.RecordObservation(ctx, deal.PriceObservation{ProductName: "MacBook", Retailer: "x", Price: p, ObservedAt: ts})
	}
	hist, err := svc.PriceHistory(ctx, "MacBook", "x", 2)
	if err != nil || len(hist) != 2 || hist[0].Price != 1600 {
		t.Fatalf("unexpected history: %+v %v", hist, err)
	}
	if _, err := svc.PriceHistory(ctx, "", "x", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestService_SourcesAndHealth(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	if _, err := svc.RegisterSource(ctx, deal.Source{Name: "bad", Kind: "ftp"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	src, err := svc.RegisterSource(ctx, deal.Source{Name: " amazon ", Kind: deal.SourceSynthetic, Active: true, Priority: 10})
	if err != nil || src.Name != "amazon" || src.Currency != "USD" {
		t.Fatalf("register: %+v %v", src, err)
	}
	_, _ = svc.RegisterSource(ctx, deal.Source{Name: "walmart", Kind: deal.SourceSynthetic, Active: true, Priority: 8})
	_ = store.Sources.RecordScan(ctx, "walmart", time.Now(), errors.New("timeout"))
	if err := svc.DeactivateSource(ctx, "walmart"); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeactivateSource(ctx, "nope"); !errors.Is(err, deal.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, _, _ = store.Alerts.UpsertPending(ctx, alertDomain.DealAlert{SubscriptionID: "s", DealID: "d", UserID: "u1"})
	flagged, _, _ := store.Alerts.UpsertPending(ctx, alertDomain.DealAlert{SubscriptionID: "s", DealID: "d2", UserID: "u1"})
	_, _ = store.Alerts.RecordFailure(ctx, flagged.ID, "boom", 1)
	_, _ = svc.Subscribe(ctx, "u1", alertDomain.Criteria{MinDiscount: alertDomain.Discount(10)})

	h, err := svc.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if h.ActiveSources != 1 || h.PendingQueueSize != 1 || h.FlaggedAlerts != 1 || h.RecentAlerts24h != 2 || h.ActiveSubscriptions != 1 {
		t.Fatalf("unexpected health: %+v", h)
	}
	if len(h.Sources) != 2 || h.Sources[1].ErrorCount != 1 || h.LastScan == nil || h.LastScan.Failed != 1 {
		t.Fatalf("unexpected source health: %+v", h)
	}

	alerts, _ := svc.ListAlerts(ctx, "u1", 0)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if err := svc.MarkAlertRead(ctx, alerts[0].ID); err != nil {
		t.Fatal(err)
	}
	if len(svc.Categories()) != len(deal.DefaultCategories) {
		t.Fatal("categories mismatch")
	}
}
