package deals

import (
	"context"
	"errors"
	"testing"
	"time"

	alertDomain "deal-sniper/internal/domain/alert"
	"deal-sniper/internal/domain/deal"
)

func TestService_TrackProduct(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	created, err := svc.TrackProduct(ctx, alertDomain.PriceTarget{UserID: " u1 ", ProductURL: "https://shop.test/switch"})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if created.ID == "" || created.UserID != "u1" || created.AlertType != alertDomain.TypePriceDrop || !created.IsActive {
		t.Fatalf("unexpected target: %+v", created)
	}

	bad := -5.0
	cases := map[string]alertDomain.PriceTarget{
		"MissingUser":   {ProductURL: "https://shop.test/switch"},
		"RelativeURL":   {UserID: "u1", ProductURL: "/switch"},
		"NegativePrice": {UserID: "u1", ProductURL: "https://shop.test/switch", TargetPrice: &bad},
		"UnknownType":   {UserID: "u1", ProductURL: "https://shop.test/switch", AlertType: "bogus"},
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.TrackProduct(ctx, target); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestService_ListTrackingEvaluatesCurrentDeal(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Now()

	d := deal.Deal{ProductName: "Nintendo Switch OLED", Retailer: "amazon", ProductURL: "https://shop.test/switch", OriginalPrice: 350, CreatedAt: now}
	d = d.Reprice(280, 0, deal.InStock, now, deal.DefaultTTL)
	if _, _, err := store.Deals.Upsert(ctx, d); err != nil {
		t.Fatal(err)
	}

	high, low := 300.0, 250.0
	for _, target := range []alertDomain.PriceTarget{
		{UserID: "u1", ProductURL: "https://shop.test/switch", TargetPrice: &high},
		{UserID: "u1", ProductURL: "https://shop.test/switch", TargetPrice: &low},
		{UserID: "u1", ProductURL: "https://shop.test/unknown"},
	} {
		if _, err := svc.TrackProduct(ctx, target); err != nil {
			t.Fatal(err)
		}
	}

	list, err := svc.ListTracking(ctx, "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 tracked products, got %d", len(list))
	}
	for _, p := range list {
		switch {
		case p.Target.ProductURL == "https://shop.test/unknown":
			if p.Deal != nil || p.Reached {
				t.Fatalf("unknown url must have no deal: %+v", p)
			}
		case *p.Target.TargetPrice == high:
			if !p.Reached || p.Deal == nil || p.Deal.CurrentPrice != 280 {
				t.Fatalf("280 must reach a 300 target: %+v", p)
			}
		case *p.Target.TargetPrice == low:
			if p.Reached {
				t.Fatalf("280 must not reach a 250 target: %+v", p)
			}
		}
	}

	if _, err := svc.ListTracking(ctx, " ", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestService_Analytics(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Now()

	empty, err := svc.Analytics(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if empty.Summary.TopRetailer != "N/A" || empty.Summary.TotalDeals != 0 {
		t.Fatalf("unexpected empty summary: %+v", empty.Summary)
	}
	if got := empty.End.Sub(empty.Start); got != 30*24*time.Hour {
		t.Fatalf("expected 30 day default window, got %s", got)
	}

	for i, name := range []string{"Sony WH-1000XM5", "Bose QC45", "iPhone 15"} {
		retailer := "amazon"
		if i == 2 {
			retailer = "bestbuy"
		}
		d := deal.Deal{ProductName: name, Retailer: retailer, Category: "electronics_audio", OriginalPrice: 400, CreatedAt: now}
		d = d.Reprice(300, 0, deal.InStock, now, deal.DefaultTTL)
		stored, _, err := store.Deals.Upsert(ctx, d)
		if err != nil {
			t.Fatal(err)
		}
		_, _, _ = store.Alerts.UpsertPending(ctx, alertDomain.DealAlert{SubscriptionID: "s1", DealID: stored.ID, UserID: "u1", Type: alertDomain.TypePriceDrop})
	}

	a, err := svc.Analytics(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if a.Summary.TotalDeals != 3 || a.Summary.TotalAlerts != 3 || a.Summary.TopRetailer != "amazon" {
		t.Fatalf("unexpected summary: %+v", a.Summary)
	}
	if len(a.Retailers) != 2 || a.Retailers[0].AvgDiscount != 25 {
		t.Fatalf("unexpected retailer stats: %+v", a.Retailers)
	}
	if len(a.Alerts) != 1 || a.Alerts[0].Count != 3 {
		t.Fatalf("unexpected alert stats: %+v", a.Alerts)
	}

	if _, err := svc.Analytics(ctx, now, now.Add(-time.Hour)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for inverted period, got %v", err)
	}
}
