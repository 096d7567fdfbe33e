package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"deal-sniper/internal/domain/deal"
)

type fakeSources struct {
	mu      sync.Mutex
	list    []deal.Source
	success map[string]int
	errs    map[string]int
}

func newFakeSources(sources ...deal.Source) *fakeSources {
	return &fakeSources{list: sources, success: map[string]int{}, errs: map[string]int{}}
}

func (f *fakeSources) ListActive(ctx context.Context) ([]deal.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]deal.Source, 0, len(f.list))
	for _, s := range f.list {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSources) RecordScan(ctx context.Context, name string, at time.Time, scanErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if scanErr != nil {
		f.errs[name]++
	} else {
		f.success[name]++
	}
	for i := range f.list {
		if f.list[i].Name == name {
			t := at
			f.list[i].LastScannedAt = &t
		}
	}
	return nil
}

type fakeHistory struct {
	mu  sync.Mutex
	obs map[deal.Key][]deal.PriceObservation
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{obs: map[deal.Key][]deal.PriceObservation{}}
}

func (f *fakeHistory) RecordObservation(ctx context.Context, o deal.PriceObservation) (deal.PriceObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := deal.Key{ProductName: o.ProductName, Retailer: o.Retailer}
	f.obs[k] = append(f.obs[k], o)
	return o, nil
}

func (f *fakeHistory) LatestObservation(ctx context.Context, k deal.Key) (deal.PriceObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.obs[k]
	if len(list) == 0 {
		return deal.PriceObservation{}, deal.ErrNotFound
	}
	return list[len(list)-1], nil
}

func (f *fakeHistory) count(k deal.Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.obs[k])
}

type fakeDeals struct {
	mu        sync.Mutex
	rows      map[deal.Key]deal.Deal
	needs     map[string]bool
	failUpsrt bool
}

func newFakeDeals() *fakeDeals {
	return &fakeDeals{rows: map[deal.Key]deal.Deal{}, needs: map[string]bool{}}
}

func (f *fakeDeals) Get(ctx context.Context, k deal.Key) (deal.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[k]
	if !ok {
		return deal.Deal{}, deal.ErrNotFound
	}
	return d, nil
}

func (f *fakeDeals) Upsert(ctx context.Context, d deal.Deal) (deal.Deal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsrt {
		return deal.Deal{}, false, errors.New("db down")
	}
	prev, ok := f.rows[d.Key()]
	if ok {
		d.ID = prev.ID
	} else if d.ID == "" {
		d.ID = fmt.Sprintf("deal-%d", len(f.rows)+1)
	}
	f.rows[d.Key()] = d
	changed := !ok || prev.CurrentPrice != d.CurrentPrice
	if changed {
		delete(f.needs, d.ID)
	}
	return d, changed, nil
}

func (f *fakeDeals) MarkNeedsMatch(ctx context.Context, id string, needs bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if needs {
		f.needs[id] = true
	} else {
		delete(f.needs, id)
	}
	return nil
}

func (f *fakeDeals) ListNeedsMatch(ctx context.Context, limit int) ([]deal.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []deal.Deal
	for _, d := range f.rows {
		if f.needs[d.ID] && d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDeals) needsMatch(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.needs[id]
}

func (f *fakeDeals) ExpireOlderThan(ctx context.Context, ttl time.Duration, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k, d := range f.rows {
		if d.IsActive && d.Expired(now, ttl) {
			d.IsActive = false
			f.rows[k] = d
			n++
		}
	}
	return n, nil
}

func (f *fakeDeals) get(k deal.Key) (deal.Deal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[k]
	return d, ok
}

type recordingHandler struct {
	mu      sync.Mutex
	changes []deal.Change
	err     error
}

func (h *recordingHandler) HandleDealChanged(ctx context.Context, c deal.Change) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.changes = append(h.changes, c)
	return nil
}

func (h *recordingHandler) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.changes)
}

// staticFetcher 依來源名稱回傳預設 listing，可在測試中替換。
type staticFetcher struct {
	mu       sync.Mutex
	listings map[string][]deal.RawListing
	failing  map[string]bool
}

func (f *staticFetcher) Fetch(ctx context.Context, src deal.Source) ([]deal.RawListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[src.Name] {
		return nil, errors.New("connection refused")
	}
	return f.listings[src.Name], nil
}

func (f *staticFetcher) set(source string, listings ...deal.RawListing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings[source] = listings
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	scanner *Scanner
	sources *fakeSources
	history *fakeHistory
	deals   *fakeDeals
	handler *recordingHandler
	fetcher *staticFetcher
	clock   *testClock
}

func newHarness(sources ...deal.Source) *harness {
	h := &harness{
		sources: newFakeSources(sources...),
		history: newFakeHistory(),
		deals:   newFakeDeals(),
		handler: &recordingHandler{},
		fetcher: &staticFetcher{listings: map[string][]deal.RawListing{}, failing: map[string]bool{}},
		clock:   &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.scanner = NewScanner(h.sources, h.history, h.deals, h.fetcher, h.handler, Config{Workers: 2})
	h.scanner.now = h.clock.now
	return h
}

func src(name string, priority int) deal.Source {
	return deal.Source{Name: name, Kind: deal.SourceAPI, Endpoint: "https://" + name + ".example.com/api", Active: true, Priority: priority}
}

func raw(name, price, original string) deal.RawListing {
	return deal.RawListing{Name: name, PriceText: price, OriginalPriceText: original, URL: "/p/" + name, Availability: "in_stock"}
}

func TestScanAll_IsolatesFailingSources(t *testing.T) {
	h := newHarness(src("a", 10), src("b", 9), src("c", 8), src("d", 7), src("e", 6))
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		h.fetcher.set(name, raw("Widget "+name, "80", "100"))
	}
	h.fetcher.failing["b"] = true
	h.fetcher.failing["d"] = true

	report, err := h.scanner.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("scan all: %v", err)
	}
	if report.Sources != 5 || report.Failed != 2 || report.DealsChanged != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	for _, name := range []string{"a", "c", "e"} {
		if _, ok := h.deals.get(deal.Key{ProductName: "Widget " + name, Retailer: name}); !ok {
			t.Errorf("expected deal for source %s", name)
		}
		if h.sources.success[name] != 1 {
			t.Errorf("expected success counter for %s", name)
		}
	}
	for _, name := range []string{"b", "d"} {
		if h.sources.errs[name] != 1 {
			t.Errorf("expected error counter for %s, got %d", name, h.sources.errs[name])
		}
	}
	if got, ok := h.scanner.LastReport(); !ok || got.Failed != 2 {
		t.Fatalf("expected last report to be stored")
	}
}

func TestScanAll_ChangedGate(t *testing.T) {
	h := newHarness(src("retailerx", 10))
	h.fetcher.set("retailerx", raw("MacBook Pro 16-inch", "$1,600.00", "$2,000.00"))
	key := deal.Key{ProductName: "MacBook Pro 16-inch", Retailer: "retailerx"}

	if _, err := h.scanner.ScanAll(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	d, ok := h.deals.get(key)
	if !ok || d.DiscountPercent != 20 || d.Category != "electronics_computers" {
		t.Fatalf("unexpected deal after first scan: %+v", d)
	}
	if d.ProductURL != "https://retailerx.example.com/p/MacBook Pro 16-inch" && d.ProductURL != "https://retailerx.example.com/p/MacBook%20Pro%2016-inch" {
		t.Fatalf("expected absolute url, got %s", d.ProductURL)
	}

	// 同價重掃不可觸發比對
	if _, err := h.scanner.ScanAll(context.Background()); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if h.handler.count() != 1 {
		t.Fatalf("expected exactly one change event, got %d", h.handler.count())
	}
	if h.history.count(key) != 2 {
		t.Fatalf("expected 2 observations, got %d", h.history.count(key))
	}

	// 降價
	h.fetcher.set("retailerx", raw("MacBook Pro 16-inch", "1200", ""))
	if _, err := h.scanner.ScanAll(context.Background()); err != nil {
		t.Fatalf("drop scan: %v", err)
	}
	if h.handler.count() != 2 {
		t.Fatalf("expected a change event for the drop")
	}
	last := h.handler.changes[1]
	if last.Previous == nil || last.Previous.CurrentPrice != 1600 || last.Deal.DiscountPercent != 40 {
		t.Fatalf("unexpected drop change: %+v", last)
	}
}

func TestScanAll_PriceRiseOnlyRecordsHistory(t *testing.T) {
	h := newHarness(src("retailerx", 10))
	key := deal.Key{ProductName: "Canon EOS R5", Retailer: "retailerx"}
	h.fetcher.set("retailerx", raw("Canon EOS R5", "3000", "3900"))
	if _, err := h.scanner.ScanAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.fetcher.set("retailerx", raw("Canon EOS R5", "3500", "3900"))
	if _, err := h.scanner.ScanAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	d, _ := h.deals.get(key)
	if d.CurrentPrice != 3000 {
		t.Fatalf("price rise must not overwrite the stored deal price, got %.2f", d.CurrentPrice)
	}
	if h.handler.count() != 1 {
		t.Fatalf("price rise must not emit a change, got %d events", h.handler.count())
	}
	if h.history.count(key) != 2 {
		t.Fatalf("expected rise to be recorded in history")
	}
}

func TestScanAll_NoDropSignalIsNotPersisted(t *testing.T) {
	h := newHarness(src("retailerx", 10))
	key := deal.Key{ProductName: "Garden Hose", Retailer: "retailerx"}
	h.fetcher.set("retailerx", raw("Garden Hose", "25", ""))
	if _, err := h.scanner.ScanAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.deals.get(key); ok {
		t.Fatal("listing without a drop signal must not become a deal")
	}

	h.fetcher.set("retailerx", raw("Garden Hose", "20", ""))
	if _, err := h.scanner.ScanAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	d, ok := h.deals.get(key)
	if !ok || d.OriginalPrice != 25 || d.DiscountPercent != 20 || d.Category != deal.GeneralCategory {
		t.Fatalf("expected deal against last observed price, got %+v", d)
	}
}

func TestScanAll_SkipsSourcesNotDue(t *testing.T) {
	recent := time.Date(2025, 3, 1, 11, 59, 0, 0, time.UTC)
	slow := src("slow", 5)
	slow.ScanInterval = time.Hour
	slow.LastScannedAt = &recent
	inactive := src("off", 1)
	inactive.Active = false
	h := newHarness(slow, src("fast", 1), inactive)

	report, err := h.scanner.ScanAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Sources != 1 || report.Skipped != 1 || report.Results[0].Source != "fast" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestScanAll_DropsMalformedListings(t *testing.T) {
	h := newHarness(src("retailerx", 10))
	h.fetcher.set("retailerx",
		raw("Broken", "call for price", ""),
		raw("", "10", "20"),
		raw("Kindle Paperwhite", "99", "149"),
	)
	report, err := h.scanner.ScanAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r := report.Results[0]
	if r.Listings != 1 || r.Dropped != 2 || r.DealsChanged != 1 || r.Error != "" {
		t.Fatalf("unexpected source result: %+v", r)
	}
}

func TestScanAll_ExpiresStaleDeals(t *testing.T) {
	h := newHarness(src("retailerx", 10))
	h.fetcher.set("retailerx", raw("Nintendo Switch OLED", "299", "349"))
	if _, err := h.scanner.ScanAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.fetcher.set("retailerx")
	h.clock.advance(8 * 24 * time.Hour)
	report, err := h.scanner.ScanAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	d, _ := h.deals.get(deal.Key{ProductName: "Nintendo Switch OLED", Retailer: "retailerx"})
	if report.Expired != 1 || d.IsActive {
		t.Fatalf("expected deal to expire, report=%+v deal=%+v", report, d)
	}

	// 失效後同價重新出現不會再觸發 alert
	h.fetcher.set("retailerx", raw("Nintendo Switch OLED", "299", "349"))
	if _, err := h.scanner.ScanAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.handler.count() != 1 {
		t.Fatalf("expected stale deal not to re-trigger, got %d events", h.handler.count())
	}
	d, _ = h.deals.get(deal.Key{ProductName: "Nintendo Switch OLED", Retailer: "retailerx"})
	if !d.IsActive {
		t.Fatal("expected deal reactivated")
	}
}

func TestScanAll_UpsertFailureCountsWriteError(t *testing.T) {
	h := newHarness(src("retailerx", 10))
	h.deals.failUpsrt = true
	h.fetcher.set("retailerx", raw("iPad Air", "499", "599"))
	report, err := h.scanner.ScanAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Results[0].WriteErrors != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report.Results[0])
	}
	if h.sources.success["retailerx"] != 1 {
		t.Fatal("fetch succeeded so the source should count a success")
	}
}

func TestScanAll_ReplaysUnmatchedDeals(t *testing.T) {
	h := newHarness(src("retailerx", 10))
	key := deal.Key{ProductName: "Sony WH-1000XM5", Retailer: "retailerx"}
	h.fetcher.set("retailerx", raw("Sony WH-1000XM5", "280", "400"))
	h.handler.fail(ErrQueueFull)

	if _, err := h.scanner.ScanAll(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	d, ok := h.deals.get(key)
	if !ok || !h.deals.needsMatch(d.ID) {
		t.Fatalf("dropped change must be marked for rematch: %+v", d)
	}
	if h.handler.count() != 0 {
		t.Fatalf("expected no handled changes, got %d", h.handler.count())
	}

	// 同價重掃不會產生變動，只能靠標記重送
	h.handler.fail(nil)
	report, err := h.scanner.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if report.Rematched != 1 || report.DealsChanged != 0 {
		t.Fatalf("expected one replayed deal, got %+v", report)
	}
	if h.handler.count() != 1 || h.handler.changes[0].Deal.CurrentPrice != 280 || h.handler.changes[0].Previous != nil {
		t.Fatalf("unexpected replayed change: %+v", h.handler.changes)
	}
	if h.deals.needsMatch(d.ID) {
		t.Fatal("replayed deal must be cleared")
	}

	if report, _ := h.scanner.ScanAll(context.Background()); report.Rematched != 0 {
		t.Fatalf("backlog must be empty after replay, got %+v", report)
	}
}

func TestScanSource_FetchTimeout(t *testing.T) {
	h := newHarness()
	h.scanner.cfg.FetchTimeout = 20 * time.Millisecond
	h.scanner.fetcher = FetcherFunc(func(ctx context.Context, s deal.Source) ([]deal.RawListing, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := h.scanner.ScanSource(context.Background(), src("slow", 1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(deal.SourceSynthetic, FetcherFunc(func(ctx context.Context, s deal.Source) ([]deal.RawListing, error) {
		return []deal.RawListing{{Name: "x"}}, nil
	}))
	got, err := r.Fetch(context.Background(), deal.Source{Kind: deal.SourceSynthetic})
	if err != nil || len(got) != 1 {
		t.Fatalf("unexpected result: %v %v", got, err)
	}
	if _, err := r.Fetch(context.Background(), deal.Source{Kind: deal.SourceScraped}); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
}
