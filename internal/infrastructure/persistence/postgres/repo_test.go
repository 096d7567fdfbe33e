package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"deal-sniper/internal/domain/deal"

	"github.com/DATA-DOG/go-sqlmock"
)

var dealColumnNames = []string{
	"id", "product_name", "retailer", "current_price", "original_price", "discount_percent", "currency",
	"product_url", "image_url", "availability", "deal_score", "category", "deal_type", "is_active", "expires_at", "last_seen_at",
	"created_at", "updated_at",
}

func TestDealRepo_UpsertInsertReportsChanged(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewDealRepo(db)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d := deal.Deal{
		ProductName:     "MacBook Pro 16-inch",
		Retailer:        "retailerx",
		CurrentPrice:    1600,
		OriginalPrice:   2000,
		DiscountPercent: 20,
		Currency:        "USD",
		Availability:    deal.InStock,
		Score:           52,
		Category:        "electronics_computers",
		DealType:        deal.TypePriceDrop,
		IsActive:        true,
		ExpiresAt:       now.Add(deal.DefaultTTL),
		LastSeenAt:      now,
		CreatedAt:       now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, current_price, created_at FROM deal_inventory (.+) FOR UPDATE").
		WithArgs(d.ProductName, d.Retailer).
		WillReturnRows(sqlmock.NewRows([]string{"id", "current_price", "created_at"}))
	mock.ExpectQuery("INSERT INTO deal_inventory").
		WillReturnRows(sqlmock.NewRows([]string{"id", "updated_at"}).AddRow("deal-1", now))
	mock.ExpectCommit()

	stored, changed, err := repo.Upsert(context.Background(), d)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !changed || stored.ID != "deal-1" {
		t.Fatalf("expected new deal to be changed, got changed=%v id=%s", changed, stored.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestDealRepo_UpsertSamePriceNotChanged(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewDealRepo(db)
	now := time.Now()
	d := deal.Deal{ProductName: "iPhone 15", Retailer: "amazon", CurrentPrice: 799.999, OriginalPrice: 999, Availability: deal.InStock, IsActive: true}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, current_price, created_at FROM deal_inventory").
		WithArgs(d.ProductName, d.Retailer).
		WillReturnRows(sqlmock.NewRows([]string{"id", "current_price", "created_at"}).AddRow("deal-9", 800.0, now))
	mock.ExpectQuery("UPDATE deal_inventory").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	stored, changed, err := repo.Upsert(context.Background(), d)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if changed {
		t.Fatal("expected unchanged price to report changed=false")
	}
	if stored.ID != "deal-9" || !stored.CreatedAt.Equal(now) {
		t.Fatalf("expected stored identity to be preserved, got %+v", stored)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestDealRepo_UpsertRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewDealRepo(db)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, current_price, created_at FROM deal_inventory").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	if _, _, err := repo.Upsert(context.Background(), deal.Deal{ProductName: "x", Retailer: "y"}); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestDealRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewDealRepo(db)
	now := time.Now()
	key := deal.Key{ProductName: "Nintendo Switch OLED", Retailer: "walmart"}

	mock.ExpectQuery("SELECT (.+) FROM deal_inventory WHERE product_name = \\$1 AND retailer = \\$2").
		WithArgs(key.ProductName, key.Retailer).
		WillReturnRows(sqlmock.NewRows(dealColumnNames).AddRow(
			"deal-3", key.ProductName, key.Retailer, 299.0, 349.0, 14, "USD",
			"https://walmart.example/switch", "", "limited", 48.4, "electronics_gaming", "flash_sale", true, now.Add(time.Hour), now,
			now, now,
		))
	mock.ExpectQuery("SELECT (.+) FROM deal_inventory WHERE product_name = \\$1 AND retailer = \\$2").
		WithArgs("missing", "walmart").
		WillReturnRows(sqlmock.NewRows(dealColumnNames))

	d, err := repo.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if d.Availability != deal.Limited || d.DealType != deal.TypeFlashSale || d.DiscountPercent != 14 {
		t.Fatalf("unexpected deal: %+v", d)
	}
	if _, err := repo.Get(context.Background(), deal.Key{ProductName: "missing", Retailer: "walmart"}); !errors.Is(err, deal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestDealRepo_ExpireOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewDealRepo(db)
	now := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE deal_inventory SET is_active = FALSE").
		WithArgs(now, now.Add(-deal.DefaultTTL)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ExpireOlderThan(context.Background(), deal.DefaultTTL, now)
	if err != nil {
		t.Fatalf("ExpireOlderThan failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 expired, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestDealRepo_SearchBuildsFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewDealRepo(db)
	mock.ExpectQuery("WHERE is_active = TRUE AND LOWER\\(category\\) = LOWER\\(\\$1\\) AND discount_percent >= \\$2 ORDER BY current_price ASC").
		WithArgs("electronics_audio", 20, 20).
		WillReturnRows(sqlmock.NewRows(dealColumnNames))

	out, err := repo.Search(context.Background(), deal.SearchFilter{Category: "electronics_audio", MinDiscount: 20, SortBy: deal.SortPrice})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no rows, got %d", len(out))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestPriceRepo_RecordObservation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPriceRepo(db)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	stored := at.Add(time.Microsecond)
	mock.ExpectQuery("INSERT INTO price_history").
		WithArgs("MacBook Pro 16-inch", "retailerx", 1600.0, "USD", at).
		WillReturnRows(sqlmock.NewRows([]string{"id", "observed_at"}).AddRow("obs-1", stored))

	obs, err := repo.RecordObservation(context.Background(), deal.PriceObservation{
		ProductName: "MacBook Pro 16-inch", Retailer: "retailerx", Price: 1600, Currency: "usd", ObservedAt: at,
	})
	if err != nil {
		t.Fatalf("RecordObservation failed: %v", err)
	}
	if obs.ID != "obs-1" || !obs.ObservedAt.Equal(stored) {
		t.Fatalf("unexpected observation: %+v", obs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestPriceRepo_LatestObservationNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPriceRepo(db)
	mock.ExpectQuery("SELECT (.+) FROM price_history").
		WithArgs("x", "y").
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_name", "retailer", "price", "currency", "observed_at"}))

	if _, err := repo.LatestObservation(context.Background(), deal.Key{ProductName: "x", Retailer: "y"}); !errors.Is(err, deal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestDealRepo_PriceChangeClearsNeedsMatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewDealRepo(db)
	now := time.Now()
	d := deal.Deal{ProductName: "iPhone 15", Retailer: "amazon", CurrentPrice: 699, OriginalPrice: 999, Availability: deal.InStock, IsActive: true}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, current_price, created_at FROM deal_inventory").
		WithArgs(d.ProductName, d.Retailer).
		WillReturnRows(sqlmock.NewRows([]string{"id", "current_price", "created_at"}).AddRow("deal-9", 800.0, now))
	mock.ExpectQuery("UPDATE deal_inventory SET (.+) needs_match = needs_match AND NOT \\$16").
		WithArgs("deal-9", 699.0, 999.0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"in_stock", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), true, sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), true).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	if _, changed, err := repo.Upsert(context.Background(), d); err != nil || !changed {
		t.Fatalf("expected price drop to be changed: changed=%v err=%v", changed, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestDealRepo_NeedsMatchBacklog(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewDealRepo(db)
	now := time.Now()
	mock.ExpectExec("UPDATE deal_inventory SET needs_match = \\$2 WHERE id = \\$1").
		WithArgs("deal-3", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE deal_inventory SET needs_match = \\$2 WHERE id = \\$1").
		WithArgs("missing", true).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM deal_inventory WHERE needs_match = TRUE AND is_active = TRUE ORDER BY updated_at, id LIMIT \\$1").
		WithArgs(500).
		WillReturnRows(sqlmock.NewRows(dealColumnNames).AddRow(
			"deal-3", "Nintendo Switch OLED", "walmart", 299.0, 349.0, 14, "USD",
			"https://walmart.example/switch", "", "limited", 48.4, "electronics_gaming", "flash_sale", true, now.Add(time.Hour), now,
			now, now,
		))

	if err := repo.MarkNeedsMatch(context.Background(), "deal-3", true); err != nil {
		t.Fatalf("MarkNeedsMatch failed: %v", err)
	}
	if err := repo.MarkNeedsMatch(context.Background(), "missing", true); !errors.Is(err, deal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	backlog, err := repo.ListNeedsMatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListNeedsMatch failed: %v", err)
	}
	if len(backlog) != 1 || backlog[0].ID != "deal-3" {
		t.Fatalf("unexpected backlog: %+v", backlog)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}
