package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"deal-sniper/internal/domain/deal"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// PriceRepo 為 price_history 的 append-only 存取。
type PriceRepo struct {
	db *sql.DB
}

// NewPriceRepo 建立價格歷史 repository。
func NewPriceRepo(db *sql.DB) *PriceRepo {
	return &PriceRepo{db: db}
}

// RecordObservation 寫入觀測；時間不晚於同 key 最新一筆時改以最新時間 +1µs 寫入。
func (r *PriceRepo) RecordObservation(ctx context.Context, o deal.PriceObservation) (deal.PriceObservation, error) {
	const q = `
INSERT INTO price_history (product_name, retailer, price, currency, observed_at)
SELECT $1, $2, $3, $4, GREATEST($5::timestamptz, COALESCE(
    (SELECT MAX(observed_at) + INTERVAL '1 microsecond' FROM price_history WHERE product_name = $1 AND retailer = $2),
    $5::timestamptz))
RETURNING id, observed_at;
`
	o.Currency = strings.ToUpper(o.Currency)
	if err := r.db.QueryRowContext(ctx, q, o.ProductName, o.Retailer, o.Price, o.Currency, o.ObservedAt).Scan(&o.ID, &o.ObservedAt); err != nil {
		return o, err
	}
	return o, nil
}

// LatestObservation 取得同 key 最新一筆觀測。
func (r *PriceRepo) LatestObservation(ctx context.Context, key deal.Key) (deal.PriceObservation, error) {
	const q = `
SELECT id, product_name, retailer, price, currency, observed_at
FROM price_history
WHERE product_name = $1 AND retailer = $2
ORDER BY observed_at DESC
LIMIT 1;
`
	var o deal.PriceObservation
	err := r.db.QueryRowContext(ctx, q, key.ProductName, key.Retailer).
		Scan(&o.ID, &o.ProductName, &o.Retailer, &o.Price, &o.Currency, &o.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return o, deal.ErrNotFound
	}
	return o, err
}

// History 依時間由新到舊回傳最多 limit 筆觀測。
func (r *PriceRepo) History(ctx context.Context, key deal.Key, limit int) ([]deal.PriceObservation, error) {
	const q = `
SELECT id, product_name, retailer, price, currency, observed_at
FROM price_history
WHERE product_name = $1 AND retailer = $2
ORDER BY observed_at DESC
LIMIT $3;
`
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, q, key.ProductName, key.Retailer, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]deal.PriceObservation, 0)
	for rows.Next() {
		var o deal.PriceObservation
		if err := rows.Scan(&o.ID, &o.ProductName, &o.Retailer, &o.Price, &o.Currency, &o.ObservedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DealRepo 為 deal_inventory 存取，Upsert 以交易 + SELECT FOR UPDATE 保證單一 key 原子化。
type DealRepo struct {
	db *sql.DB
}

// NewDealRepo 建立 deal repository。
func NewDealRepo(db *sql.DB) *DealRepo {
	return &DealRepo{db: db}
}

const dealColumns = `id, product_name, retailer, current_price, original_price, discount_percent, currency,
product_url, image_url, availability, deal_score, category, deal_type, is_active, expires_at, last_seen_at,
created_at, updated_at`

func scanDeal(row rowScanner) (deal.Deal, error) {
	var d deal.Deal
	var availability, dealType string
	err := row.Scan(
		&d.ID, &d.ProductName, &d.Retailer, &d.CurrentPrice, &d.OriginalPrice, &d.DiscountPercent, &d.Currency,
		&d.ProductURL, &d.ImageURL, &availability, &d.Score, &d.Category, &dealType, &d.IsActive, &d.ExpiresAt, &d.LastSeenAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	d.Availability = deal.Availability(availability)
	d.DealType = deal.Type(dealType)
	return d, err
}

func (r *DealRepo) queryDeals(ctx context.Context, q string, args ...any) ([]deal.Deal, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]deal.Deal, 0)
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Get 依 (productName, retailer) 取得 deal（含已失效）。
func (r *DealRepo) Get(ctx context.Context, key deal.Key) (deal.Deal, error) {
	q := `SELECT ` + dealColumns + ` FROM deal_inventory WHERE product_name = $1 AND retailer = $2;`
	d, err := scanDeal(r.db.QueryRowContext(ctx, q, key.ProductName, key.Retailer))
	if errors.Is(err, sql.ErrNoRows) {
		return deal.Deal{}, deal.ErrNotFound
	}
	return d, err
}

// Upsert 寫入 deal；changed 僅在新建或價格與既有值不同時為 true。
func (r *DealRepo) Upsert(ctx context.Context, d deal.Deal) (deal.Deal, bool, error) {
	if d.DiscountPercent < 0 {
		d.DiscountPercent = 0
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return d, false, err
	}
	defer tx.Rollback()

	var (
		id        string
		prevPrice float64
		createdAt time.Time
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, current_price, created_at FROM deal_inventory WHERE product_name = $1 AND retailer = $2 FOR UPDATE;`,
		d.ProductName, d.Retailer,
	).Scan(&id, &prevPrice, &createdAt)

	var changed bool
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now()
		}
		const insert = `
INSERT INTO deal_inventory (product_name, retailer, current_price, original_price, discount_percent, currency,
    product_url, image_url, availability, deal_score, category, deal_type, is_active, expires_at, last_seen_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING id, updated_at;
`
		if err := tx.QueryRowContext(ctx, insert,
			d.ProductName, d.Retailer, d.CurrentPrice, d.OriginalPrice, d.DiscountPercent, d.Currency,
			d.ProductURL, d.ImageURL, string(d.Availability), d.Score, d.Category, string(d.DealType), d.IsActive,
			d.ExpiresAt, d.LastSeenAt, d.CreatedAt,
		).Scan(&d.ID, &d.UpdatedAt); err != nil {
			return d, false, fmt.Errorf("insert deal: %w", err)
		}
		changed = true
	case err != nil:
		return d, false, fmt.Errorf("lock deal: %w", err)
	default:
		d.ID = id
		if d.CreatedAt.IsZero() {
			d.CreatedAt = createdAt
		}
		changed = !sameCents(prevPrice, d.CurrentPrice)
		// 價格變動時，新事件取代尚未比對的舊事件
		const update = `
UPDATE deal_inventory
SET current_price = $2, original_price = $3, discount_percent = $4, currency = $5, product_url = $6, image_url = $7,
    availability = $8, deal_score = $9, category = $10, deal_type = $11, is_active = $12, expires_at = $13,
    last_seen_at = $14, created_at = $15, needs_match = needs_match AND NOT $16, updated_at = NOW()
WHERE id = $1
RETURNING updated_at;
`
		if err := tx.QueryRowContext(ctx, update,
			d.ID, d.CurrentPrice, d.OriginalPrice, d.DiscountPercent, d.Currency, d.ProductURL, d.ImageURL,
			string(d.Availability), d.Score, d.Category, string(d.DealType), d.IsActive, d.ExpiresAt,
			d.LastSeenAt, d.CreatedAt, changed,
		).Scan(&d.UpdatedAt); err != nil {
			return d, false, fmt.Errorf("update deal: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return d, false, err
	}
	return d, changed, nil
}

// MarkNeedsMatch 設定或清除「等待重新比對」標記。
func (r *DealRepo) MarkNeedsMatch(ctx context.Context, id string, needs bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE deal_inventory SET needs_match = $2 WHERE id = $1;`, id, needs)
	if err != nil {
		return err
	}
	return requireRow(res, deal.ErrNotFound)
}

// ListNeedsMatch 回傳等待重新比對的 active deal，依更新時間排序。
func (r *DealRepo) ListNeedsMatch(ctx context.Context, limit int) ([]deal.Deal, error) {
	if limit <= 0 {
		limit = 500
	}
	q := `SELECT ` + dealColumns + ` FROM deal_inventory
WHERE needs_match = TRUE AND is_active = TRUE
ORDER BY updated_at, id
LIMIT $1;`
	return r.queryDeals(ctx, q, limit)
}

func sameCents(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}

// ExpireOlderThan 停用已過期或超過 ttl 未刷新的 deal。
func (r *DealRepo) ExpireOlderThan(ctx context.Context, ttl time.Duration, now time.Time) (int, error) {
	const q = `
UPDATE deal_inventory
SET is_active = FALSE, updated_at = NOW()
WHERE is_active = TRUE AND (expires_at <= $1 OR last_seen_at < $2);
`
	res, err := r.db.ExecContext(ctx, q, now, now.Add(-ttl))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListTrending 回傳 since 之後建立的 active deal，依分數、折扣遞減。
func (r *DealRepo) ListTrending(ctx context.Context, since time.Time, limit int) ([]deal.Deal, error) {
	q := `SELECT ` + dealColumns + ` FROM deal_inventory
WHERE is_active = TRUE AND created_at >= $1
ORDER BY deal_score DESC, discount_percent DESC, id
LIMIT $2;`
	return r.queryDeals(ctx, q, since, limit)
}

// ListByCategory 回傳分類下的 active deal，依分數遞減。
func (r *DealRepo) ListByCategory(ctx context.Context, category string, limit int) ([]deal.Deal, error) {
	q := `SELECT ` + dealColumns + ` FROM deal_inventory
WHERE is_active = TRUE AND LOWER(category) = LOWER($1)
ORDER BY deal_score DESC, discount_percent DESC, id
LIMIT $2;`
	return r.queryDeals(ctx, q, category, limit)
}

var searchOrder = map[deal.SortField]string{
	deal.SortScore:    "deal_score DESC, discount_percent DESC, id",
	deal.SortDiscount: "discount_percent DESC, deal_score DESC, id",
	deal.SortPrice:    "current_price ASC, deal_score DESC, id",
	deal.SortRecent:   "created_at DESC, deal_score DESC, id",
}

// Search 依條件組出查詢。
func (r *DealRepo) Search(ctx context.Context, f deal.SearchFilter) ([]deal.Deal, error) {
	f = f.Normalize()
	where := []string{"is_active = TRUE"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Category != "" {
		add("LOWER(category) = LOWER($%d)", f.Category)
	}
	if f.Retailer != "" {
		add("LOWER(retailer) = LOWER($%d)", f.Retailer)
	}
	if f.MinDiscount > 0 {
		add("discount_percent >= $%d", f.MinDiscount)
	}
	if f.MaxPrice > 0 {
		add("current_price <= $%d", f.MaxPrice)
	}
	args = append(args, f.Limit)
	q := fmt.Sprintf(`SELECT %s FROM deal_inventory WHERE %s ORDER BY %s LIMIT $%d;`,
		dealColumns, strings.Join(where, " AND "), searchOrder[f.SortBy], len(args))
	return r.queryDeals(ctx, q, args...)
}

// CountActive active deal 數量。
func (r *DealRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deal_inventory WHERE is_active = TRUE;`).Scan(&n)
	return n, err
}

// FindByURL 依商品頁網址取得最近更新的 deal。
func (r *DealRepo) FindByURL(ctx context.Context, productURL string) (deal.Deal, error) {
	q := `SELECT ` + dealColumns + ` FROM deal_inventory WHERE product_url = $1 ORDER BY updated_at DESC, id LIMIT 1;`
	d, err := scanDeal(r.db.QueryRowContext(ctx, q, productURL))
	if errors.Is(err, sql.ErrNoRows) {
		return deal.Deal{}, deal.ErrNotFound
	}
	return d, err
}

// DiscoveryStats 依建立日期（UTC）與分類統計期間內新建的 deal。
func (r *DealRepo) DiscoveryStats(ctx context.Context, start, end time.Time) ([]deal.DiscoveryCount, error) {
	const q = `
SELECT TO_CHAR(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, category, COUNT(*)
FROM deal_inventory
WHERE created_at >= $1 AND created_at <= $2
GROUP BY day, category
ORDER BY day, category;
`
	rows, err := r.db.QueryContext(ctx, q, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]deal.DiscoveryCount, 0)
	for rows.Next() {
		var c deal.DiscoveryCount
		if err := rows.Scan(&c.Date, &c.Category, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RetailerStats 依 deal 數遞減回傳期間內各零售商的統計。
func (r *DealRepo) RetailerStats(ctx context.Context, start, end time.Time, limit int) ([]deal.RetailerStat, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT retailer, COUNT(*) AS deal_count, AVG(discount_percent)::FLOAT8
FROM deal_inventory
WHERE created_at >= $1 AND created_at <= $2
GROUP BY retailer
ORDER BY deal_count DESC, retailer
LIMIT $3;
`
	rows, err := r.db.QueryContext(ctx, q, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]deal.RetailerStat, 0)
	for rows.Next() {
		var s deal.RetailerStat
		if err := rows.Scan(&s.Retailer, &s.DealCount, &s.AvgDiscount); err != nil {
			return nil, err
		}
		s.AvgDiscount = deal.RoundDiscount(s.AvgDiscount)
		out = append(out, s)
	}
	return out, rows.Err()
}
