package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	alertDomain "deal-sniper/internal/domain/alert"
)

// SubscriptionRepo 為 user_subscriptions 存取。
type SubscriptionRepo struct {
	db *sql.DB
}

// NewSubscriptionRepo 建立訂閱 repository。
func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

const subscriptionColumns = `id, user_id, categories, keywords, max_price, min_discount, preferred_retailers,
alert_frequency, is_active, created_at, updated_at`

func scanSubscription(row rowScanner) (alertDomain.Subscription, error) {
	var (
		sub                            alertDomain.Subscription
		categories, keywords, retailer pq.StringArray
		maxPrice                       sql.NullFloat64
		minDiscount                    int
		freq                           string
	)
	if err := row.Scan(
		&sub.ID, &sub.UserID, &categories, &keywords, &maxPrice, &minDiscount, &retailer,
		&freq, &sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return sub, err
	}
	sub.Criteria.Categories = []string(categories)
	sub.Criteria.Keywords = []string(keywords)
	sub.Criteria.PreferredRetailers = []string(retailer)
	sub.Criteria.MinDiscount = alertDomain.Discount(minDiscount)
	sub.Criteria.AlertFrequency = alertDomain.Frequency(freq)
	if maxPrice.Valid {
		v := maxPrice.Float64
		sub.Criteria.MaxPrice = &v
	}
	return sub, nil
}

func nullablePrice(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func textArray(list []string) any {
	if list == nil {
		list = []string{}
	}
	return pq.Array(list)
}

// Create 新增訂閱並回傳 id。
func (r *SubscriptionRepo) Create(ctx context.Context, sub alertDomain.Subscription) (string, error) {
	const q = `
INSERT INTO user_subscriptions (user_id, categories, keywords, max_price, min_discount, preferred_retailers, alert_frequency, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id;
`
	c := sub.Criteria
	var id string
	err := r.db.QueryRowContext(ctx, q,
		sub.UserID, textArray(c.Categories), textArray(c.Keywords), nullablePrice(c.MaxPrice), c.MinDiscountPercent(),
		textArray(c.PreferredRetailers), string(c.AlertFrequency), sub.IsActive,
	).Scan(&id)
	return id, err
}

// Get 依 id 取得訂閱。
func (r *SubscriptionRepo) Get(ctx context.Context, id string) (alertDomain.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE id = $1;`
	sub, err := scanSubscription(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return alertDomain.Subscription{}, alertDomain.ErrNotFound
	}
	return sub, err
}

// Update 覆寫訂閱條件與狀態，user_id 不可變。
func (r *SubscriptionRepo) Update(ctx context.Context, sub alertDomain.Subscription) error {
	const q = `
UPDATE user_subscriptions
SET categories = $2, keywords = $3, max_price = $4, min_discount = $5, preferred_retailers = $6,
    alert_frequency = $7, is_active = $8, updated_at = NOW()
WHERE id = $1;
`
	c := sub.Criteria
	res, err := r.db.ExecContext(ctx, q,
		sub.ID, textArray(c.Categories), textArray(c.Keywords), nullablePrice(c.MaxPrice), c.MinDiscountPercent(),
		textArray(c.PreferredRetailers), string(c.AlertFrequency), sub.IsActive,
	)
	if err != nil {
		return err
	}
	return requireRow(res, alertDomain.ErrNotFound)
}

// Deactivate 停用訂閱。
func (r *SubscriptionRepo) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE user_subscriptions SET is_active = FALSE, updated_at = NOW() WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	return requireRow(res, alertDomain.ErrNotFound)
}

// ListActive 回傳所有啟用中的訂閱。
func (r *SubscriptionRepo) ListActive(ctx context.Context) ([]alertDomain.Subscription, error) {
	return r.list(ctx, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE is_active = TRUE ORDER BY created_at, id;`)
}

// ListByUser 回傳使用者的所有訂閱。
func (r *SubscriptionRepo) ListByUser(ctx context.Context, userID string) ([]alertDomain.Subscription, error) {
	return r.list(ctx, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE user_id = $1 ORDER BY created_at, id;`, userID)
}

// CountActive 啟用中的訂閱數。
func (r *SubscriptionRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_subscriptions WHERE is_active = TRUE;`).Scan(&n)
	return n, err
}

func (r *SubscriptionRepo) list(ctx context.Context, q string, args ...any) ([]alertDomain.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]alertDomain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
