package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alertDomain "deal-sniper/internal/domain/alert"
)

// AlertRepo 為 deal_alerts 存取；部分唯一索引保證每個 (subscription, deal) 最多一筆未送出。
type AlertRepo struct {
	db *sql.DB
}

// NewAlertRepo 建立 alert repository。
func NewAlertRepo(db *sql.DB) *AlertRepo {
	return &AlertRepo{db: db}
}

const alertColumns = `id, subscription_id, user_id, deal_id, product_name, retailer, product_url, category, alert_type,
original_price, new_price, discount_percent, deal_score, urgency, deliver_after, is_sent, sent_at, is_read,
attempts, last_error, needs_review, version, created_at, updated_at`

func scanAlert(row rowScanner, extra ...any) (alertDomain.DealAlert, error) {
	var (
		a         alertDomain.DealAlert
		alertType string
		urgency   string
		sentAt    sql.NullTime
	)
	dest := []any{
		&a.ID, &a.SubscriptionID, &a.UserID, &a.DealID, &a.ProductName, &a.Retailer, &a.ProductURL, &a.Category, &alertType,
		&a.OriginalPrice, &a.NewPrice, &a.DiscountPercent, &a.DealScore, &urgency, &a.DeliverAfter, &a.IsSent, &sentAt, &a.IsRead,
		&a.Attempts, &a.LastError, &a.NeedsReview, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return a, err
	}
	a.Type = alertDomain.Type(alertType)
	a.Urgency = alertDomain.Urgency(urgency)
	if sentAt.Valid {
		t := sentAt.Time
		a.SentAt = &t
	}
	return a, nil
}

// UpsertPending 已有未送出的 alert 時就地更新價格與 urgency（保留 deliver_after），否則新增。
func (r *AlertRepo) UpsertPending(ctx context.Context, a alertDomain.DealAlert) (alertDomain.DealAlert, bool, error) {
	q := `
INSERT INTO deal_alerts (subscription_id, user_id, deal_id, product_name, retailer, product_url, category, alert_type,
    original_price, new_price, discount_percent, deal_score, urgency, deliver_after)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (subscription_id, deal_id) WHERE is_sent = FALSE DO UPDATE SET
    alert_type = EXCLUDED.alert_type,
    original_price = EXCLUDED.original_price,
    new_price = EXCLUDED.new_price,
    discount_percent = EXCLUDED.discount_percent,
    deal_score = EXCLUDED.deal_score,
    urgency = EXCLUDED.urgency,
    product_url = EXCLUDED.product_url,
    category = EXCLUDED.category,
    version = deal_alerts.version + 1,
    updated_at = NOW()
RETURNING ` + alertColumns + `, (xmax = 0) AS inserted;`
	deliverAfter := a.DeliverAfter
	if deliverAfter.IsZero() {
		deliverAfter = time.Now()
	}
	var inserted bool
	stored, err := scanAlert(r.db.QueryRowContext(ctx, q,
		a.SubscriptionID, a.UserID, a.DealID, a.ProductName, a.Retailer, a.ProductURL, a.Category, string(a.Type),
		a.OriginalPrice, a.NewPrice, a.DiscountPercent, a.DealScore, string(a.Urgency), deliverAfter,
	), &inserted)
	if err != nil {
		return a, false, err
	}
	return stored, inserted, nil
}

// ListPending 依 created_at、id 回傳可送出的 alert。
func (r *AlertRepo) ListPending(ctx context.Context, now time.Time, limit int) ([]alertDomain.DealAlert, error) {
	q := `SELECT ` + alertColumns + ` FROM deal_alerts
WHERE is_sent = FALSE AND needs_review = FALSE AND deliver_after <= $1
ORDER BY created_at, id
LIMIT $2;`
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, q, now, limit)
}

// MarkSent 以 (id, version) CAS 標記送出；已送出或期間被更新時回傳 false。
func (r *AlertRepo) MarkSent(ctx context.Context, id string, version int, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE deal_alerts SET is_sent = TRUE, sent_at = $3, updated_at = NOW() WHERE id = $1 AND version = $2 AND is_sent = FALSE;`,
		id, version, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordFailure 累計失敗次數，達 maxAttempts 時標記人工檢查；已送出的 alert 視為不存在。
func (r *AlertRepo) RecordFailure(ctx context.Context, id, reason string, maxAttempts int) (alertDomain.DealAlert, error) {
	q := `
UPDATE deal_alerts
SET attempts = attempts + 1, last_error = $2, needs_review = ($3 > 0 AND attempts + 1 >= $3), updated_at = NOW()
WHERE id = $1 AND is_sent = FALSE
RETURNING ` + alertColumns + `;`
	a, err := scanAlert(r.db.QueryRowContext(ctx, q, id, reason, maxAttempts))
	if errors.Is(err, sql.ErrNoRows) {
		return a, alertDomain.ErrNotFound
	}
	return a, err
}

// ClearReview 清除人工檢查標記並重置失敗次數；已送出的 alert 視為不存在。
func (r *AlertRepo) ClearReview(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE deal_alerts
SET needs_review = FALSE, attempts = 0, updated_at = NOW()
WHERE id = $1 AND is_sent = FALSE;`, id)
	if err != nil {
		return err
	}
	return requireRow(res, alertDomain.ErrNotFound)
}

// ListByUser 依建立時間由新到舊回傳使用者的 alert。
func (r *AlertRepo) ListByUser(ctx context.Context, userID string, limit int) ([]alertDomain.DealAlert, error) {
	q := `SELECT ` + alertColumns + ` FROM deal_alerts WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2;`
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, q, userID, limit)
}

// MarkRead 標記已讀。
func (r *AlertRepo) MarkRead(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE deal_alerts SET is_read = TRUE WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	return requireRow(res, alertDomain.ErrNotFound)
}

// CountPending 未送出且未標記人工檢查的 alert 數。
func (r *AlertRepo) CountPending(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM deal_alerts WHERE is_sent = FALSE AND needs_review = FALSE;`)
}

// CountFlagged 等待人工檢查的 alert 數。
func (r *AlertRepo) CountFlagged(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM deal_alerts WHERE is_sent = FALSE AND needs_review = TRUE;`)
}

// CountSince since 之後建立的 alert 數。
func (r *AlertRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM deal_alerts WHERE created_at >= $1;`, since)
}

// CountByType 依類型統計期間內建立的 alert。
func (r *AlertRepo) CountByType(ctx context.Context, start, end time.Time) ([]alertDomain.TypeCount, error) {
	const q = `
SELECT alert_type, COUNT(*) AS n
FROM deal_alerts
WHERE created_at >= $1 AND created_at <= $2
GROUP BY alert_type
ORDER BY n DESC, alert_type;
`
	rows, err := r.db.QueryContext(ctx, q, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]alertDomain.TypeCount, 0)
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out = append(out, alertDomain.TypeCount{Type: alertDomain.Type(t), Count: n})
	}
	return out, rows.Err()
}

func (r *AlertRepo) count(ctx context.Context, q string, args ...any) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

func (r *AlertRepo) list(ctx context.Context, q string, args ...any) ([]alertDomain.DealAlert, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]alertDomain.DealAlert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
