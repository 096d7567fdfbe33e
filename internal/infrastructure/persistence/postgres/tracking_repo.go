package postgres

import (
	"context"
	"database/sql"

	alertDomain "deal-sniper/internal/domain/alert"
)

// TrackingRepo 為 price_tracking 存取。
type TrackingRepo struct {
	db *sql.DB
}

// NewTrackingRepo 建立追蹤清單 repository。
func NewTrackingRepo(db *sql.DB) *TrackingRepo {
	return &TrackingRepo{db: db}
}

const trackingColumns = `id, user_id, product_url, target_price, alert_type, is_active, created_at, updated_at`

func scanTracking(row rowScanner) (alertDomain.PriceTarget, error) {
	var (
		t      alertDomain.PriceTarget
		target sql.NullFloat64
		typ    string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.ProductURL, &target, &typ, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	t.AlertType = alertDomain.Type(typ)
	if target.Valid {
		v := target.Float64
		t.TargetPrice = &v
	}
	return t, nil
}

// Create 新增追蹤並回傳儲存後的內容。
func (r *TrackingRepo) Create(ctx context.Context, t alertDomain.PriceTarget) (alertDomain.PriceTarget, error) {
	q := `
INSERT INTO price_tracking (user_id, product_url, target_price, alert_type, is_active)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + trackingColumns + `;`
	return scanTracking(r.db.QueryRowContext(ctx, q,
		t.UserID, t.ProductURL, nullablePrice(t.TargetPrice), string(t.AlertType), t.IsActive,
	))
}

// ListActiveByUser 依建立時間由新到舊回傳使用者啟用中的追蹤。
func (r *TrackingRepo) ListActiveByUser(ctx context.Context, userID string, limit int) ([]alertDomain.PriceTarget, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + trackingColumns + ` FROM price_tracking
WHERE user_id = $1 AND is_active = TRUE
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]alertDomain.PriceTarget, 0)
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
