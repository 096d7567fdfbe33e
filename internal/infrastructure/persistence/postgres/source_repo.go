package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"deal-sniper/internal/domain/deal"
)

// SourceRepo 為 deal_sources 存取。
type SourceRepo struct {
	db *sql.DB
}

// NewSourceRepo 建立來源 repository。
func NewSourceRepo(db *sql.DB) *SourceRepo {
	return &SourceRepo{db: db}
}

const sourceColumns = `id, name, kind, base_url, endpoint, currency, is_active, priority, categories,
scan_interval_seconds, metadata, last_scanned_at, success_count, error_count, last_error, created_at, updated_at`

func scanSource(row rowScanner) (deal.Source, error) {
	var (
		src        deal.Source
		kind       string
		categories pq.StringArray
		interval   int64
		meta       []byte
		lastScan   sql.NullTime
	)
	if err := row.Scan(
		&src.ID, &src.Name, &kind, &src.BaseURL, &src.Endpoint, &src.Currency, &src.Active, &src.Priority, &categories,
		&interval, &meta, &lastScan, &src.SuccessCount, &src.ErrorCount, &src.LastError, &src.CreatedAt, &src.UpdatedAt,
	); err != nil {
		return src, err
	}
	src.Kind = deal.SourceKind(kind)
	src.Categories = []string(categories)
	src.ScanInterval = time.Duration(interval) * time.Second
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &src.Metadata); err != nil {
			return src, err
		}
	}
	if lastScan.Valid {
		t := lastScan.Time
		src.LastScannedAt = &t
	}
	return src, nil
}

// Register 新增或更新來源設定，已存在時保留掃描統計。
func (r *SourceRepo) Register(ctx context.Context, src deal.Source) (deal.Source, error) {
	meta, err := json.Marshal(src.Metadata)
	if err != nil {
		return src, err
	}
	if src.Metadata == nil {
		meta = []byte("{}")
	}
	categories := src.Categories
	if categories == nil {
		categories = []string{}
	}
	q := `
INSERT INTO deal_sources (name, kind, base_url, endpoint, currency, is_active, priority, categories, scan_interval_seconds, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (name) DO UPDATE SET
    kind = EXCLUDED.kind,
    base_url = EXCLUDED.base_url,
    endpoint = EXCLUDED.endpoint,
    currency = EXCLUDED.currency,
    is_active = EXCLUDED.is_active,
    priority = EXCLUDED.priority,
    categories = EXCLUDED.categories,
    scan_interval_seconds = EXCLUDED.scan_interval_seconds,
    metadata = EXCLUDED.metadata,
    updated_at = NOW()
RETURNING ` + sourceColumns + `;`
	return scanSource(r.db.QueryRowContext(ctx, q,
		src.Name, string(src.Kind), src.BaseURL, src.Endpoint, src.Currency, src.Active, src.Priority,
		pq.Array(categories), int64(src.ScanInterval/time.Second), meta,
	))
}

// Get 依名稱取得來源。
func (r *SourceRepo) Get(ctx context.Context, name string) (deal.Source, error) {
	q := `SELECT ` + sourceColumns + ` FROM deal_sources WHERE name = $1;`
	src, err := scanSource(r.db.QueryRowContext(ctx, q, name))
	if errors.Is(err, sql.ErrNoRows) {
		return deal.Source{}, deal.ErrNotFound
	}
	return src, err
}

// List 回傳全部來源，依優先度排序。
func (r *SourceRepo) List(ctx context.Context) ([]deal.Source, error) {
	return r.list(ctx, `SELECT `+sourceColumns+` FROM deal_sources ORDER BY priority DESC, name;`)
}

// ListActive 回傳啟用中的來源，依優先度排序。
func (r *SourceRepo) ListActive(ctx context.Context) ([]deal.Source, error) {
	return r.list(ctx, `SELECT `+sourceColumns+` FROM deal_sources WHERE is_active = TRUE ORDER BY priority DESC, name;`)
}

func (r *SourceRepo) list(ctx context.Context, q string) ([]deal.Source, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]deal.Source, 0)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// Deactivate 停用來源。
func (r *SourceRepo) Deactivate(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE deal_sources SET is_active = FALSE, updated_at = NOW() WHERE name = $1;`, name)
	if err != nil {
		return err
	}
	return requireRow(res, deal.ErrNotFound)
}

// RecordScan 更新掃描時間與成功/失敗計數。
func (r *SourceRepo) RecordScan(ctx context.Context, name string, at time.Time, scanErr error) error {
	var (
		res sql.Result
		err error
	)
	if scanErr != nil {
		res, err = r.db.ExecContext(ctx, `
UPDATE deal_sources
SET last_scanned_at = $2, error_count = error_count + 1, last_error = $3, updated_at = NOW()
WHERE name = $1;`, name, at, scanErr.Error())
	} else {
		res, err = r.db.ExecContext(ctx, `
UPDATE deal_sources
SET last_scanned_at = $2, success_count = success_count + 1, updated_at = NOW()
WHERE name = $1;`, name, at)
	}
	if err != nil {
		return err
	}
	return requireRow(res, deal.ErrNotFound)
}

// CountActive 啟用中的來源數。
func (r *SourceRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deal_sources WHERE is_active = TRUE;`).Scan(&n)
	return n, err
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
