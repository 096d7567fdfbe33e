package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"deal-sniper/internal/infrastructure/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Connect 建立 PostgreSQL 連線池；若未設定 DSN 則回傳 nil（改用記憶體 store）。
func Connect(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	if err := waitReady(ctx, db, 5, time.Second); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// pinger 讓 waitReady 可以用假物件測試。
type pinger interface {
	PingContext(ctx context.Context) error
}

// waitReady 啟動時資料庫可能尚未就緒，最多重試 attempts 次，每次間隔加倍。
func waitReady(ctx context.Context, db pinger, attempts int, backoff time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		log.Printf("資料庫尚未就緒 (%d/%d): %v", i+1, attempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("ping database: %w", err)
}
