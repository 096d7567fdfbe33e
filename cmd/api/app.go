package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	alertapp "deal-sniper/internal/application/alert"
	"deal-sniper/internal/application/deals"
	"deal-sniper/internal/application/scanner"
	"deal-sniper/internal/domain/deal"
	"deal-sniper/internal/infra/memory"
	"deal-sniper/internal/infrastructure/config"
	"deal-sniper/internal/infrastructure/notify"
	"deal-sniper/internal/infrastructure/persistence/postgres"
	"deal-sniper/internal/infrastructure/sources"
	httpapi "deal-sniper/internal/interface/http"
)

type sourceStore interface {
	scanner.SourceRepository
	deals.SourceRepository
}

type dealStore interface {
	scanner.DealRepository
	deals.DealReader
}

type priceStore interface {
	scanner.PriceHistoryRepository
	deals.PriceHistoryReader
}

type subscriptionStore interface {
	alertapp.SubscriptionRepository
	deals.SubscriptionRepository
}

type alertStore interface {
	alertapp.AlertRepository
	deals.AlertReader
}

type repositories struct {
	sources       sourceStore
	deals         dealStore
	prices        priceStore
	subscriptions subscriptionStore
	alerts        alertStore
	tracking      deals.TrackingRepository
}

func newRepositories(db *sql.DB) repositories {
	if db == nil {
		store := memory.NewStore()
		return repositories{
			sources:       store.Sources,
			deals:         store.Deals,
			prices:        store.Prices,
			subscriptions: store.Subscriptions,
			alerts:        store.Alerts,
			tracking:      store.Tracking,
		}
	}
	return repositories{
		sources:       postgres.NewSourceRepo(db),
		deals:         postgres.NewDealRepo(db),
		prices:        postgres.NewPriceRepo(db),
		subscriptions: postgres.NewSubscriptionRepo(db),
		alerts:        postgres.NewAlertRepo(db),
		tracking:      postgres.NewTrackingRepo(db),
	}
}

// app 組合掃描、比對、推送與 HTTP API。
type app struct {
	cfg         config.Config
	repos       repositories
	service     *deals.Service
	scanner     *scanner.Scanner
	pool        *scanner.MatchPool
	dispatcher  *alertapp.Dispatcher
	notifier    *notify.MultiNotifier
	live        *notify.WebSocketNotifier
	scanWorker  *scanner.BackgroundWorker
	drainWorker *alertapp.DrainWorker
	server      *httpapi.Server
}

func newApp(ctx context.Context, cfg config.Config, db *sql.DB) (*app, error) {
	cfg = config.WithDefaults(cfg)
	a := &app{cfg: cfg, repos: newRepositories(db)}

	if err := a.seedSources(ctx); err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.Scanner.FetchTimeout}
	registry := scanner.NewRegistry()
	registry.Register(deal.SourceAPI, sources.NewAPIFetcher(client))
	registry.Register(deal.SourceScraped, sources.NewScrapedFetcher(client))
	registry.Register(deal.SourceSynthetic, sources.NewSyntheticFetcher(time.Now().UnixNano()))

	generator := alertapp.NewGenerator(a.repos.subscriptions, a.repos.alerts)
	a.pool = scanner.NewMatchPool(generator, scanner.MatchPoolConfig{
		Workers:        cfg.Alerts.MatchWorkers,
		QueueSize:      cfg.Alerts.MatchQueue,
		EnqueueTimeout: cfg.Alerts.EnqueueTimeout,
		Backlog:        a.repos.deals,
	})
	a.scanner = scanner.NewScanner(a.repos.sources, a.repos.prices, a.repos.deals, registry, a.pool, scanner.Config{
		Workers:      cfg.Scanner.Workers,
		FetchTimeout: cfg.Scanner.FetchTimeout,
		TTL:          cfg.Scanner.DealTTL,
	})

	notifier, err := a.buildNotifier()
	if err != nil {
		return nil, err
	}
	a.notifier = notifier
	a.dispatcher = alertapp.NewDispatcher(a.repos.alerts, notifier, alertapp.DispatcherConfig{
		BatchSize:   cfg.Alerts.BatchSize,
		MaxAttempts: cfg.Alerts.MaxAttempts,
	})

	a.service = deals.NewService(a.repos.deals, a.repos.prices, a.repos.sources, a.repos.subscriptions, a.repos.alerts, a.repos.tracking, a.scanner)

	a.server = httpapi.NewServer(cfg, httpapi.Deps{
		Service:    a.service,
		Scanner:    a.scanner,
		Dispatcher: a.dispatcher,
		Live:       a.live,
		DB:         db,
	})

	if cfg.Scanner.Enabled {
		a.scanWorker = scanner.NewBackgroundWorker(a.scanner, cfg.Scanner.Interval)
	}
	a.drainWorker = alertapp.NewDrainWorker(a.dispatcher, cfg.Alerts.DrainInterval)
	return a, nil
}

func (a *app) buildNotifier() (*notify.MultiNotifier, error) {
	multi := notify.NewMultiNotifier()

	tg := a.cfg.Notifier.Telegram
	if tg.Enabled {
		if tg.Token == "" {
			return nil, fmt.Errorf("telegram enabled but token is empty")
		}
		bot, err := notify.NewTelegramBot(tg.Token)
		if err != nil {
			return nil, fmt.Errorf("init telegram bot: %w", err)
		}
		multi.Add("telegram", notify.NewTelegramNotifier(bot, tg.ChatID, tg.ChatIDs, tg.Prefix))
		log.Printf("[Dispatcher] telegram channel enabled")
	}

	if a.cfg.Notifier.WebSocket.Enabled {
		a.live = notify.NewWebSocketNotifier(a.cfg.Notifier.WebSocket.PingPeriod)
		multi.Add("websocket", a.live)
		log.Printf("[Dispatcher] websocket channel enabled")
	}

	if multi.Len() == 0 {
		multi.Add("log", notify.LogNotifier{})
	}
	return multi, nil
}

// seedSources 註冊設定檔中的來源；沒有任何來源時依設定建立示範用 synthetic 來源。
func (a *app) seedSources(ctx context.Context) error {
	for _, sc := range a.cfg.Sources {
		src := deal.Source{
			Name:         strings.TrimSpace(sc.Name),
			Kind:         deal.SourceKind(strings.ToLower(sc.Kind)),
			BaseURL:      sc.BaseURL,
			Endpoint:     sc.Endpoint,
			Currency:     sc.Currency,
			Active:       sc.IsActive(),
			Priority:     sc.Priority,
			Categories:   sc.Categories,
			ScanInterval: sc.ScanInterval,
			Metadata:     sc.Metadata,
		}
		if src.Currency == "" {
			src.Currency = "USD"
		}
		if err := src.Validate(); err != nil {
			return fmt.Errorf("source %q: %w", sc.Name, err)
		}
		if _, err := a.repos.sources.Register(ctx, src); err != nil {
			return fmt.Errorf("register source %q: %w", sc.Name, err)
		}
	}

	if len(a.cfg.Sources) > 0 || !a.cfg.Scanner.Synthetic {
		return nil
	}
	existing, err := a.repos.sources.List(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	for _, demo := range demoSources {
		if _, err := a.repos.sources.Register(ctx, demo); err != nil {
			return fmt.Errorf("register demo source %q: %w", demo.Name, err)
		}
	}
	log.Printf("[Scanner] no sources configured, registered %d synthetic demo sources", len(demoSources))
	return nil
}

var demoSources = []deal.Source{
	{Name: "amazon", Kind: deal.SourceSynthetic, Currency: "USD", Active: true, Priority: 10, Categories: []string{"electronics"}},
	{Name: "bestbuy", Kind: deal.SourceSynthetic, Currency: "USD", Active: true, Priority: 9, Categories: []string{"electronics"}},
	{Name: "walmart", Kind: deal.SourceSynthetic, Currency: "USD", Active: true, Priority: 8, Categories: []string{"electronics"}},
}

// start 啟動背景 worker。
func (a *app) start(ctx context.Context) {
	// 關機時 stop 仍要清空比對佇列，worker 不跟著 signal ctx 取消
	a.pool.Start(context.WithoutCancel(ctx))
	if a.scanWorker != nil {
		a.scanWorker.Start(ctx)
	}
	a.drainWorker.Start(ctx)
}

// stop 依序停止掃描、清空比對佇列、最後停止推送。
func (a *app) stop() {
	if a.scanWorker != nil {
		a.scanWorker.Stop()
	}
	a.pool.Close()
	a.drainWorker.Stop()
	if a.live != nil {
		_ = a.live.Close()
	}
}
