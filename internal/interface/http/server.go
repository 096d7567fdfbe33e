package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"deal-sniper/internal"
	"deal-sniper/internal/application/deals"
	"deal-sniper/internal/application/scanner"
	authinfra "deal-sniper/internal/infrastructure/auth"
	"deal-sniper/internal/infrastructure/config"

	"github.com/gin-gonic/gin"
)

// ScanTrigger 由營運端手動觸發一次完整掃描。
type ScanTrigger interface {
	ScanAll(ctx context.Context) (scanner.ScanReport, error)
}

// AlertRetrier 將被標記人工檢查的 alert 放回待送佇列。
type AlertRetrier interface {
	RetryFlagged(ctx context.Context, id string) error
}

// LiveFeed 將 HTTP 連線升級為使用者的即時 alert 串流。
type LiveFeed interface {
	HandleRequest(w http.ResponseWriter, r *http.Request, userID string) error
}

// Deps 為 HTTP 層的相依元件；Scanner、Dispatcher、Live、DB 可為 nil。
type Deps struct {
	Service    *deals.Service
	Scanner    ScanTrigger
	Dispatcher AlertRetrier
	Live       LiveFeed
	DB         *sql.DB
}

// Server 封裝 deal API 的 gin engine。
type Server struct {
	cfg     config.Config
	svc     *deals.Service
	scanner ScanTrigger
	retrier AlertRetrier
	live    LiveFeed
	db      *sql.DB
	tokens  *authinfra.JWTIssuer
	limiter *rateLimiter
	router  *gin.Engine
}

// NewServer 建立 HTTP server 並註冊路由。
func NewServer(cfg config.Config, deps Deps) *Server {
	cfg = config.WithDefaults(cfg)
	s := &Server{
		cfg:    cfg,
		svc:    deps.Service,
		db:     deps.DB,
		tokens: authinfra.NewJWTIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL),
	}
	// 包著 nil 指標的相依視為未啟用
	if !internal.IsNil(deps.Scanner) {
		s.scanner = deps.Scanner
	}
	if !internal.IsNil(deps.Dispatcher) {
		s.retrier = deps.Dispatcher
	}
	if !internal.IsNil(deps.Live) {
		s.live = deps.Live
	}
	if cfg.HTTP.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.HTTP.RateLimit)
	}
	s.router = s.routes()
	return s
}

// Handler 回傳可掛載到 http.Server 的 handler。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.ginLogger())
	r.Use(corsMiddleware(s.cfg.HTTP.AllowedOrigins))
	if s.limiter != nil {
		r.Use(s.limiter.middleware())
	}

	api := r.Group("/api")
	api.GET("/ping", s.handlePing)
	api.GET("/health", s.handleHealth)

	api.GET("/deals/trending", s.handleTrendingDeals)
	api.GET("/deals", s.handleSearchDeals)
	api.GET("/deals/category/:category", s.handleDealsByCategory)
	api.GET("/price-history", s.handlePriceHistory)
	api.GET("/categories", s.handleCategories)

	api.POST("/subscriptions", s.handleSubscribe)
	api.PUT("/subscriptions/:id", s.handleUpdateSubscription)
	api.DELETE("/subscriptions/:id", s.handleUnsubscribe)
	api.GET("/users/:userId/subscriptions", s.handleListSubscriptions)
	api.GET("/users/:userId/alerts", s.handleListAlerts)
	api.PUT("/alerts/:id/read", s.handleMarkAlertRead)
	api.GET("/ws/users/:userId", s.handleLiveAlerts)

	api.POST("/track", s.handleTrackProduct)
	api.GET("/tracking/:userId", s.handleListTracking)
	api.GET("/analytics", s.handleAnalytics)

	admin := api.Group("/admin", s.requireOperator())
	admin.GET("/sources", s.handleListSources)
	admin.POST("/sources", s.handleRegisterSource)
	admin.DELETE("/sources/:name", s.handleDeactivateSource)
	admin.POST("/scan", s.handleTriggerScan)
	admin.POST("/alerts/:id/retry", s.handleRetryAlert)

	return r
}
