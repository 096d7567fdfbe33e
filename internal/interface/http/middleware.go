package httpapi

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const operatorKey = "operator"

// requireOperator 驗證 bearer JWT，僅允許 operator/admin 角色。
func (s *Server) requireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := parseBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized", ErrorCode: errCodeUnauthorized})
			return
		}

		claims, err := s.tokens.ParseAccessToken(token)
		if err != nil {
			log.Printf("[GIN] reject operator token from %s: %v", c.ClientIP(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid token", ErrorCode: errCodeUnauthorized})
			return
		}

		c.Set(operatorKey, claims.Subject)
		c.Next()
	}
}

func (s *Server) ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Printf("[GIN] %v | %3d | %13v | %-7s %s",
			start.Format("2006/01/02 - 15:04:05"),
			status,
			latency,
			c.Request.Method,
			path,
		)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

type rateWindow struct {
	count     int
	resetTime time.Time
}

// rateLimiter 以固定一分鐘窗口限制每個 IP 的請求數。
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*rateWindow
	now     func() time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		limit:   perMinute,
		window:  time.Minute,
		clients: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// allow 回傳是否放行，以及被拒絕時需等待的秒數。
func (rl *rateLimiter) allow(ip string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[ip]
	if !ok || now.After(w.resetTime) {
		// 順便清掉過期的窗口
		for k, v := range rl.clients {
			if now.After(v.resetTime) {
				delete(rl.clients, k)
			}
		}
		rl.clients[ip] = &rateWindow{count: 1, resetTime: now.Add(rl.window)}
		return true, 0
	}
	if w.count >= rl.limit {
		retry := int(w.resetTime.Sub(now).Seconds()) + 1
		return false, retry
	}
	w.count++
	return true, 0
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retry := rl.allow(c.ClientIP())
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"error":       "too many requests",
				"error_code":  errCodeRateLimited,
				"retry_after": retry,
			})
			return
		}
		c.Next()
	}
}
