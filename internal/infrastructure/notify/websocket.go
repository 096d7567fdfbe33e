package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/olahol/melody"

	alertDomain "deal-sniper/internal/domain/alert"
)

const userKey = "user_id"

// AlertMessage 為推送到 dashboard 的 JSON 格式。
type AlertMessage struct {
	Type            string    `json:"type"`
	AlertID         string    `json:"alertId"`
	DealID          string    `json:"dealId"`
	AlertType       string    `json:"alertType"`
	ProductName     string    `json:"productName"`
	Retailer        string    `json:"retailer"`
	ProductURL      string    `json:"productUrl,omitempty"`
	OriginalPrice   float64   `json:"originalPrice"`
	NewPrice        float64   `json:"newPrice"`
	DiscountPercent int       `json:"discountPercent"`
	DealScore       float64   `json:"dealScore"`
	Urgency         string    `json:"urgency"`
	CreatedAt       time.Time `json:"createdAt"`
}

// WebSocketNotifier 將 alert 廣播給該使用者已連線的 dashboard session。
type WebSocketNotifier struct {
	m *melody.Melody
}

// NewWebSocketNotifier 建立 melody hub。
func NewWebSocketNotifier(pingPeriod time.Duration) *WebSocketNotifier {
	m := melody.New()
	m.Config.MaxMessageSize = 4096
	if pingPeriod > 0 {
		m.Config.PingPeriod = pingPeriod
		m.Config.PongWait = pingPeriod * 2
	}
	m.HandleConnect(func(s *melody.Session) {
		uid, _ := s.Get(userKey)
		log.Printf("[Dispatcher] websocket connected user=%v", uid)
	})
	m.HandleDisconnect(func(s *melody.Session) {
		uid, _ := s.Get(userKey)
		log.Printf("[Dispatcher] websocket disconnected user=%v", uid)
	})
	m.HandleError(func(s *melody.Session, err error) {
		log.Printf("[Dispatcher] websocket error: %v", err)
	})
	return &WebSocketNotifier{m: m}
}

// HandleRequest 升級連線並綁定 userID。
func (n *WebSocketNotifier) HandleRequest(w http.ResponseWriter, r *http.Request, userID string) error {
	return n.m.HandleRequestWithKeys(w, r, map[string]any{userKey: userID})
}

// Deliver 廣播給該使用者的 session；沒有連線中的 session 不視為失敗。
func (n *WebSocketNotifier) Deliver(ctx context.Context, a alertDomain.DealAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(toMessage(a))
	if err != nil {
		return err
	}
	return n.m.BroadcastFilter(payload, func(s *melody.Session) bool {
		uid, ok := s.Get(userKey)
		return ok && uid == a.UserID
	})
}

// Sessions 目前連線數。
func (n *WebSocketNotifier) Sessions() int {
	return n.m.Len()
}

// Close 關閉所有連線。
func (n *WebSocketNotifier) Close() error {
	return n.m.Close()
}

func toMessage(a alertDomain.DealAlert) AlertMessage {
	return AlertMessage{
		Type:            "deal_alert",
		AlertID:         a.ID,
		DealID:          a.DealID,
		AlertType:       string(a.Type),
		ProductName:     a.ProductName,
		Retailer:        a.Retailer,
		ProductURL:      a.ProductURL,
		OriginalPrice:   a.OriginalPrice,
		NewPrice:        a.NewPrice,
		DiscountPercent: a.DiscountPercent,
		DealScore:       a.DealScore,
		Urgency:         string(a.Urgency),
		CreatedAt:       a.CreatedAt,
	}
}
