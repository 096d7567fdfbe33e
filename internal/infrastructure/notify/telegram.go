package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	alertDomain "deal-sniper/internal/domain/alert"
)

// TelegramSender 為 tgbotapi.BotAPI 的最小介面，方便測試替換。
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewTelegramBot 以 token 建立 bot 並驗證。
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token missing")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	return bot, nil
}

// TelegramNotifier 將 alert 推送到 Telegram chat；使用者沒有專屬 chat 時送到預設 chat。
type TelegramNotifier struct {
	sender        TelegramSender
	defaultChatID int64
	chatIDs       map[string]int64
	prefix        string
}

// NewTelegramNotifier chatIDs 為 user_id → chat_id 對照，可為 nil。
func NewTelegramNotifier(sender TelegramSender, defaultChatID int64, chatIDs map[string]int64, prefix string) *TelegramNotifier {
	return &TelegramNotifier{
		sender:        sender,
		defaultChatID: defaultChatID,
		chatIDs:       chatIDs,
		prefix:        prefix,
	}
}

// Deliver 送出單一 alert。
func (n *TelegramNotifier) Deliver(ctx context.Context, a alertDomain.DealAlert) error {
	if n == nil || n.sender == nil {
		return fmt.Errorf("telegram notifier is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, ok := n.chatIDs[a.UserID]
	if !ok {
		chatID = n.defaultChatID
	}
	if chatID == 0 {
		return fmt.Errorf("telegram chat_id missing for user %s", a.UserID)
	}

	msg := tgbotapi.NewMessage(chatID, n.format(a))
	msg.DisableWebPagePreview = a.ProductURL == ""
	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (n *TelegramNotifier) format(a alertDomain.DealAlert) string {
	var b strings.Builder
	if n.prefix != "" {
		fmt.Fprintf(&b, "[%s] ", n.prefix)
	}
	fmt.Fprintf(&b, "%s %s\n", urgencyIcon(a.Urgency), headline(a.Type))
	fmt.Fprintf(&b, "%s @ %s\n", a.ProductName, a.Retailer)
	fmt.Fprintf(&b, "%.2f → %.2f (-%d%%)\n", a.OriginalPrice, a.NewPrice, a.DiscountPercent)
	fmt.Fprintf(&b, "score %.0f · %s", a.DealScore, a.Urgency)
	if a.ProductURL != "" {
		fmt.Fprintf(&b, "\n%s", a.ProductURL)
	}
	return b.String()
}

func headline(t alertDomain.Type) string {
	switch t {
	case alertDomain.TypeFlashSale:
		return "Flash sale"
	case alertDomain.TypeCoupon:
		return "Coupon deal"
	case alertDomain.TypeRestock:
		return "Back in stock"
	default:
		return "Price drop"
	}
}

func urgencyIcon(u alertDomain.Urgency) string {
	switch u {
	case alertDomain.UrgencyCritical:
		return "🚨"
	case alertDomain.UrgencyHigh:
		return "🔥"
	case alertDomain.UrgencyMedium:
		return "📉"
	default:
		return "🔔"
	}
}
