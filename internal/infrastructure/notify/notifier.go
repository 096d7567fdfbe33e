package notify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"deal-sniper/internal"
	alertDomain "deal-sniper/internal/domain/alert"
)

// Notifier 與 application/alert.Notifier 相同簽章。
type Notifier interface {
	Deliver(ctx context.Context, a alertDomain.DealAlert) error
}

// LogNotifier 只寫 log，作為沒有設定任何通道時的預設。
type LogNotifier struct{}

// Deliver 記錄 alert 內容。
func (LogNotifier) Deliver(ctx context.Context, a alertDomain.DealAlert) error {
	log.Printf("[Dispatcher] alert user=%s deal=%s %s@%s %.2f→%.2f (-%d%%) urgency=%s",
		a.UserID, a.DealID, a.ProductName, a.Retailer, a.OriginalPrice, a.NewPrice, a.DiscountPercent, a.Urgency)
	return nil
}

type namedNotifier struct {
	name string
	n    Notifier
}

// MultiNotifier 依序送到每個通道，全部成功才算送達。
type MultiNotifier struct {
	channels []namedNotifier
}

// NewMultiNotifier 建立空的 fan-out。
func NewMultiNotifier() *MultiNotifier {
	return &MultiNotifier{}
}

// Add 加入一個通道，nil 通道會被忽略。
func (m *MultiNotifier) Add(name string, n Notifier) *MultiNotifier {
	if !internal.IsNil(n) {
		m.channels = append(m.channels, namedNotifier{name: name, n: n})
	}
	return m
}

// Len 已設定的通道數。
func (m *MultiNotifier) Len() int {
	return len(m.channels)
}

// Deliver 每個通道都會嘗試，錯誤以 errors.Join 合併回傳。
func (m *MultiNotifier) Deliver(ctx context.Context, a alertDomain.DealAlert) error {
	if len(m.channels) == 0 {
		return LogNotifier{}.Deliver(ctx, a)
	}
	var errs []error
	for _, ch := range m.channels {
		if err := ch.n.Deliver(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
		}
	}
	return errors.Join(errs...)
}
