package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound 查無訂閱或 alert。
var ErrNotFound = errors.New("not found")

// ErrInvalidSubscription 訂閱條件不合法。
var ErrInvalidSubscription = errors.New("invalid subscription")

// DefaultMinDiscount 未指定最低折扣時的預設值（百分比）。
const DefaultMinDiscount = 10

// Frequency 列舉 alert 推送頻率。
type Frequency string

const (
	FrequencyInstant Frequency = "instant"
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
)

// Criteria 為使用者的 deal 篩選條件，五個條件需同時成立。
type Criteria struct {
	Categories         []string
	Keywords           []string
	MaxPrice           *float64 // nil 代表不限
	MinDiscount        *int     // nil 代表 DefaultMinDiscount
	PreferredRetailers []string
	AlertFrequency     Frequency
}

// Subscription 定義使用者訂閱。
type Subscription struct {
	ID        string
	UserID    string
	Criteria  Criteria
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidationError 收集多個驗證失敗原因。
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("subscription validation failed: %s", strings.Join(e.Reasons, "; "))
}

// Unwrap 讓 errors.Is(err, ErrInvalidSubscription) 成立。
func (e *ValidationError) Unwrap() error {
	return ErrInvalidSubscription
}

// Discount 回傳指向 v 的指標，供組 Criteria 使用。
func Discount(v int) *int {
	return &v
}

// MinDiscountPercent 回傳實際生效的最低折扣。
func (c Criteria) MinDiscountPercent() int {
	if c.MinDiscount == nil {
		return DefaultMinDiscount
	}
	return *c.MinDiscount
}

// WithDefaults 補上預設最低折扣與頻率，並清理空白字串。
func (c Criteria) WithDefaults() Criteria {
	c.MinDiscount = Discount(c.MinDiscountPercent())
	if c.AlertFrequency == "" {
		c.AlertFrequency = FrequencyInstant
	}
	c.Categories = cleanList(c.Categories)
	c.Keywords = cleanList(c.Keywords)
	c.PreferredRetailers = cleanList(c.PreferredRetailers)
	return c
}

// Validate 檢查條件範圍。
func (c Criteria) Validate() error {
	if reasons := c.problems(); len(reasons) > 0 {
		return &ValidationError{Reasons: reasons}
	}
	return nil
}

func (c Criteria) problems() []string {
	var reasons []string
	if v := c.MinDiscountPercent(); v < 0 || v > 100 {
		reasons = append(reasons, "min_discount must be between 0 and 100")
	}
	if c.MaxPrice != nil && *c.MaxPrice <= 0 {
		reasons = append(reasons, "max_price must be > 0")
	}
	switch c.AlertFrequency {
	case FrequencyInstant, FrequencyHourly, FrequencyDaily:
	default:
		reasons = append(reasons, fmt.Sprintf("unsupported alert_frequency: %q", c.AlertFrequency))
	}
	return reasons
}

// Validate 基本欄位檢查。
func (s Subscription) Validate() error {
	var reasons []string
	if strings.TrimSpace(s.UserID) == "" {
		reasons = append(reasons, "user_id is required")
	}
	reasons = append(reasons, s.Criteria.problems()...)
	if len(reasons) > 0 {
		return &ValidationError{Reasons: reasons}
	}
	return nil
}

// NextDelivery 依推送頻率決定 alert 最早可送出的時間。
func NextDelivery(freq Frequency, now time.Time) time.Time {
	switch freq {
	case FrequencyHourly:
		return now.Truncate(time.Hour).Add(time.Hour)
	case FrequencyDaily:
		u := now.UTC()
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	default:
		return now
	}
}

func cleanList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
