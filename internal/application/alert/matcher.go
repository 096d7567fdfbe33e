package alert

import (
	"log"
	"strings"

	alertDomain "deal-sniper/internal/domain/alert"
	"deal-sniper/internal/domain/deal"
)

// Matcher 選出符合 deal 的訂閱，不產生任何副作用。
type Matcher struct{}

// Match 逐一檢查訂閱；條件不合法的訂閱會被略過並記錄，不影響其他訂閱。
func (Matcher) Match(d deal.Deal, subs []alertDomain.Subscription) []alertDomain.Subscription {
	var out []alertDomain.Subscription
	for _, sub := range subs {
		if !sub.IsActive {
			continue
		}
		if err := sub.Validate(); err != nil {
			log.Printf("[Alerts] skipping subscription %s: %v", sub.ID, err)
			continue
		}
		if Matches(sub.Criteria, d) {
			out = append(out, sub)
		}
	}
	return out
}

// Matches 五個條件需同時成立（AND）。
func Matches(c alertDomain.Criteria, d deal.Deal) bool {
	if len(c.Categories) > 0 && !containsFold(c.Categories, d.Category) {
		return false
	}
	if c.MaxPrice != nil && d.CurrentPrice > *c.MaxPrice {
		return false
	}
	if d.DiscountPercent < c.MinDiscountPercent() {
		return false
	}
	if len(c.Keywords) > 0 {
		name := strings.ToLower(d.ProductName)
		hit := false
		for _, kw := range c.Keywords {
			if strings.Contains(name, strings.ToLower(kw)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if len(c.PreferredRetailers) > 0 && !containsFold(c.PreferredRetailers, d.Retailer) {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
