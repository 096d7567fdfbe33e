package scanner

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"deal-sniper/internal/domain/deal"
)

// Normalize 將原始 listing 轉為標準格式；價格無法解析或名稱為空時回傳 *deal.ListingError。
func Normalize(raw deal.RawListing, source deal.Source) (deal.Listing, error) {
	name := strings.Join(strings.Fields(raw.Name), " ")
	if name == "" {
		return deal.Listing{}, &deal.ListingError{Name: raw.ExternalID, Reason: "empty product name"}
	}

	price, err := ParsePrice(raw.PriceText)
	if err != nil {
		return deal.Listing{}, &deal.ListingError{Name: name, Reason: err.Error()}
	}

	var original float64
	if strings.TrimSpace(raw.OriginalPriceText) != "" {
		// 原價解析失敗時視為未提供，不影響本筆 listing
		if p, err := ParsePrice(raw.OriginalPriceText); err == nil {
			original = p
		}
	}

	base := source.BaseURL
	if base == "" {
		base = source.Endpoint
	}

	return deal.Listing{
		ExternalID:    strings.TrimSpace(raw.ExternalID),
		Name:          name,
		Retailer:      source.Name,
		Price:         price,
		OriginalPrice: original,
		Currency:      resolveCurrency(raw.Currency, raw.PriceText, source.Currency),
		URL:           ResolveURL(base, raw.URL),
		ImageURL:      ResolveURL(base, raw.ImageURL),
		Availability:  deal.ParseAvailability(raw.Availability),
		Category:      deal.ResolveCategory(raw.Category, name, source),
		DealType:      deal.ParseType(raw.DealType),
	}, nil
}

// ParsePrice 解析含貨幣符號與千分位的價格字串，例如 "$1,299.99"、"R$ 1.299,99"。
func ParsePrice(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return 0, fmt.Errorf("unparsable price %q", text)
	}
	if minus := strings.Index(text, "-"); minus >= 0 && minus < strings.IndexAny(text, "0123456789") {
		return 0, fmt.Errorf("negative price %q", text)
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// 單一逗號且後面 1-2 位數視為小數點，其餘視為千分位
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("unparsable price %q: %w", text, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("non-positive price %q", text)
	}
	f, _ := d.Round(2).Float64()
	return f, nil
}

// ResolveURL 將相對路徑轉為以 base 為基準的絕對 URL。
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ref
	}
	return b.ResolveReference(r).String()
}

var currencySymbols = map[string]string{
	"R$": "BRL",
	"€":  "EUR",
	"£":  "GBP",
	"¥":  "JPY",
	"$":  "USD",
}

func resolveCurrency(raw, priceText, fallback string) string {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if len(c) == 3 && isLetters(c) {
		return c
	}
	// R$ 需先於 $ 比對
	for _, sym := range []string{"R$", "€", "£", "¥", "$"} {
		if strings.Contains(priceText, sym) {
			return currencySymbols[sym]
		}
	}
	if f := strings.ToUpper(strings.TrimSpace(fallback)); len(f) == 3 && isLetters(f) {
		return f
	}
	return "USD"
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
