package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"deal-sniper/internal/domain/deal"
)

// 預設選擇器，可由來源 metadata 同名鍵覆寫。
var defaultSelectors = map[string]string{
	"item_selector":           "[data-listing]",
	"name_selector":           "[data-name]",
	"price_selector":          "[data-price]",
	"original_price_selector": "[data-original-price]",
	"link_selector":           "a",
	"image_selector":          "img",
	"availability_selector":   "[data-availability]",
	"category_selector":       "[data-category]",
	"deal_type_selector":      "[data-deal-type]",
}

// ScrapedFetcher 以 CSS 選擇器解析 HTML 列表頁，不包含任何零售商專屬邏輯。
type ScrapedFetcher struct {
	http httpClient
}

// NewScrapedFetcher 建立 HTML 來源 fetcher。
func NewScrapedFetcher(client *http.Client) *ScrapedFetcher {
	return &ScrapedFetcher{http: newHTTPClient(client)}
}

// Fetch 取回頁面並逐一解析 item_selector 命中的區塊。
func (f *ScrapedFetcher) Fetch(ctx context.Context, source deal.Source) ([]deal.RawListing, error) {
	body, err := f.http.get(ctx, source, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s html: %w", source.Name, err)
	}

	sel := func(key string) string { return source.MetaOr(key, defaultSelectors[key]) }

	var out []deal.RawListing
	doc.Find(sel("item_selector")).Each(func(i int, s *goquery.Selection) {
		raw := deal.RawListing{
			Name:              text(s, sel("name_selector")),
			PriceText:         text(s, sel("price_selector")),
			OriginalPriceText: text(s, sel("original_price_selector")),
			Availability:      text(s, sel("availability_selector")),
			Category:          text(s, sel("category_selector")),
			DealType:          text(s, sel("deal_type_selector")),
			Currency:          source.MetaOr("currency", ""),
		}
		if link := s.Find(sel("link_selector")).First(); link.Length() > 0 {
			raw.URL, _ = link.Attr("href")
			if raw.Name == "" {
				raw.Name = strings.TrimSpace(link.Text())
			}
		}
		if img := s.Find(sel("image_selector")).First(); img.Length() > 0 {
			raw.ImageURL = attrOr(img, "src", "data-src")
		}
		if id, ok := s.Attr("data-id"); ok {
			raw.ExternalID = id
		}
		out = append(out, raw)
	})
	return out, nil
}

// text 取第一個命中元素的文字；元素帶有 content 或 data-value 屬性時優先使用。
func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	el := s.Find(selector).First()
	if el.Length() == 0 {
		return ""
	}
	if v := attrOr(el, "content", "data-value"); v != "" {
		return v
	}
	return strings.Join(strings.Fields(el.Text()), " ")
}

func attrOr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v, ok := s.Attr(n); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
