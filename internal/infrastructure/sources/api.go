package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"deal-sniper/internal/domain/deal"
)

// listFields 為 JSON 物件包裝時依序嘗試的清單欄位。
var listFields = []string{"listings", "deals", "items", "products", "data"}

// APIFetcher 讀取回傳 JSON 的來源：頂層陣列，或以 metadata["list_field"] 指定的物件欄位。
type APIFetcher struct {
	http httpClient
}

// NewAPIFetcher 建立 JSON 來源 fetcher，client 為 nil 時使用預設逾時。
func NewAPIFetcher(client *http.Client) *APIFetcher {
	return &APIFetcher{http: newHTTPClient(client)}
}

// Fetch 取回並解碼來源 listing。
func (f *APIFetcher) Fetch(ctx context.Context, source deal.Source) ([]deal.RawListing, error) {
	body, err := f.http.get(ctx, source, "application/json")
	if err != nil {
		return nil, err
	}
	items, err := extractItems(body, source.MetaOr("list_field", ""))
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", source.Name, err)
	}

	out := make([]deal.RawListing, 0, len(items))
	for _, item := range items {
		var raw apiListing
		if err := json.Unmarshal(item, &raw); err != nil {
			// 單筆格式錯誤只丟棄該筆，交由 normalize 記錄
			out = append(out, deal.RawListing{})
			continue
		}
		out = append(out, raw.toRaw())
	}
	return out, nil
}

func extractItems(body []byte, field string) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	fields := listFields
	if field != "" {
		fields = []string{field}
	}
	for _, name := range fields {
		if v, ok := obj[name]; ok {
			if err := json.Unmarshal(v, &list); err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			return list, nil
		}
	}
	return nil, fmt.Errorf("no listing array found")
}

// apiListing 接受數字或字串格式的價格。
type apiListing struct {
	ID            flexString `json:"id"`
	Name          string     `json:"name"`
	Title         string     `json:"title"`
	Price         flexString `json:"price"`
	OriginalPrice flexString `json:"original_price"`
	Currency      string     `json:"currency"`
	URL           string     `json:"url"`
	ImageURL      string     `json:"image_url"`
	Availability  string     `json:"availability"`
	Category      string     `json:"category"`
	DealType      string     `json:"deal_type"`
}

func (a apiListing) toRaw() deal.RawListing {
	name := a.Name
	if name == "" {
		name = a.Title
	}
	return deal.RawListing{
		ExternalID:        string(a.ID),
		Name:              name,
		PriceText:         string(a.Price),
		OriginalPriceText: string(a.OriginalPrice),
		Currency:          a.Currency,
		URL:               a.URL,
		ImageURL:          a.ImageURL,
		Availability:      a.Availability,
		Category:          a.Category,
		DealType:          a.DealType,
	}
}

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(num.String(), 64); err != nil {
		return err
	}
	*s = flexString(num.String())
	return nil
}
