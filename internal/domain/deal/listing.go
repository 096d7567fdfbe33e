package deal

import (
	"fmt"
	"strings"
)

// RawListing 為 Fetcher 取回、尚未正規化的原始商品資料。
type RawListing struct {
	ExternalID        string `json:"id"`
	Name              string `json:"name"`
	PriceText         string `json:"price"`
	OriginalPriceText string `json:"original_price"`
	Currency          string `json:"currency"`
	URL               string `json:"url"`
	ImageURL          string `json:"image_url"`
	Availability      string `json:"availability"`
	Category          string `json:"category"`
	DealType          string `json:"deal_type"`
}

// Listing 為正規化後的商品資料。
type Listing struct {
	ExternalID    string
	Name          string
	Retailer      string
	Price         float64
	OriginalPrice float64 // 0 代表來源未提供
	Currency      string
	URL           string
	ImageURL      string
	Availability  Availability
	Category      string
	DealType      Type
}

// Key 回傳對應的 inventory 鍵。
func (l Listing) Key() Key {
	return Key{ProductName: l.Name, Retailer: l.Retailer}
}

// ReportedDiscount 來源是否明確回報折扣（原價高於現價）。
func (l Listing) ReportedDiscount() bool {
	return l.OriginalPrice > l.Price
}

// ListingError 描述單筆 listing 無法正規化的原因。
type ListingError struct {
	Name   string
	Reason string
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("malformed listing %q: %s", e.Name, e.Reason)
}

// ParseAvailability 將來源字串對應到 Availability，未知值視為 in_stock。
func ParseAvailability(raw string) Availability {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	switch v {
	case "out_of_stock", "outofstock", "sold_out", "soldout", "unavailable":
		return OutOfStock
	case "limited", "limited_stock", "low_stock", "few_left":
		return Limited
	default:
		return InStock
	}
}
