package httpapi

import (
	"time"

	"deal-sniper/internal/application/deals"
	alertDomain "deal-sniper/internal/domain/alert"
	"deal-sniper/internal/domain/deal"
)

type dealResponse struct {
	ID              string    `json:"id"`
	ProductName     string    `json:"productName"`
	Retailer        string    `json:"retailer"`
	CurrentPrice    float64   `json:"currentPrice"`
	OriginalPrice   float64   `json:"originalPrice"`
	DiscountPercent int       `json:"discountPercent"`
	Currency        string    `json:"currency"`
	ProductURL      string    `json:"productUrl,omitempty"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	Availability    string    `json:"availability"`
	DealScore       float64   `json:"dealScore"`
	Category        string    `json:"category"`
	DealType        string    `json:"dealType"`
	IsActive        bool      `json:"isActive"`
	ExpiresAt       time.Time `json:"expiresAt"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toDealResponse(d deal.Deal) dealResponse {
	return dealResponse{
		ID:              d.ID,
		ProductName:     d.ProductName,
		Retailer:        d.Retailer,
		CurrentPrice:    d.CurrentPrice,
		OriginalPrice:   d.OriginalPrice,
		DiscountPercent: d.DiscountPercent,
		Currency:        d.Currency,
		ProductURL:      d.ProductURL,
		ImageURL:        d.ImageURL,
		Availability:    string(d.Availability),
		DealScore:       d.Score,
		Category:        d.Category,
		DealType:        string(d.DealType),
		IsActive:        d.IsActive,
		ExpiresAt:       d.ExpiresAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func toDealResponses(list []deal.Deal) []dealResponse {
	out := make([]dealResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toDealResponse(d))
	}
	return out
}

type priceObservationResponse struct {
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	ObservedAt time.Time `json:"observedAt"`
}

type subscriptionRequest struct {
	UserID             string   `json:"userId"`
	Categories         []string `json:"categories"`
	Keywords           []string `json:"keywords"`
	MaxPrice           *float64 `json:"maxPrice"`
	MinDiscount        *int     `json:"minDiscount"`
	PreferredRetailers []string `json:"preferredRetailers"`
	AlertFrequency     string   `json:"alertFrequency"`
}

func (r subscriptionRequest) criteria() alertDomain.Criteria {
	return alertDomain.Criteria{
		Categories:         r.Categories,
		Keywords:           r.Keywords,
		MaxPrice:           r.MaxPrice,
		MinDiscount:        r.MinDiscount,
		PreferredRetailers: r.PreferredRetailers,
		AlertFrequency:     alertDomain.Frequency(r.AlertFrequency),
	}
}

type subscriptionResponse struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Categories         []string  `json:"categories"`
	Keywords           []string  `json:"keywords"`
	MaxPrice           *float64  `json:"maxPrice"`
	MinDiscount        int       `json:"minDiscount"`
	PreferredRetailers []string  `json:"preferredRetailers"`
	AlertFrequency     string    `json:"alertFrequency"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toSubscriptionResponse(s alertDomain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                 s.ID,
		UserID:             s.UserID,
		Categories:         nonNil(s.Criteria.Categories),
		Keywords:           nonNil(s.Criteria.Keywords),
		MaxPrice:           s.Criteria.MaxPrice,
		MinDiscount:        s.Criteria.MinDiscountPercent(),
		PreferredRetailers: nonNil(s.Criteria.PreferredRetailers),
		AlertFrequency:     string(s.Criteria.AlertFrequency),
		IsActive:           s.IsActive,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

type alertResponse struct {
	ID              string     `json:"id"`
	SubscriptionID  string     `json:"subscriptionId"`
	DealID          string     `json:"dealId"`
	ProductName     string     `json:"productName"`
	Retailer        string     `json:"retailer"`
	ProductURL      string     `json:"productUrl,omitempty"`
	AlertType       string     `json:"alertType"`
	OriginalPrice   float64    `json:"originalPrice"`
	NewPrice        float64    `json:"newPrice"`
	DiscountPercent int        `json:"discountPercent"`
	DealScore       float64    `json:"dealScore"`
	Urgency         string     `json:"urgency"`
	IsSent          bool       `json:"isSent"`
	SentAt          *time.Time `json:"sentAt,omitempty"`
	IsRead          bool       `json:"isRead"`
	NeedsReview     bool       `json:"needsReview,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func toAlertResponse(a alertDomain.DealAlert) alertResponse {
	return alertResponse{
		ID:              a.ID,
		SubscriptionID:  a.SubscriptionID,
		DealID:          a.DealID,
		ProductName:     a.ProductName,
		Retailer:        a.Retailer,
		ProductURL:      a.ProductURL,
		AlertType:       string(a.Type),
		OriginalPrice:   a.OriginalPrice,
		NewPrice:        a.NewPrice,
		DiscountPercent: a.DiscountPercent,
		DealScore:       a.DealScore,
		Urgency:         string(a.Urgency),
		IsSent:          a.IsSent,
		SentAt:          a.SentAt,
		IsRead:          a.IsRead,
		NeedsReview:     a.NeedsReview,
		CreatedAt:       a.CreatedAt,
	}
}

type sourceRequest struct {
	Name                string            `json:"name"`
	Kind                string            `json:"kind"`
	BaseURL             string            `json:"baseUrl"`
	Endpoint            string            `json:"endpoint"`
	Currency            string            `json:"currency"`
	Active              *bool             `json:"active"`
	Priority            int               `json:"priority"`
	Categories          []string          `json:"categories"`
	ScanIntervalSeconds int               `json:"scanIntervalSeconds"`
	Metadata            map[string]string `json:"metadata"`
}

func (r sourceRequest) toSource() deal.Source {
	active := r.Active == nil || *r.Active
	return deal.Source{
		Name:         r.Name,
		Kind:         deal.SourceKind(r.Kind),
		BaseURL:      r.BaseURL,
		Endpoint:     r.Endpoint,
		Currency:     r.Currency,
		Active:       active,
		Priority:     r.Priority,
		Categories:   r.Categories,
		ScanInterval: time.Duration(r.ScanIntervalSeconds) * time.Second,
		Metadata:     r.Metadata,
	}
}

// sourceResponse 不回傳 metadata，避免洩漏 API key header。
type sourceResponse struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Kind                string     `json:"kind"`
	BaseURL             string     `json:"baseUrl,omitempty"`
	Endpoint            string     `json:"endpoint,omitempty"`
	Currency            string     `json:"currency"`
	Active              bool       `json:"active"`
	Priority            int        `json:"priority"`
	Categories          []string   `json:"categories"`
	ScanIntervalSeconds int        `json:"scanIntervalSeconds"`
	LastScannedAt       *time.Time `json:"lastScannedAt,omitempty"`
	SuccessCount        int        `json:"successCount"`
	ErrorCount          int        `json:"errorCount"`
	LastError           string     `json:"lastError,omitempty"`
}

func toSourceResponse(s deal.Source) sourceResponse {
	return sourceResponse{
		ID:                  s.ID,
		Name:                s.Name,
		Kind:                string(s.Kind),
		BaseURL:             s.BaseURL,
		Endpoint:            s.Endpoint,
		Currency:            s.Currency,
		Active:              s.Active,
		Priority:            s.Priority,
		Categories:          nonNil(s.Categories),
		ScanIntervalSeconds: int(s.ScanInterval / time.Second),
		LastScannedAt:       s.LastScannedAt,
		SuccessCount:        s.SuccessCount,
		ErrorCount:          s.ErrorCount,
		LastError:           s.LastError,
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

type trackRequest struct {
	UserID      string   `json:"userId"`
	ProductURL  string   `json:"productUrl"`
	TargetPrice *float64 `json:"targetPrice"`
	AlertType   string   `json:"alertType"`
}

func (r trackRequest) target() alertDomain.PriceTarget {
	return alertDomain.PriceTarget{
		UserID:      r.UserID,
		ProductURL:  r.ProductURL,
		TargetPrice: r.TargetPrice,
		AlertType:   alertDomain.Type(r.AlertType),
	}
}

type trackingResponse struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	ProductURL  string        `json:"productUrl"`
	TargetPrice *float64      `json:"targetPrice"`
	AlertType   string        `json:"alertType"`
	IsActive    bool          `json:"isActive"`
	CreatedAt   time.Time     `json:"createdAt"`
	Reached     bool          `json:"reached"`
	Deal        *dealResponse `json:"deal,omitempty"`
}

func toTrackingResponse(t alertDomain.PriceTarget) trackingResponse {
	return trackingResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		ProductURL:  t.ProductURL,
		TargetPrice: t.TargetPrice,
		AlertType:   string(t.AlertType),
		IsActive:    t.IsActive,
		CreatedAt:   t.CreatedAt,
	}
}

func toTrackedResponses(list []deals.TrackedProduct) []trackingResponse {
	out := make([]trackingResponse, 0, len(list))
	for _, p := range list {
		r := toTrackingResponse(p.Target)
		r.Reached = p.Reached
		if p.Deal != nil {
			d := toDealResponse(*p.Deal)
			r.Deal = &d
		}
		out = append(out, r)
	}
	return out
}

type analyticsResponse struct {
	Period struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"period"`
	DealStats     []dealStatResponse     `json:"dealStats"`
	AlertStats    []alertStatResponse    `json:"alertStats"`
	RetailerStats []retailerStatResponse `json:"retailerStats"`
	Summary       struct {
		TotalDeals  int    `json:"totalDeals"`
		TotalAlerts int    `json:"totalAlerts"`
		TopRetailer string `json:"topRetailer"`
	} `json:"summary"`
}

type dealStatResponse struct {
	Date     string `json:"date"`
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type alertStatResponse struct {
	AlertType string `json:"alertType"`
	Count     int    `json:"count"`
}

type retailerStatResponse struct {
	Retailer    string  `json:"retailer"`
	DealCount   int     `json:"dealCount"`
	AvgDiscount float64 `json:"avgDiscount"`
}

func toAnalyticsResponse(a deals.Analytics) analyticsResponse {
	var out analyticsResponse
	out.Period.Start = a.Start
	out.Period.End = a.End
	out.DealStats = make([]dealStatResponse, 0, len(a.Deals))
	for _, c := range a.Deals {
		out.DealStats = append(out.DealStats, dealStatResponse{Date: c.Date, Category: c.Category, Count: c.Count})
	}
	out.AlertStats = make([]alertStatResponse, 0, len(a.Alerts))
	for _, c := range a.Alerts {
		out.AlertStats = append(out.AlertStats, alertStatResponse{AlertType: string(c.Type), Count: c.Count})
	}
	out.RetailerStats = make([]retailerStatResponse, 0, len(a.Retailers))
	for _, r := range a.Retailers {
		out.RetailerStats = append(out.RetailerStats, retailerStatResponse{Retailer: r.Retailer, DealCount: r.DealCount, AvgDiscount: r.AvgDiscount})
	}
	out.Summary.TotalDeals = a.Summary.TotalDeals
	out.Summary.TotalAlerts = a.Summary.TotalAlerts
	out.Summary.TopRetailer = a.Summary.TopRetailer
	return out
}
