package deal

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SourceKind 列舉來源類型，決定使用哪個 Fetcher。
type SourceKind string

const (
	SourceAPI       SourceKind = "api"
	SourceScraped   SourceKind = "scraped"
	SourceSynthetic SourceKind = "synthetic"
)

// Source 描述一個已設定的折扣來源（零售商端點、優先度、掃描頻率）。
type Source struct {
	ID            string
	Name          string // 同時作為 retailer 名稱
	Kind          SourceKind
	BaseURL       string
	Endpoint      string
	Currency      string
	Active        bool
	Priority      int // 越大越先掃
	Categories    []string
	ScanInterval  time.Duration
	Metadata      map[string]string
	LastScannedAt *time.Time
	SuccessCount  int
	ErrorCount    int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate 基本欄位檢查。
func (s Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Kind {
	case SourceAPI, SourceScraped:
		if s.Endpoint == "" && s.BaseURL == "" {
			return fmt.Errorf("endpoint or base_url required for %s source", s.Kind)
		}
	case SourceSynthetic:
	default:
		return fmt.Errorf("unsupported source kind: %s", s.Kind)
	}
	if s.ScanInterval < 0 {
		return fmt.Errorf("scan_interval must be >= 0")
	}
	return nil
}

// Due 判斷此來源在 now 時是否該掃描（依 ScanInterval 節流）。
func (s Source) Due(now time.Time) bool {
	if s.ScanInterval <= 0 || s.LastScannedAt == nil {
		return true
	}
	return !s.LastScannedAt.Add(s.ScanInterval).After(now)
}

// SupportsCategory 來源未宣告分類時視為全部支援。
func (s Source) SupportsCategory(category string) bool {
	if len(s.Categories) == 0 {
		return true
	}
	for _, c := range s.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// MetaOr 讀取 metadata，缺值時回傳 def。
func (s Source) MetaOr(key, def string) string {
	if v, ok := s.Metadata[key]; ok && v != "" {
		return v
	}
	return def
}

// SortByPriority 依優先度遞減排序，同分時依名稱遞增。
func SortByPriority(sources []Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Priority != sources[j].Priority {
			return sources[i].Priority > sources[j].Priority
		}
		return sources[i].Name < sources[j].Name
	})
}
