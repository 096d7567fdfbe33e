package deal

import "github.com/shopspring/decimal"

// DiscoveryCount 為某天某分類新發現的 deal 數，Date 格式為 2006-01-02（UTC）。
type DiscoveryCount struct {
	Date     string
	Category string
	Count    int
}

// RetailerStat 為零售商在期間內的 deal 數與平均折扣。
type RetailerStat struct {
	Retailer    string
	DealCount   int
	AvgDiscount float64
}

// AverageDiscount 回傳四捨五入到小數兩位的平均折扣，n 為 0 時回傳 0。
func AverageDiscount(sum, n int) float64 {
	if n <= 0 {
		return 0
	}
	avg, _ := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(n))).Round(2).Float64()
	return avg
}

// RoundDiscount 將資料庫算出的平均折扣統一到小數兩位。
func RoundDiscount(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return out
}
