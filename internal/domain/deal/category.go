package deal

import "strings"

// GeneralCategory 為無法分類時的預設分類。
const GeneralCategory = "general"

// Category 描述一個 deal 分類與其關鍵字。
type Category struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Keywords    []string `json:"keywords"`
}

// DefaultCategories 依序比對，先命中者優先（audio 需在 mobile 前，避免 headphone 命中 phone）。
var DefaultCategories = []Category{
	{Name: "electronics_computers", DisplayName: "Computers & Laptops", Keywords: []string{"laptop", "macbook", "surface", "dell", "chromebook", "desktop"}},
	{Name: "electronics_audio", DisplayName: "Audio & Headphones", Keywords: []string{"headphone", "earbuds", "speaker", "wh-1000", "airpods"}},
	{Name: "electronics_mobile", DisplayName: "Mobile Phones", Keywords: []string{"phone", "iphone", "galaxy", "pixel", "android"}},
	{Name: "electronics_camera", DisplayName: "Cameras", Keywords: []string{"camera", "lens", "canon", "nikon", "eos"}},
	{Name: "electronics_gaming", DisplayName: "Gaming", Keywords: []string{"game", "console", "nintendo", "playstation", "xbox"}},
	{Name: "electronics_tablets", DisplayName: "Tablets", Keywords: []string{"tablet", "ipad", "kindle"}},
}

// Categorize 依商品名稱關鍵字推測分類，沒有命中時回傳空字串。
func Categorize(productName string) string {
	name := strings.ToLower(productName)
	for _, c := range DefaultCategories {
		for _, kw := range c.Keywords {
			if strings.Contains(name, kw) {
				return c.Name
			}
		}
	}
	return ""
}

// ResolveCategory 決定 listing 的分類：listing 自帶 > 關鍵字 > 來源唯一分類 > general。
func ResolveCategory(listingCategory, productName string, source Source) string {
	if c := strings.TrimSpace(listingCategory); c != "" {
		return strings.ToLower(c)
	}
	if c := Categorize(productName); c != "" {
		return c
	}
	if len(source.Categories) == 1 {
		return strings.ToLower(source.Categories[0])
	}
	return GeneralCategory
}
