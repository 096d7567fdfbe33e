package httpapi

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func parseIntDefault(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return n
}

func parseFloatDefault(val string, def float64) float64 {
	if val == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return def
	}
	return f
}

func queryLimit(c *gin.Context) int {
	return parseIntDefault(c.Query("limit"), 0)
}

func parseBearer(h string) string {
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
