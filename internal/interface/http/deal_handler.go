package httpapi

import (
	"net/http"
	"strings"

	"deal-sniper/internal/domain/deal"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleTrendingDeals(c *gin.Context) {
	list, err := s.svc.ListTrendingDeals(c.Request.Context(), queryLimit(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeData(c, http.StatusOK, toDealResponses(list))
}

func (s *Server) handleSearchDeals(c *gin.Context) {
	filter := deal.SearchFilter{
		Category:    strings.TrimSpace(c.Query("category")),
		Retailer:    strings.TrimSpace(c.Query("retailer")),
		MinDiscount: parseIntDefault(c.Query("minDiscount"), 0),
		MaxPrice:    parseFloatDefault(c.Query("maxPrice"), 0),
		SortBy:      deal.SortField(strings.ToLower(c.Query("sortBy"))),
		Limit:       queryLimit(c),
	}
	list, err := s.svc.SearchDeals(c.Request.Context(), filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeData(c, http.StatusOK, toDealResponses(list))
}

func (s *Server) handleDealsByCategory(c *gin.Context) {
	category := c.Param("category")
	if strings.TrimSpace(category) == "" {
		writeError(c, http.StatusBadRequest, errCodeBadRequest, "category is required")
		return
	}
	list, err := s.svc.ListDealsByCategory(c.Request.Context(), category, queryLimit(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeData(c, http.StatusOK, toDealResponses(list))
}

func (s *Server) handlePriceHistory(c *gin.Context) {
	obs, err := s.svc.PriceHistory(c.Request.Context(), c.Query("product"), c.Query("retailer"), queryLimit(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]priceObservationResponse, 0, len(obs))
	for _, o := range obs {
		out = append(out, priceObservationResponse{Price: o.Price, Currency: o.Currency, ObservedAt: o.ObservedAt})
	}
	writeData(c, http.StatusOK, out)
}

func (s *Server) handleCategories(c *gin.Context) {
	writeData(c, http.StatusOK, s.svc.Categories())
}
