package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleTrackProduct(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, errCodeBadRequest, "invalid json body")
		return
	}
	t, err := s.svc.TrackProduct(c.Request.Context(), req.target())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeData(c, http.StatusCreated, toTrackingResponse(t))
}

func (s *Server) handleListTracking(c *gin.Context) {
	list, err := s.svc.ListTracking(c.Request.Context(), c.Param("userId"), queryLimit(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeData(c, http.StatusOK, toTrackedResponses(list))
}

func (s *Server) handleAnalytics(c *gin.Context) {
	start, ok := parseDateParam(c, "startDate")
	if !ok {
		return
	}
	end, ok := parseDateParam(c, "endDate")
	if !ok {
		return
	}
	a, err := s.svc.Analytics(c.Request.Context(), start, end)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeData(c, http.StatusOK, toAnalyticsResponse(a))
}

// parseDateParam 接受 RFC3339 或 2006-01-02，空值回傳零值；格式錯誤時直接回 400。
func parseDateParam(c *gin.Context, name string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		if name == "endDate" {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, true
	}
	writeError(c, http.StatusBadRequest, errCodeBadRequest, name+" must be RFC3339 or YYYY-MM-DD")
	return time.Time{}, false
}
