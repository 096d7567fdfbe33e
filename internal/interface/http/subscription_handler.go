package httpapi

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleSubscribe(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, errCodeBadRequest, "invalid json body")
		return
	}
	id, err := s.svc.Subscribe(c.Request.Context(), req.UserID, req.criteria())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeData(c, http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleUpdateSubscription(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, errCodeBadRequest, "invalid json body")
		return
	}
	sub, err := s.svc.UpdateSubscription(c.Request.Context(), c.Param("id"), req.criteria())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeData(c, http.StatusOK, toSubscriptionResponse(sub))
}

func (s *Server) handleUnsubscribe(c *gin.Context) {
	if err := s.svc.Unsubscribe(c.Request.Context(), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleListSubscriptions(c *gin.Context) {
	subs, err := s.svc.ListSubscriptions(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toSubscriptionResponse(sub))
	}
	writeData(c, http.StatusOK, out)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	alerts, err := s.svc.ListAlerts(c.Request.Context(), c.Param("userId"), queryLimit(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	writeData(c, http.StatusOK, out)
}

func (s *Server) handleMarkAlertRead(c *gin.Context) {
	if err := s.svc.MarkAlertRead(c.Request.Context(), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleLiveAlerts 將連線升級為 WebSocket，之後由 notifier 推送該使用者的 alert。
func (s *Server) handleLiveAlerts(c *gin.Context) {
	if s.live == nil {
		writeError(c, http.StatusServiceUnavailable, errCodeUnavailable, "live alerts disabled")
		return
	}
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		writeError(c, http.StatusBadRequest, errCodeBadRequest, "userId is required")
		return
	}
	if err := s.live.HandleRequest(c.Writer, c.Request, userID); err != nil {
		log.Printf("[GIN] websocket for %s closed: %v", userID, err)
	}
}
