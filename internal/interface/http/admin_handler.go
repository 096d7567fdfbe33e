package httpapi

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListSources(c *gin.Context) {
	sources, err := s.svc.ListSources(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]sourceResponse, 0, len(sources))
	for _, src := range sources {
		out = append(out, toSourceResponse(src))
	}
	writeData(c, http.StatusOK, out)
}

func (s *Server) handleRegisterSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, errCodeBadRequest, "invalid json body")
		return
	}
	src, err := s.svc.RegisterSource(c.Request.Context(), req.toSource())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	log.Printf("[GIN] source %s registered by %s", src.Name, c.GetString(operatorKey))
	writeData(c, http.StatusOK, toSourceResponse(src))
}

func (s *Server) handleDeactivateSource(c *gin.Context) {
	name := c.Param("name")
	if err := s.svc.DeactivateSource(c.Request.Context(), name); err != nil {
		writeServiceError(c, err)
		return
	}
	log.Printf("[GIN] source %s deactivated by %s", name, c.GetString(operatorKey))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleTriggerScan(c *gin.Context) {
	if s.scanner == nil {
		writeError(c, http.StatusServiceUnavailable, errCodeUnavailable, "scanner disabled")
		return
	}
	report, err := s.scanner.ScanAll(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeData(c, http.StatusOK, report)
}

func (s *Server) handleRetryAlert(c *gin.Context) {
	if s.retrier == nil {
		writeError(c, http.StatusServiceUnavailable, errCodeUnavailable, "dispatcher disabled")
		return
	}
	if err := s.retrier.RetryFlagged(c.Request.Context(), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
