package httpapi

import (
	"errors"
	"log"
	"net/http"

	"deal-sniper/internal/application/deals"
	alertDomain "deal-sniper/internal/domain/alert"
	"deal-sniper/internal/domain/deal"

	"github.com/gin-gonic/gin"
)

const (
	errCodeBadRequest   = "BAD_REQUEST"
	errCodeValidation   = "VALIDATION_FAILED"
	errCodeUnauthorized = "AUTH_UNAUTHORIZED"
	errCodeForbidden    = "AUTH_FORBIDDEN"
	errCodeNotFound     = "NOT_FOUND"
	errCodeRateLimited  = "RATE_LIMITED"
	errCodeUnavailable  = "SERVICE_UNAVAILABLE"
	errCodeInternal     = "INTERNAL_ERROR"
)

type errorResponse struct {
	Success   bool     `json:"success"`
	Error     string   `json:"error"`
	ErrorCode string   `json:"error_code"`
	Reasons   []string `json:"reasons,omitempty"`
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, errorResponse{
		Success:   false,
		Error:     msg,
		ErrorCode: code,
	})
}

func writeData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// writeServiceError 將服務層錯誤對應到 HTTP 狀態碼。
func writeServiceError(c *gin.Context, err error) {
	var verr *alertDomain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, errorResponse{
			Success:   false,
			Error:     "invalid subscription",
			ErrorCode: errCodeValidation,
			Reasons:   verr.Reasons,
		})
	case errors.Is(err, alertDomain.ErrInvalidSubscription), errors.Is(err, deals.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, errCodeValidation, err.Error())
	case errors.Is(err, deal.ErrNotFound), errors.Is(err, alertDomain.ErrNotFound):
		writeError(c, http.StatusNotFound, errCodeNotFound, "not found")
	default:
		log.Printf("[GIN] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		writeError(c, http.StatusInternalServerError, errCodeInternal, "internal error")
	}
}
