package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-translingo-backend/internal/http/middleware"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"session not found"`
}

// Fail aborts with an ErrorResponse. 5xx responses are also logged.
func Fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

func fail(c *gin.Context, status int, code, msg string) { Fail(c, status, code, msg) }

// failErr reports err with the status its sentinel maps to; anything
// unrecognized is a 500 with the fallback code.
func failErr(c *gin.Context, err error, fallback string) {
	status, code := classify(err, fallback)
	fail(c, status, code, err.Error())
}

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
