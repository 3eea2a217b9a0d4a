package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery turns a panic into a JSON 500 carrying the request id. The stack
// goes to the request-scoped logger, so session routes log their session id.
// Install it after RedactingLogger.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			route := routeLabel(c)
			httpPanics.WithLabelValues(route).Inc()
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("route", route).
				Str("request_id", RequestIDFrom(c)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(c, "internal_error", "internal server error"))
		}()
		c.Next()
	}
}

// errorBody matches the handlers' error envelope.
func errorBody(c *gin.Context, code, msg string) gin.H {
	return gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	}
}
