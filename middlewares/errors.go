package middlewares

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventapi/apperr"
)

// ErrorHandler writes the last error a handler attached with c.Error as
// {"status":"error","code":...,"message":...}. Handlers never write error
// bodies themselves.
func ErrorHandler(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		kind := apperr.KindOf(last.Err)
		msg := apperr.Message(last.Err)
		if last.IsType(gin.ErrorTypeBind) && kind == apperr.KindInternal {
			kind, msg = apperr.KindBadRequest, "Could not parse request data."
		}

		status := kind.Status()
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"request_id", c.GetString(CtxRequestID),
				"error", last.Err,
			)
		}
		c.JSON(status, gin.H{"status": "error", "code": kind, "message": msg})
	}
}
