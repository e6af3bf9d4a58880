package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/gin-blog/pkg/logger"
	"github.com/d60-Lab/gin-blog/pkg/response"
)

// Recovery 为每个请求克隆 sentry hub 放入上下文，panic 时上报并返回 500
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), hub))

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && err == http.ErrAbortHandler {
				panic(rec)
			}
			hub.RecoverWithContext(c.Request.Context(), rec)
			hub.Flush(2 * time.Second)
			logger.Error("panic recovered",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("panic", fmt.Sprint(rec)),
				zap.Stack("stack"),
			)
			if !c.Writer.Written() {
				response.Error(c, http.StatusInternalServerError, "internal server error")
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}
