package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger はアクセスログを出力するGinミドルウェアを返す。
// gin.Logger()の代わりに使用し、すべてのログ行に相関IDを含める。
// RequestIDミドルウェアの後に適用すること。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Printf("[Request] %s %s status=%d duration=%s client=%s request_id=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start), c.ClientIP(), GetRequestID(c))
	}
}
