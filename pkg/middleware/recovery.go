package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/orderhub/pkg/envelope"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時に詳細を相関IDとともにログへ出力し、クライアントには
// 内容を含まない500のエラーエンベロープのみを返す。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[PANIC] %s %s request_id=%s: %v",
					c.Request.Method, c.Request.URL.Path, GetRequestID(c), r)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					envelope.Error(envelope.CodeInternalError, "内部サーバーエラーが発生しました"))
			}
		}()
		c.Next()
	}
}
