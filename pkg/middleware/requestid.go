package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID は相関IDを伝播するためのHTTPヘッダーキー。
const HeaderRequestID = "X-Request-ID"

// contextKeyRequestID はGinコンテキストに相関IDを格納するためのキー。
const contextKeyRequestID = "request_id"

// RequestID はリクエストごとに相関IDを確立するGinミドルウェアを返す。
// インバウンドリクエストがX-Request-IDを持つ場合はその値をそのまま使用し、
// 無い場合はUUIDを新規生成する。IDはハンドラ実行前にレスポンスヘッダーへ
// 設定されるため、エラーレスポンスにも必ず含まれる。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(contextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID はGinコンテキストから相関IDを取得する。
// RequestIDミドルウェアが適用されていない場合は空文字列を返す。
func GetRequestID(c *gin.Context) string {
	v, ok := c.Get(contextKeyRequestID)
	if !ok {
		return ""
	}
	if id, ok := v.(string); ok {
		return id
	}
	return ""
}
