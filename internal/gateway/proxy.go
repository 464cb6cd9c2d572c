package gateway

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/orderhub/pkg/envelope"
	"github.com/nao1215/orderhub/pkg/middleware"
)

// handleProxy は指定されたベースURLへリクエストを転送するハンドラを返す。
func (s *Server) handleProxy(baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rel := strings.TrimPrefix(c.Param("path"), "/")
		s.doProxy(c, baseURL, rel)
	}
}

// doProxy は検証・許可済みのリクエストをアップストリームへ転送する共通処理。
// メソッド・ヘッダー・ボディ・クエリパラメータを無変更で転送し、
// 相関IDヘッダーを上書きした上で、レスポンスのステータスコードと
// Content-Typeを保ったままボディをストリームで返す。リトライは行わない。
func (s *Server) doProxy(c *gin.Context, baseURL, relPath string) {
	requestID := middleware.GetRequestID(c)

	target, err := url.JoinPath(baseURL, relPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError,
			envelope.Error(envelope.CodeInternalError, "プロキシ先URLの構築に失敗しました"))
		log.Printf("[Proxy] URL構築エラー: base=%s path=%s request_id=%s: %v", baseURL, relPath, requestID, err)
		return
	}
	if q := c.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}

	// クライアント切断時にアップストリーム呼び出しも中断されるよう、
	// インバウンドリクエストのコンテキストを引き継ぐ
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError,
			envelope.Error(envelope.CodeInternalError, "プロキシリクエストの作成に失敗しました"))
		log.Printf("[Proxy] リクエスト作成エラー: url=%s request_id=%s: %v", target, requestID, err)
		return
	}

	// 元のリクエストヘッダーをすべて転送する（Hostヘッダーは含まれない）
	req.Header = c.Request.Header.Clone()
	req.Header.Set(middleware.HeaderRequestID, requestID)
	req.ContentLength = c.Request.ContentLength

	_, end := s.tracer.StartSpan(c.Request.Context(), "gateway.proxy", map[string]any{
		"http.method": c.Request.Method,
		"http.url":    target,
		"request_id":  requestID,
	})
	resp, err := s.client.Do(req)
	end()
	if err != nil {
		c.JSON(http.StatusInternalServerError,
			envelope.Error(envelope.CodeInternalError, "内部サービスとの通信に失敗しました"))
		log.Printf("[Proxy] 転送エラー: url=%s request_id=%s: %v", target, requestID, err)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}

	// ボディは解釈・再エンコードせず、そのままストリームで返す
	c.DataFromReader(resp.StatusCode, resp.ContentLength, contentType, resp.Body, nil)
}
