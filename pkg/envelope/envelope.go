package envelope

import "github.com/gin-gonic/gin"

// エラーコード。クライアントが機械的に判別するための安定した識別子。
const (
	// CodeInternalError はサーバー内部の予期しないエラーを表す。
	CodeInternalError = "internal_error"
	// CodeUnauthenticated は認証情報の欠落・不正・期限切れを表す。
	CodeUnauthenticated = "unauthenticated"
	// CodeRateLimited はレート制限の超過を表す。
	CodeRateLimited = "rate_limited"
	// CodeNotFound は対象リソースまたはルートが存在しないことを表す。
	CodeNotFound = "not_found"
	// CodeForbidden は認証済みだがアクセス権が無いことを表す。
	CodeForbidden = "forbidden"
	// CodeInvalidRequest はリクエスト内容の検証エラーを表す。
	CodeInvalidRequest = "invalid_request"
)

// OK は成功レスポンスのJSONボディを生成する。
func OK(data any) gin.H {
	return gin.H{"success": true, "data": data}
}

// Error はエラーレスポンスのJSONボディを生成する。
// messageはクライアントに見せてよい説明文のみを渡すこと。
func Error(code, message string) gin.H {
	return gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": message},
	}
}
