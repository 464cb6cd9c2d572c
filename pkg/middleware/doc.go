// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWT認証トークンの生成・検証、相関ID（X-Request-ID）の伝播、
// クライアントアドレス単位のレート制限、パニックリカバリ、CORS設定など、
// Gatewayと各サービスで共通して使用するミドルウェアを含む。
package middleware
