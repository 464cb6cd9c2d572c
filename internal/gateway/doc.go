// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// クライアント接続の終端、認証ポリシーの適用、レート制限、
// 相関IDの伝播、アップストリームへのリクエスト転送を担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として
// 機能する。Gateway自身は永続状態を持たない。
package gateway
