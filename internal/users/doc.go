// Package users はユーザーアカウントサービスの内部実装を提供する。
//
// ユーザー登録・ログイン（アクセストークン発行）・プロフィール管理を担当する。
// パスワードはbcryptでハッシュ化して保存し、ログイン成功時に
// sub/email/rolesを含むHS256署名のJWTを発行する。
package users
