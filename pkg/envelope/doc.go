// Package envelope は全サービス共通のJSONレスポンス形式を提供する。
//
// 成功レスポンスは {"success": true, "data": ...}、
// エラーレスポンスは {"success": false, "error": {"code": ..., "message": ...}}
// の形式に統一する。Gateway発のエラーも各サービスのエラーも同じ形式で返す。
package envelope
