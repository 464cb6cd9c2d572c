// Package orders は注文サービスの内部実装を提供する。
//
// 注文の作成・取得・一覧・ステータス変更・キャンセルを担当する。
// 注文は所有者本人またはadminロールを持つユーザーのみ参照・変更できる。
package orders
