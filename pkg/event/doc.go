// Package event はドメインイベントの型定義とパブリッシャを提供する。
//
// usersサービスとordersサービスが状態変更時にイベントを発行する。
// パブリッシャは差し替え可能なポートであり、イベントコレクタのURLが
// 設定されていない環境ではログ出力のみのスタブとして動作する。
package event
