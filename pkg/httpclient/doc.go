// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// 各サービスが他のサービスのAPIを呼び出す際に使用する。
// イベントコレクタへのイベント送信など、サービス間の通信パターンを統一し、
// 相関ID（X-Request-ID）をホップをまたいで伝播する。
package httpclient
