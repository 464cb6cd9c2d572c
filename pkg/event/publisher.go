package event

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/orderhub/pkg/httpclient"
)

// Publisher はイベント発行のポート。
// 発行失敗は業務処理を失敗させないため、エラーは実装側でログに記録する。
type Publisher interface {
	// Publish はイベントを発行する。
	Publish(ctx context.Context, aggregateID string, aggregateType AggregateType, eventType Type, data any)
}

// NewPublisher は環境に応じたパブリッシャを生成する。
// collectorURLが空の場合はログ出力のみのパブリッシャを返す。
func NewPublisher(collectorURL string) Publisher {
	if collectorURL == "" {
		return &LogPublisher{}
	}
	return &HTTPPublisher{client: httpclient.New(collectorURL)}
}

// build はイベントレコードを組み立てる。
func build(aggregateID string, aggregateType AggregateType, eventType Type, data any) (Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// LogPublisher はイベントをログ出力するだけのパブリッシャ。
// イベントコレクタが未設定の開発・テスト環境で使用する。
type LogPublisher struct{}

// Publish はイベントをログに記録する。
func (p *LogPublisher) Publish(_ context.Context, aggregateID string, aggregateType AggregateType, eventType Type, data any) {
	e, err := build(aggregateID, aggregateType, eventType, data)
	if err != nil {
		log.Printf("[Event] イベントデータのシリアライズに失敗: %v", err)
		return
	}
	log.Printf("[Event] type=%s aggregate=%s/%s data=%s", e.EventType, e.AggregateType, e.AggregateID, string(e.Data))
}

// HTTPPublisher はイベントコレクタへHTTPでイベントを送信するパブリッシャ。
type HTTPPublisher struct {
	// client はイベントコレクタへのHTTPクライアント。
	client *httpclient.Client
}

// Publish はイベントをイベントコレクタへ送信する。
// 送信に失敗した場合はログに記録するが、呼び出し元にはエラーを返さない。
func (p *HTTPPublisher) Publish(ctx context.Context, aggregateID string, aggregateType AggregateType, eventType Type, data any) {
	e, err := build(aggregateID, aggregateType, eventType, data)
	if err != nil {
		log.Printf("[Event] イベントデータのシリアライズに失敗: %v", err)
		return
	}
	if err := p.client.PostJSON(ctx, "/v1/events", e, nil); err != nil {
		log.Printf("[Event] イベントコレクタへの送信に失敗: %v", err)
	}
}
