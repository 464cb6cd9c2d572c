package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeUser はユーザーエンティティを表す。
	AggregateTypeUser AggregateType = "User"
	// AggregateTypeOrder は注文エンティティを表す。
	AggregateTypeOrder AggregateType = "Order"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeUserRegistered はユーザーが登録されたことを表す。
	TypeUserRegistered Type = "UserRegistered"
	// TypeOrderCreated は注文が作成されたことを表す。
	TypeOrderCreated Type = "OrderCreated"
	// TypeOrderStatusChanged は注文のステータスが変更されたことを表す。
	TypeOrderStatusChanged Type = "OrderStatusChanged"
)

// Event は状態変更を記録する不変のイベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// UserRegisteredData はUserRegisteredイベントのデータ。
type UserRegisteredData struct {
	// Email は登録されたユーザーのメールアドレス。
	Email string `json:"email"`
	// Name は登録されたユーザーの表示名。
	Name string `json:"name"`
}

// OrderCreatedData はOrderCreatedイベントのデータ。
type OrderCreatedData struct {
	// UserID は注文したユーザーのID。
	UserID string `json:"user_id"`
	// Total は注文の合計金額。
	Total float64 `json:"total"`
}

// OrderStatusChangedData はOrderStatusChangedイベントのデータ。
type OrderStatusChangedData struct {
	// UserID は注文したユーザーのID。
	UserID string `json:"user_id"`
	// Status は変更後のステータス。
	Status string `json:"status"`
}
