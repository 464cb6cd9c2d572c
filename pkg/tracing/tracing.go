// Package tracing は任意参加のトレーシングポートを提供する。
//
// トレーシングが未設定の環境ではすべての操作がno-opとなる。
// 業務ロジックはTracerインターフェースのみに依存し、
// トレーシングの有無で挙動が変わってはならない。
package tracing

import (
	"context"
	"log"
	"time"
)

// EndFunc はスパンを終了する関数。必ず呼び出すこと。
type EndFunc func()

// Tracer は処理区間の計測を行うポート。
type Tracer interface {
	// StartSpan は名前と属性を持つスパンを開始し、終了関数を返す。
	StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, EndFunc)
}

// FromEnv は設定値に応じたトレーサを生成する。
// modeが"log"の場合はログ出力トレーサ、それ以外はno-opトレーサを返す。
func FromEnv(mode string) Tracer {
	if mode == "log" {
		return &LogTracer{}
	}
	return &NopTracer{}
}

// NopTracer は何もしないトレーサ。トレーシング未設定時のデフォルト。
type NopTracer struct{}

// StartSpan は何もせず、no-opの終了関数を返す。
func (t *NopTracer) StartSpan(ctx context.Context, _ string, _ map[string]any) (context.Context, EndFunc) {
	return ctx, func() {}
}

// LogTracer はスパンの開始・終了をログ出力するトレーサ。
// 外部コレクタを持たない開発環境向け。
type LogTracer struct{}

// StartSpan はスパン名と属性をログに記録し、経過時間を出力する終了関数を返す。
func (t *LogTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, EndFunc) {
	start := time.Now()
	return ctx, func() {
		log.Printf("[Trace] span=%s duration=%s attrs=%v", name, time.Since(start), attrs)
	}
}
