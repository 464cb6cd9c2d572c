package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/orderhub/pkg/envelope"
)

// WindowLimiter は固定ウィンドウ方式のキー別レートリミッタ。
// キー（クライアントアドレス）ごとにカウンタとウィンドウ開始時刻を保持し、
// ウィンドウ経過後にカウンタをリセットする。状態はプロセス内のみで保持する。
type WindowLimiter struct {
	// mu はwindowsへの並行アクセスを保護する。
	// カウンタの加算と上限判定を不可分に行うために必要。
	mu sync.Mutex
	// limit はウィンドウあたりの許容リクエスト数。
	limit int
	// window はカウンタをリセットする周期。
	window time.Duration
	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time
	// windows はキーごとのカウンタ。
	windows map[string]*countWindow
}

// countWindow はキー1つ分のカウンタとウィンドウ開始時刻。
type countWindow struct {
	count int
	start time.Time
}

// NewWindowLimiter は新しいレートリミッタを生成する。
// limitはウィンドウあたりの許容リクエスト数、windowはリセット周期。
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]*countWindow),
	}
}

// Allow は指定キーの現在の試行を許可するかを判定する。
// 判定と加算は単一のロック区間で行い、並行バーストでも数え漏れしない。
func (l *WindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.windows[key] = &countWindow{count: 1, start: now}
		return true
	}

	w.count++
	return w.count <= l.limit
}

// Window はカウンタのリセット周期を返す。
func (l *WindowLimiter) Window() time.Duration {
	return l.window
}

// ParseRate は"200/minute"形式のレート設定文字列を解析する。
// 単位はsecond、minute、hourをサポートする。
func ParseRate(s string) (int, time.Duration, error) {
	countStr, unit, found := strings.Cut(s, "/")
	if !found {
		return 0, 0, fmt.Errorf("レート設定の形式が不正: %q", s)
	}

	count, err := strconv.Atoi(strings.TrimSpace(countStr))
	if err != nil || count <= 0 {
		return 0, 0, fmt.Errorf("レート設定の回数が不正: %q", s)
	}

	var window time.Duration
	switch strings.TrimSpace(unit) {
	case "second":
		window = time.Second
	case "minute":
		window = time.Minute
	case "hour":
		window = time.Hour
	default:
		return 0, 0, fmt.Errorf("レート設定の単位が不正: %q", s)
	}

	return count, window, nil
}

// RateLimit はクライアントアドレス単位でリクエストを制限するGinミドルウェアを返す。
// 上限を超えたリクエストは429で拒否し、後段のハンドラには到達させない。
func RateLimit(limiter *WindowLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				envelope.Error(envelope.CodeRateLimited, "リクエストが多すぎます。しばらく待ってから再試行してください"))
			return
		}
		c.Next()
	}
}
