package gateway

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/orderhub/pkg/envelope"
	"github.com/nao1215/orderhub/pkg/middleware"
	"github.com/nao1215/orderhub/pkg/tracing"
)

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// jwtSecret はJWT検証用の共有秘密鍵。
	jwtSecret string
	// serviceURLs はアップストリームサービスのベースURL。
	serviceURLs serviceURLConfig
	// usersLimiter はusersルート群のレートリミッタ。
	usersLimiter *middleware.WindowLimiter
	// ordersLimiter はordersルート群のレートリミッタ。
	// ルート群ごとに独立した予算を持つ。
	ordersLimiter *middleware.WindowLimiter
	// client はアップストリーム呼び出しに使うHTTPクライアント。
	// コネクションプールは全リクエストで共有する。
	client *http.Client
	// tracer は任意参加のトレーシングポート。未設定時はno-op。
	tracer tracing.Tracer
}

// serviceURLConfig はアップストリームサービスのURL設定。
type serviceURLConfig struct {
	Users  string
	Orders string
}

// publicUserRoutes は認証を免除する (メソッド + 相対パス) の完全一致リスト。
// プレフィックス一致ではないため、auth/login/override のようなパスは対象外。
var publicUserRoutes = map[string]struct{}{
	http.MethodPost + " auth/register": {},
	http.MethodPost + " auth/login":    {},
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(port string) (*Server, error) {
	jwtSecret := getEnvOr("JWT_SECRET", "dev-secret-key")

	urls := serviceURLConfig{
		Users:  getEnvOr("USERS_URL", "http://localhost:8001/v1"),
		Orders: getEnvOr("ORDERS_URL", "http://localhost:8002/v1"),
	}

	limit, window, err := middleware.ParseRate(getEnvOr("RATE_LIMIT", "200/minute"))
	if err != nil {
		return nil, fmt.Errorf("レート制限設定の解析に失敗: %w", err)
	}

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:        router,
		port:          port,
		jwtSecret:     jwtSecret,
		serviceURLs:   urls,
		usersLimiter:  middleware.NewWindowLimiter(limit, window),
		ordersLimiter: middleware.NewWindowLimiter(limit, window),
		client:        &http.Client{Timeout: 30 * time.Second},
		tracer:        tracing.FromEnv(os.Getenv("TRACE")),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
// 認証ポリシー → レート制限 → プロキシの順で適用される。
func (s *Server) setupRoutes() {
	// ヘルスチェック（プロキシせずGatewayが直接応答する）
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, envelope.OK(gin.H{"status": "ok"}))
	})

	users := s.router.Group("/users")
	users.Use(s.authPolicy(publicUserRoutes))
	users.Use(middleware.RateLimit(s.usersLimiter))
	users.Any("/*path", s.handleProxy(s.serviceURLs.Users))

	orders := s.router.Group("/orders")
	orders.Use(s.authPolicy(nil))
	orders.Use(middleware.RateLimit(s.ordersLimiter))
	orders.Any("/*path", s.handleProxy(s.serviceURLs.Orders))

	// 未定義のルートプレフィックスは404のエンベロープで返す
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, envelope.Error(envelope.CodeNotFound, "ルートが見つかりません"))
	})
}

// authPolicy はルート群に認証ポリシーを適用するミドルウェアを返す。
// publicに含まれる (メソッド + 相対パス) の完全一致のみ認証を免除し、
// それ以外はBearerトークンの検証を行う。
func (s *Server) authPolicy(public map[string]struct{}) gin.HandlerFunc {
	verify := middleware.JWTAuth(s.jwtSecret)
	return func(c *gin.Context) {
		rel := strings.TrimPrefix(c.Param("path"), "/")
		if _, ok := public[c.Request.Method+" "+rel]; ok {
			c.Next()
			return
		}
		verify(c)
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
