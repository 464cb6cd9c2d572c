package orders

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	ordersdb "github.com/nao1215/orderhub/internal/orders/db"
	"github.com/nao1215/orderhub/pkg/envelope"
	"github.com/nao1215/orderhub/pkg/event"
	"github.com/nao1215/orderhub/pkg/httpclient"
	"github.com/nao1215/orderhub/pkg/middleware"
	"github.com/nao1215/orderhub/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// 注文ステータスの定義。
const (
	// StatusCreated は注文が作成された直後の状態。
	StatusCreated = "created"
	// StatusInWork は注文が処理中の状態。
	StatusInWork = "in_work"
	// StatusCompleted は注文が完了した状態。
	StatusCompleted = "completed"
	// StatusCancelled は注文がキャンセルされた状態。
	StatusCancelled = "cancelled"
)

// validStatuses はステータス変更で受け付ける値の一覧。
var validStatuses = map[string]struct{}{
	StatusCreated:   {},
	StatusInWork:    {},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Server は注文サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *ordersdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// jwtSecret はJWT検証用の共有秘密鍵。
	jwtSecret string
	// publisher はドメインイベントのパブリッシャ。
	publisher event.Publisher
}

// NewServer は新しい注文サーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションの適用を行う。
func NewServer(port string) (*Server, error) {
	dsn := getEnvOr("ORDERS_DB", "/data/orders.db?_journal_mode=WAL&_busy_timeout=5000")
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := migration.Run(sqlDB, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())

	s := &Server{
		router:    router,
		port:      port,
		queries:   ordersdb.New(sqlDB),
		db:        sqlDB,
		jwtSecret: getEnvOr("JWT_SECRET", "dev-secret-key"),
		publisher: event.NewPublisher(os.Getenv("EVENT_COLLECTOR_URL")),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/v1")
	v1.Use(middleware.JWTAuth(s.jwtSecret))
	{
		orders := v1.Group("/orders")
		{
			// 注文作成
			orders.POST("", s.handleCreate())
			// 自分の注文一覧取得
			orders.GET("", s.handleList())
			// 注文詳細取得
			orders.GET("/:id", s.handleGetByID())
			// 注文ステータス変更
			orders.PATCH("/:id/status", s.handleUpdateStatus())
			// 注文キャンセル
			orders.DELETE("/:id", s.handleCancel())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, envelope.OK(gin.H{"status": "ok", "service": "orders"}))
	})
}

// createOrderRequest は注文作成リクエストのJSON構造。
type createOrderRequest struct {
	// Items は注文する商品の一覧（例: [{"product_id": "...", "quantity": 2}]）。
	Items []map[string]any `json:"items" binding:"required"`
	// Total は注文の合計金額。
	Total float64 `json:"total"`
}

// updateStatusRequest はステータス変更リクエストのJSON構造。
type updateStatusRequest struct {
	// Status は変更後のステータス。
	Status string `json:"status" binding:"required"`
}

// toOrderItem はDB行をJSONレスポンス用の構造に変換する。
// itemsは保存時のJSONをそのまま埋め込み、再エンコードによる揺れを避ける。
func toOrderItem(o ordersdb.Order) gin.H {
	return gin.H{
		"id":      o.ID,
		"user_id": o.UserID,
		"items":   json.RawMessage(o.Items),
		"status":  o.Status,
		"total":   o.Total,
	}
}

// canAccess は注文への参照・変更権限を判定する。
// 所有者本人またはadminロールを持つ場合のみ許可する。
func canAccess(c *gin.Context, order ordersdb.Order) bool {
	claims := middleware.GetClaims(c)
	if claims == nil {
		return false
	}
	return order.UserID == claims.Subject || claims.HasRole("admin")
}

// fetchOrder は注文を取得し、存在しない場合・権限が無い場合は
// エラーレスポンスを書き込んでfalseを返す共通処理。
func (s *Server) fetchOrder(c *gin.Context) (ordersdb.Order, bool) {
	orderID := c.Param("id")
	order, err := s.queries.GetOrderByID(c.Request.Context(), orderID)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound,
			envelope.Error(envelope.CodeNotFound, "注文が見つかりません"))
		return ordersdb.Order{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError,
			envelope.Error(envelope.CodeInternalError, "注文の取得に失敗しました"))
		log.Printf("注文取得エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
		return ordersdb.Order{}, false
	}

	if !canAccess(c, order) {
		c.JSON(http.StatusForbidden,
			envelope.Error(envelope.CodeForbidden, "この注文へのアクセス権がありません"))
		return ordersdb.Order{}, false
	}

	return order, true
}

// handleCreate は注文作成を処理するハンドラを返す。
// 注文を作成し、OrderCreatedイベントを発行する。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest,
				envelope.Error(envelope.CodeInvalidRequest, fmt.Sprintf("リクエストが不正です: %v", err)))
			return
		}

		itemsJSON, err := json.Marshal(req.Items)
		if err != nil {
			c.JSON(http.StatusBadRequest,
				envelope.Error(envelope.CodeInvalidRequest, "商品リストの形式が不正です"))
			return
		}

		orderID := uuid.New().String()
		if err := s.queries.CreateOrder(c.Request.Context(), ordersdb.CreateOrderParams{
			ID:     orderID,
			UserID: userID,
			Items:  string(itemsJSON),
			Status: StatusCreated,
			Total:  req.Total,
		}); err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "注文の作成に失敗しました"))
			log.Printf("注文作成エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		// OrderCreatedイベントを発行する
		ctx := httpclient.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
		s.publisher.Publish(ctx, orderID, event.AggregateTypeOrder, event.TypeOrderCreated, event.OrderCreatedData{
			UserID: userID,
			Total:  req.Total,
		})

		c.JSON(http.StatusOK, envelope.OK(gin.H{"id": orderID}))
	}
}

// handleList は自分の注文一覧取得を処理するハンドラを返す。
// 呼び出しユーザーの注文のみ返す。注文が無い場合は空リストを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		limit := parseIntOr(c.Query("limit"), 10)
		offset := parseIntOr(c.Query("offset"), 0)

		rows, err := s.queries.ListOrdersByUserID(c.Request.Context(), ordersdb.ListOrdersByUserIDParams{
			UserID: userID,
			Limit:  int64(limit),
			Offset: int64(offset),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "注文一覧の取得に失敗しました"))
			log.Printf("注文一覧取得エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		items := make([]gin.H, 0, len(rows))
		for _, o := range rows {
			items = append(items, toOrderItem(o))
		}

		c.JSON(http.StatusOK, envelope.OK(gin.H{
			"items":  items,
			"limit":  limit,
			"offset": offset,
		}))
	}
}

// handleGetByID は注文詳細取得を処理するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, ok := s.fetchOrder(c)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, envelope.OK(toOrderItem(order)))
	}
}

// handleUpdateStatus は注文ステータス変更を処理するハンドラを返す。
// ステータスを検証し、変更後にOrderStatusChangedイベントを発行する。
func (s *Server) handleUpdateStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, ok := s.fetchOrder(c)
		if !ok {
			return
		}

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest,
				envelope.Error(envelope.CodeInvalidRequest, fmt.Sprintf("リクエストが不正です: %v", err)))
			return
		}

		if _, valid := validStatuses[req.Status]; !valid {
			c.JSON(http.StatusBadRequest,
				envelope.Error(envelope.CodeInvalidRequest, fmt.Sprintf("不正なステータスです: %q", req.Status)))
			return
		}

		if err := s.queries.UpdateOrderStatus(c.Request.Context(), ordersdb.UpdateOrderStatusParams{
			Status: req.Status,
			ID:     order.ID,
		}); err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "ステータスの更新に失敗しました"))
			log.Printf("ステータス更新エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		// OrderStatusChangedイベントを発行する
		ctx := httpclient.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
		s.publisher.Publish(ctx, order.ID, event.AggregateTypeOrder, event.TypeOrderStatusChanged, event.OrderStatusChangedData{
			UserID: order.UserID,
			Status: req.Status,
		})

		c.JSON(http.StatusOK, envelope.OK(gin.H{"id": order.ID, "status": req.Status}))
	}
}

// handleCancel は注文キャンセルを処理するハンドラを返す。
// 物理削除は行わず、ステータスをcancelledに変更する。
func (s *Server) handleCancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, ok := s.fetchOrder(c)
		if !ok {
			return
		}

		if err := s.queries.UpdateOrderStatus(c.Request.Context(), ordersdb.UpdateOrderStatusParams{
			Status: StatusCancelled,
			ID:     order.ID,
		}); err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "注文のキャンセルに失敗しました"))
			log.Printf("注文キャンセルエラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		// OrderStatusChangedイベントを発行する
		ctx := httpclient.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
		s.publisher.Publish(ctx, order.ID, event.AggregateTypeOrder, event.TypeOrderStatusChanged, event.OrderStatusChangedData{
			UserID: order.UserID,
			Status: StatusCancelled,
		})

		c.JSON(http.StatusOK, envelope.OK(gin.H{"id": order.ID, "status": StatusCancelled}))
	}
}

// parseIntOr は数値文字列を解析し、不正な場合はデフォルト値を返す。
func parseIntOr(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultValue
	}
	return v
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
