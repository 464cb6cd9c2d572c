package users

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	usersdb "github.com/nao1215/orderhub/internal/users/db"
	"github.com/nao1215/orderhub/pkg/envelope"
	"github.com/nao1215/orderhub/pkg/event"
	"github.com/nao1215/orderhub/pkg/httpclient"
	"github.com/nao1215/orderhub/pkg/middleware"
	"github.com/nao1215/orderhub/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// accessTokenTTL はログイン時に発行するアクセストークンの有効期間。
const accessTokenTTL = 8 * time.Hour

// Server はユーザーアカウントサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *usersdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// jwtSecret はJWT署名用の共有秘密鍵。
	jwtSecret string
	// publisher はドメインイベントのパブリッシャ。
	publisher event.Publisher
}

// NewServer は新しいユーザーサーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションの適用を行う。
func NewServer(port string) (*Server, error) {
	dsn := getEnvOr("USERS_DB", "/data/users.db?_journal_mode=WAL&_busy_timeout=5000")
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
		queries:   usersdb.New(sqlDB),
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
	{
		// 認証エンドポイント（認証不要）
		auth := v1.Group("/auth")
		{
			auth.POST("/register", s.handleRegister())
			auth.POST("/login", s.handleLogin())
		}

		// 認証必須のユーザーエンドポイント
		users := v1.Group("/users")
		users.Use(middleware.JWTAuth(s.jwtSecret))
		{
			users.GET("/me", s.handleGetMe())
			users.PUT("/me", s.handleUpdateMe())
			users.GET("", s.handleList())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, envelope.OK(gin.H{"status": "ok", "service": "users"}))
	})
}

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Email はメールアドレス。登録後の一意キーとなる。
	Email string `json:"email" binding:"required"`
	// Password は平文パスワード。bcryptでハッシュ化して保存する。
	Password string `json:"password" binding:"required"`
	// Name は表示名。
	Name string `json:"name" binding:"required"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password は平文パスワード。
	Password string `json:"password" binding:"required"`
}

// updateMeRequest はプロフィール更新リクエストのJSON構造。
type updateMeRequest struct {
	// Name は変更後の表示名。空の場合は変更しない。
	Name string `json:"name"`
}

// parseRoles はDBに保存されたロールのJSON文字列を復元する。
func parseRoles(raw string) []string {
	var roles []string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil {
		return []string{}
	}
	return roles
}

// toUserItem はDB行をJSONレスポンス用の構造に変換する。
func toUserItem(u usersdb.User) gin.H {
	return gin.H{
		"id":    u.ID,
		"email": u.Email,
		"name":  u.Name,
		"roles": parseRoles(u.Roles),
	}
}

// handleRegister はユーザー登録を処理するハンドラを返す。
// メールアドレスの重複を確認し、パスワードをハッシュ化して保存する。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest,
				envelope.Error(envelope.CodeInvalidRequest, fmt.Sprintf("リクエストが不正です: %v", err)))
			return
		}

		_, err := s.queries.GetUserByEmail(c.Request.Context(), req.Email)
		if err == nil {
			c.JSON(http.StatusBadRequest,
				envelope.Error(envelope.CodeInvalidRequest, "このメールアドレスは既に登録されています"))
			return
		}
		if err != sql.ErrNoRows {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "ユーザーの確認に失敗しました"))
			log.Printf("ユーザー確認エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "パスワードのハッシュ化に失敗しました"))
			log.Printf("パスワードハッシュ化エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		rolesJSON, err := json.Marshal([]string{"user"})
		if err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "ユーザーの作成に失敗しました"))
			return
		}

		userID := uuid.New().String()
		if err := s.queries.CreateUser(c.Request.Context(), usersdb.CreateUserParams{
			ID:             userID,
			Email:          req.Email,
			HashedPassword: string(hashed),
			Name:           req.Name,
			Roles:          string(rolesJSON),
		}); err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "ユーザーの作成に失敗しました"))
			log.Printf("ユーザー作成エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		// UserRegisteredイベントを発行する
		ctx := httpclient.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
		s.publisher.Publish(ctx, userID, event.AggregateTypeUser, event.TypeUserRegistered, event.UserRegisteredData{
			Email: req.Email,
			Name:  req.Name,
		})

		c.JSON(http.StatusOK, envelope.OK(gin.H{"id": userID}))
	}
}

// handleLogin はログインを処理するハンドラを返す。
// 認証に成功した場合、sub/email/rolesを含むアクセストークンを発行する。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest,
				envelope.Error(envelope.CodeInvalidRequest, fmt.Sprintf("リクエストが不正です: %v", err)))
			return
		}

		user, err := s.queries.GetUserByEmail(c.Request.Context(), req.Email)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusUnauthorized,
				envelope.Error(envelope.CodeUnauthenticated, "メールアドレスまたはパスワードが正しくありません"))
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "ユーザーの取得に失敗しました"))
			log.Printf("ユーザー取得エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized,
				envelope.Error(envelope.CodeUnauthenticated, "メールアドレスまたはパスワードが正しくありません"))
			return
		}

		token, err := middleware.GenerateToken(s.jwtSecret, user.ID, user.Email, parseRoles(user.Roles), accessTokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "トークンの発行に失敗しました"))
			log.Printf("トークン発行エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		c.JSON(http.StatusOK, envelope.OK(gin.H{
			"access_token": token,
			"token_type":   "bearer",
		}))
	}
}

// handleGetMe は認証済みユーザーの情報取得を処理するハンドラを返す。
func (s *Server) handleGetMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		user, err := s.queries.GetUserByID(c.Request.Context(), userID)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusUnauthorized,
				envelope.Error(envelope.CodeUnauthenticated, "ユーザーが見つかりません"))
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "ユーザーの取得に失敗しました"))
			log.Printf("ユーザー取得エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		c.JSON(http.StatusOK, envelope.OK(toUserItem(user)))
	}
}

// handleUpdateMe は認証済みユーザーのプロフィール更新を処理するハンドラを返す。
func (s *Server) handleUpdateMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		user, err := s.queries.GetUserByID(c.Request.Context(), userID)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusUnauthorized,
				envelope.Error(envelope.CodeUnauthenticated, "ユーザーが見つかりません"))
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "ユーザーの取得に失敗しました"))
			log.Printf("ユーザー取得エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		var req updateMeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest,
				envelope.Error(envelope.CodeInvalidRequest, fmt.Sprintf("リクエストが不正です: %v", err)))
			return
		}

		if req.Name != "" {
			if err := s.queries.UpdateUserName(c.Request.Context(), usersdb.UpdateUserNameParams{
				Name: req.Name,
				ID:   user.ID,
			}); err != nil {
				c.JSON(http.StatusInternalServerError,
					envelope.Error(envelope.CodeInternalError, "プロフィールの更新に失敗しました"))
				log.Printf("プロフィール更新エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
				return
			}
		}

		c.JSON(http.StatusOK, envelope.OK(gin.H{"id": user.ID}))
	}
}

// handleList はユーザー一覧取得を処理するハンドラを返す。
// adminロールを持つユーザーのみ利用できる。qでメールアドレス・表示名の
// 部分一致検索、limit/offsetでページングを行う。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		if claims == nil || !claims.HasRole("admin") {
			c.JSON(http.StatusForbidden,
				envelope.Error(envelope.CodeForbidden, "この操作にはadminロールが必要です"))
			return
		}

		limit := parseIntOr(c.Query("limit"), 10)
		offset := parseIntOr(c.Query("offset"), 0)

		var (
			rows []usersdb.User
			err  error
		)
		if q := c.Query("q"); q != "" {
			pattern := "%" + q + "%"
			rows, err = s.queries.SearchUsers(c.Request.Context(), usersdb.SearchUsersParams{
				Email:  pattern,
				Name:   pattern,
				Limit:  int64(limit),
				Offset: int64(offset),
			})
		} else {
			rows, err = s.queries.ListUsers(c.Request.Context(), usersdb.ListUsersParams{
				Limit:  int64(limit),
				Offset: int64(offset),
			})
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError,
				envelope.Error(envelope.CodeInternalError, "ユーザー一覧の取得に失敗しました"))
			log.Printf("ユーザー一覧取得エラー: request_id=%s: %v", middleware.GetRequestID(c), err)
			return
		}

		items := make([]gin.H, 0, len(rows))
		for _, u := range rows {
			items = append(items, toUserItem(u))
		}

		c.JSON(http.StatusOK, envelope.OK(gin.H{
			"items":  items,
			"limit":  limit,
			"offset": offset,
		}))
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
