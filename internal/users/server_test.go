package users

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	usersdb "github.com/nao1215/orderhub/internal/users/db"
	"github.com/nao1215/orderhub/pkg/event"
	"github.com/nao1215/orderhub/pkg/middleware"
	"github.com/nao1215/orderhub/pkg/migration"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTSecret はテスト用のJWT署名秘密鍵。
const testJWTSecret = "users-test-secret"

// newTestServer はインメモリSQLiteを使うテスト用サーバーを生成する。
func newTestServer(t *testing.T) *Server {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("データベースのオープンに失敗: %v", err)
	}
	// インメモリDBは接続ごとに別実体になるため接続数を1に固定する
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.Run(sqlDB, migrationsFS, "migrations"); err != nil {
		t.Fatalf("マイグレーションの適用に失敗: %v", err)
	}

	s := &Server{
		router:    gin.New(),
		port:      "0",
		queries:   usersdb.New(sqlDB),
		db:        sqlDB,
		jwtSecret: testJWTSecret,
		publisher: &event.LogPublisher{},
	}
	s.setupRoutes()
	return s
}

// doJSON はJSONボディ付きリクエストを実行してレコーダを返す。
func doJSON(s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	s.router.ServeHTTP(w, req)
	return w
}

// registerTestUser はテスト用ユーザーを登録してIDを返す。
func registerTestUser(t *testing.T, s *Server, email, password, name string) string {
	t.Helper()

	w := doJSON(s, http.MethodPost, "/v1/auth/register",
		`{"email":"`+email+`","password":"`+password+`","name":"`+name+`"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("ユーザー登録に失敗: status=%d body=%s", w.Code, w.Body.String())
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	return result.Data.ID
}

// loginTestUser はログインしてアクセストークンを返す。
func loginTestUser(t *testing.T, s *Server, email, password string) string {
	t.Helper()

	w := doJSON(s, http.MethodPost, "/v1/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("ログインに失敗: status=%d body=%s", w.Code, w.Body.String())
	}

	var result struct {
		Data struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if result.Data.TokenType != "bearer" {
		t.Errorf("token_type = %q, want %q", result.Data.TokenType, "bearer")
	}
	return result.Data.AccessToken
}

// assertErrorEnvelope はエラーエンベロープの形式とエラーコードを検証する。
func assertErrorEnvelope(t *testing.T, body []byte, wantCode string) {
	t.Helper()

	var result struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if result.Success {
		t.Error("success = true, want false")
	}
	if result.Error.Code != wantCode {
		t.Errorf("error.code = %q, want %q", result.Error.Code, wantCode)
	}
}

// TestHandleRegister はユーザー登録をテストする。
func TestHandleRegister(t *testing.T) {
	t.Parallel()

	t.Run("登録に成功しIDが返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		id := registerTestUser(t, s, "taro@example.com", "password123", "テスト太郎")
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("返されたIDがUUID形式ではない: %q", id)
		}
	})

	t.Run("メールアドレスが重複する場合は400を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		registerTestUser(t, s, "taro@example.com", "password123", "テスト太郎")

		w := doJSON(s, http.MethodPost, "/v1/auth/register",
			`{"email":"taro@example.com","password":"another","name":"別の太郎"}`, "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
		assertErrorEnvelope(t, w.Body.Bytes(), "invalid_request")
	})

	t.Run("必須フィールドが欠けている場合は400を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doJSON(s, http.MethodPost, "/v1/auth/register", `{"email":"taro@example.com"}`, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("パスワードが平文のまま保存されないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		id := registerTestUser(t, s, "taro@example.com", "password123", "テスト太郎")

		var hashed string
		if err := s.db.QueryRow("SELECT hashed_password FROM users WHERE id = ?", id).Scan(&hashed); err != nil {
			t.Fatalf("保存されたユーザーの取得に失敗: %v", err)
		}
		if hashed == "password123" {
			t.Error("パスワードが平文のまま保存されている")
		}
		if !strings.HasPrefix(hashed, "$2") {
			t.Errorf("bcrypt形式のハッシュではない: %q", hashed)
		}
	})
}

// TestHandleLogin はログインとトークン発行をテストする。
func TestHandleLogin(t *testing.T) {
	t.Parallel()

	t.Run("正しい資格情報でトークンが発行されクレームが正しいこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		id := registerTestUser(t, s, "taro@example.com", "password123", "テスト太郎")
		token := loginTestUser(t, s, "taro@example.com", "password123")

		claims, err := middleware.VerifyToken(testJWTSecret, token)
		if err != nil {
			t.Fatalf("発行されたトークンの検証に失敗: %v", err)
		}
		if claims.Subject != id {
			t.Errorf("sub = %q, want %q", claims.Subject, id)
		}
		if claims.Email != "taro@example.com" {
			t.Errorf("email = %q, want %q", claims.Email, "taro@example.com")
		}
		if len(claims.Roles) != 1 || claims.Roles[0] != "user" {
			t.Errorf("roles = %v, want [user]", claims.Roles)
		}
		if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > accessTokenTTL {
			t.Error("有効期限がアクセストークンのTTLを超えている")
		}
	})

	t.Run("誤ったパスワードは401を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		registerTestUser(t, s, "taro@example.com", "password123", "テスト太郎")

		w := doJSON(s, http.MethodPost, "/v1/auth/login",
			`{"email":"taro@example.com","password":"wrong"}`, "")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
		assertErrorEnvelope(t, w.Body.Bytes(), "unauthenticated")
	})

	t.Run("未登録のメールアドレスは401を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doJSON(s, http.MethodPost, "/v1/auth/login",
			`{"email":"unknown@example.com","password":"password123"}`, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleGetMe は自分のプロフィール取得をテストする。
func TestHandleGetMe(t *testing.T) {
	t.Parallel()

	t.Run("認証済みユーザーの情報が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		id := registerTestUser(t, s, "taro@example.com", "password123", "テスト太郎")
		token := loginTestUser(t, s, "taro@example.com", "password123")

		w := doJSON(s, http.MethodGet, "/v1/users/me", "", token)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		var result struct {
			Data struct {
				ID    string   `json:"id"`
				Email string   `json:"email"`
				Name  string   `json:"name"`
				Roles []string `json:"roles"`
			} `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if result.Data.ID != id {
			t.Errorf("id = %q, want %q", result.Data.ID, id)
		}
		if result.Data.Name != "テスト太郎" {
			t.Errorf("name = %q, want %q", result.Data.Name, "テスト太郎")
		}
		if len(result.Data.Roles) != 1 || result.Data.Roles[0] != "user" {
			t.Errorf("roles = %v, want [user]", result.Data.Roles)
		}
	})

	t.Run("トークン無しは401を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doJSON(s, http.MethodGet, "/v1/users/me", "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("DBに存在しないユーザーのトークンは401を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		token, err := middleware.GenerateToken(testJWTSecret, uuid.New().String(), "ghost@example.com", []string{"user"}, time.Hour)
		if err != nil {
			t.Fatalf("トークン生成に失敗: %v", err)
		}

		w := doJSON(s, http.MethodGet, "/v1/users/me", "", token)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleUpdateMe はプロフィール更新をテストする。
func TestHandleUpdateMe(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	registerTestUser(t, s, "taro@example.com", "password123", "テスト太郎")
	token := loginTestUser(t, s, "taro@example.com", "password123")

	w := doJSON(s, http.MethodPut, "/v1/users/me", `{"name":"新しい太郎"}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("更新に失敗: status=%d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(s, http.MethodGet, "/v1/users/me", "", token)
	var result struct {
		Data struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if result.Data.Name != "新しい太郎" {
		t.Errorf("name = %q, want %q", result.Data.Name, "新しい太郎")
	}
}

// TestHandleList はユーザー一覧取得をテストする。
func TestHandleList(t *testing.T) {
	t.Parallel()

	// adminTestToken はadminロールを持つテストトークンを生成する。
	adminTestToken := func(t *testing.T) string {
		t.Helper()
		token, err := middleware.GenerateToken(testJWTSecret, uuid.New().String(), "admin@example.com", []string{"user", "admin"}, time.Hour)
		if err != nil {
			t.Fatalf("トークン生成に失敗: %v", err)
		}
		return token
	}

	t.Run("adminロールが無い場合は403を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		registerTestUser(t, s, "taro@example.com", "password123", "テスト太郎")
		token := loginTestUser(t, s, "taro@example.com", "password123")

		w := doJSON(s, http.MethodGet, "/v1/users", "", token)
		if w.Code != http.StatusForbidden {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
		assertErrorEnvelope(t, w.Body.Bytes(), "forbidden")
	})

	t.Run("adminロールで一覧が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		registerTestUser(t, s, "taro@example.com", "password123", "テスト太郎")
		registerTestUser(t, s, "hanako@example.com", "password456", "テスト花子")

		w := doJSON(s, http.MethodGet, "/v1/users", "", adminTestToken(t))
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		var result struct {
			Data struct {
				Items  []map[string]any `json:"items"`
				Limit  int              `json:"limit"`
				Offset int              `json:"offset"`
			} `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if len(result.Data.Items) != 2 {
			t.Errorf("items数 = %d, want 2", len(result.Data.Items))
		}
		if result.Data.Limit != 10 || result.Data.Offset != 0 {
			t.Errorf("limit/offset = %d/%d, want 10/0", result.Data.Limit, result.Data.Offset)
		}
	})

	t.Run("qで部分一致検索ができること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		registerTestUser(t, s, "taro@example.com", "password123", "テスト太郎")
		registerTestUser(t, s, "hanako@example.com", "password456", "テスト花子")

		w := doJSON(s, http.MethodGet, "/v1/users?q=hanako", "", adminTestToken(t))
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		var result struct {
			Data struct {
				Items []struct {
					Email string `json:"email"`
				} `json:"items"`
			} `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if len(result.Data.Items) != 1 {
			t.Fatalf("items数 = %d, want 1", len(result.Data.Items))
		}
		if result.Data.Items[0].Email != "hanako@example.com" {
			t.Errorf("email = %q, want %q", result.Data.Items[0].Email, "hanako@example.com")
		}
	})
}

// TestUsersHealthCheck はヘルスチェックをテストする。
func TestUsersHealthCheck(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	w := doJSON(s, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Status  string `json:"status"`
			Service string `json:"service"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if !result.Success || result.Data.Status != "ok" || result.Data.Service != "users" {
		t.Errorf("レスポンス = %+v", result)
	}
}
