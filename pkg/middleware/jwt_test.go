package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWT署名秘密鍵。
const testSecret = "test-secret-key"

// TestGenerateAndVerifyToken はトークンの生成と検証の往復をテストする。
func TestGenerateAndVerifyToken(t *testing.T) {
	t.Parallel()

	t.Run("生成したトークンからクレームを復元できること", func(t *testing.T) {
		t.Parallel()

		token, err := GenerateToken(testSecret, "user-123", "test@example.com", []string{"user", "admin"}, time.Hour)
		if err != nil {
			t.Fatalf("トークン生成に失敗: %v", err)
		}

		claims, err := VerifyToken(testSecret, token)
		if err != nil {
			t.Fatalf("トークン検証に失敗: %v", err)
		}
		if claims.Subject != "user-123" {
			t.Errorf("Subject = %q, want %q", claims.Subject, "user-123")
		}
		if claims.Email != "test@example.com" {
			t.Errorf("Email = %q, want %q", claims.Email, "test@example.com")
		}
		if len(claims.Roles) != 2 || claims.Roles[0] != "user" || claims.Roles[1] != "admin" {
			t.Errorf("Roles = %v, want [user admin]", claims.Roles)
		}
	})

	t.Run("異なるsecretで署名されたトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		token, err := GenerateToken("wrong-secret", "user-1", "a@example.com", []string{"user"}, time.Hour)
		if err != nil {
			t.Fatalf("トークン生成に失敗: %v", err)
		}

		if _, err := VerifyToken(testSecret, token); err == nil {
			t.Error("異なるsecretのトークンが検証を通過した")
		}
	})

	t.Run("不正な形式のトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		if _, err := VerifyToken(testSecret, "not-a-jwt"); err == nil {
			t.Error("不正な形式のトークンが検証を通過した")
		}
	})

	t.Run("許容時計ずれを超えて期限切れのトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		token, err := GenerateToken(testSecret, "user-1", "a@example.com", []string{"user"}, -2*time.Minute)
		if err != nil {
			t.Fatalf("トークン生成に失敗: %v", err)
		}

		if _, err := VerifyToken(testSecret, token); err == nil {
			t.Error("期限切れトークンが検証を通過した")
		}
	})

	t.Run("許容時計ずれ以内の期限切れは許容されること", func(t *testing.T) {
		t.Parallel()

		// 10秒前に期限切れだが、expiryLeeway(30秒)の範囲内
		token, err := GenerateToken(testSecret, "user-1", "a@example.com", []string{"user"}, -10*time.Second)
		if err != nil {
			t.Fatalf("トークン生成に失敗: %v", err)
		}

		if _, err := VerifyToken(testSecret, token); err != nil {
			t.Errorf("許容範囲内の期限切れトークンが拒否された: %v", err)
		}
	})
}

// TestBearerToken はAuthorizationヘッダーの解析をテストする。
func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		header    string
		wantToken string
		wantOK    bool
	}{
		{name: "Bearerスキーム", header: "Bearer abc.def.ghi", wantToken: "abc.def.ghi", wantOK: true},
		{name: "小文字のbearerスキーム", header: "bearer abc.def.ghi", wantToken: "abc.def.ghi", wantOK: true},
		{name: "Basicスキームは拒否", header: "Basic dXNlcjpwYXNz", wantToken: "", wantOK: false},
		{name: "スキームのみ", header: "Bearer", wantToken: "", wantOK: false},
		{name: "トークンが空", header: "Bearer ", wantToken: "", wantOK: false},
		{name: "空文字列", header: "", wantToken: "", wantOK: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, ok := BearerToken(tt.header)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if token != tt.wantToken {
				t.Errorf("token = %q, want %q", token, tt.wantToken)
			}
		})
	}
}

// TestHasRole はロール判定をテストする。
func TestHasRole(t *testing.T) {
	t.Parallel()

	claims := &Claims{Roles: []string{"user", "admin"}}
	if !claims.HasRole("admin") {
		t.Error("adminロールが検出されない")
	}
	if claims.HasRole("superuser") {
		t.Error("存在しないロールが検出された")
	}
}

// TestJWTAuth はJWT認証ミドルウェアをテストする。
func TestJWTAuth(t *testing.T) {
	t.Parallel()

	newRouter := func() *gin.Engine {
		router := gin.New()
		router.Use(JWTAuth(testSecret))
		router.GET("/protected", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
		})
		return router
	}

	t.Run("有効なトークンで認証が通過すること", func(t *testing.T) {
		t.Parallel()

		token, err := GenerateToken(testSecret, "user-42", "a@example.com", []string{"user"}, time.Hour)
		if err != nil {
			t.Fatalf("トークン生成に失敗: %v", err)
		}

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		newRouter().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		var result map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if result["user_id"] != "user-42" {
			t.Errorf("user_id = %q, want %q", result["user_id"], "user-42")
		}
	})

	t.Run("Authorizationヘッダーが無い場合は401のエンベロープを返すこと", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		newRouter().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
		assertErrorEnvelope(t, w.Body.Bytes(), "unauthenticated")
	})

	t.Run("Bearer以外のスキームは401を返すこと", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		newRouter().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("無効なトークンは401を返すこと", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		newRouter().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
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
	if result.Error.Message == "" {
		t.Error("error.messageが空")
	}
}
