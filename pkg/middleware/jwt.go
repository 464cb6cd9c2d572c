package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nao1215/orderhub/pkg/envelope"
)

// Claims はJWTトークンのクレーム（ペイロード）を表す。
// 識別情報はトークン内で完結しており、検証側でのDB参照は不要。
type Claims struct {
	jwt.RegisteredClaims
	// Email はユーザーのメールアドレス。
	Email string `json:"email,omitempty"`
	// Roles はユーザーに付与されたロールの一覧。
	Roles []string `json:"roles,omitempty"`
}

// HasRole は指定されたロールがクレームに含まれるかを返す。
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// expiryLeeway は有効期限検証時に許容する時計ずれ。
// サービス間のクロックスキューを吸収するため30秒とする。
const expiryLeeway = 30 * time.Second

// ErrInvalidToken はトークンの検証に失敗したことを表す。
// 署名不一致・構造不正・期限切れのいずれもこのエラーに正規化する。
var ErrInvalidToken = errors.New("トークンが無効です")

// GenerateToken はユーザー情報からHS256署名のJWTトークンを生成する。
// usersサービスがログイン成功時に呼び出す。
func GenerateToken(secret, userID, email string, roles []string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "orderhub-users",
		},
		Email: email,
		Roles: roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// VerifyToken はJWTトークンを検証してクレームを返す。
// 署名アルゴリズムはHS256のみ許可し、期限切れはexpiryLeeway分だけ許容する。
func VerifyToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(expiryLeeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken はAuthorizationヘッダー値からBearerトークンを取り出す。
// スキーム名の大文字小文字は区別しない。
func BearerToken(authorization string) (string, bool) {
	scheme, token, found := strings.Cut(authorization, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// contextKeyClaims はGinコンテキストに検証済みクレームを格納するためのキー。
const contextKeyClaims = "claims"

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに検証済みクレームを設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				envelope.Error(envelope.CodeUnauthenticated, "Authorizationヘッダーが必要です"))
			return
		}

		tokenString, ok := BearerToken(authHeader)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				envelope.Error(envelope.CodeUnauthenticated, "Bearer トークン形式が不正です"))
			return
		}

		claims, err := VerifyToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				envelope.Error(envelope.CodeUnauthenticated, "トークンが無効です"))
			return
		}

		SetClaims(c, claims)
		c.Next()
	}
}

// SetClaims はGinコンテキストに検証済みクレームを設定する。
func SetClaims(c *gin.Context, claims *Claims) {
	c.Set(contextKeyClaims, claims)
}

// GetClaims はGinコンテキストから検証済みクレームを取得する。
// JWTAuthミドルウェア等が事前にクレームを設定している必要がある。
func GetClaims(c *gin.Context) *Claims {
	v, ok := c.Get(contextKeyClaims)
	if !ok {
		return nil
	}
	if claims, ok := v.(*Claims); ok {
		return claims
	}
	return nil
}

// GetUserID はGinコンテキストから認証済みユーザーのIDを取得する。
func GetUserID(c *gin.Context) string {
	if claims := GetClaims(c); claims != nil {
		return claims.Subject
	}
	return ""
}
