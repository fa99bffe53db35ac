package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// 検証時に必要なのはUserIDと有効期限のみ。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Email は発行時点のメールアドレス。検証後はユーザーストアの値を優先する。
	Email string `json:"email"`
}

// AuthenticatedUser はJWTAuthがユーザーストアから解決したユーザー情報。
// リクエストごとに取得し直すため、キャッシュしてはならない。
type AuthenticatedUser struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Name は表示名。
	Name string `json:"name"`
	// Email はメールアドレス。
	Email string `json:"email"`
}

// UserFinder はユーザーIDから認証済みユーザーを取得する。
// 該当ユーザーが存在しない場合は ErrUserNotFound を返すこと。
type UserFinder interface {
	FindAuthenticatedUser(ctx context.Context, id string) (AuthenticatedUser, error)
}

// ErrUserNotFound はトークンの主体に該当するユーザーが存在しないことを表す。
var ErrUserNotFound = errors.New("ユーザーが見つかりません")

var (
	errEmptySecret  = errors.New("JWTシークレットが空です")
	errInvalidToken = errors.New("トークンが無効です")
)

// tokenIssuer はこのサービスが発行するトークンのiss。
const tokenIssuer = "gatekeeper"

// レスポンスメッセージ。クライアントが文字列比較するため変更しないこと。
const (
	msgNoToken      = "No token provided"
	msgInvalidToken = "Invalid or expired token"
	msgUserNotFound = "User not found"
)

// Ginコンテキストのキー。
const (
	contextKeyUser   = "user"
	contextKeyUserID = "user_id"
	contextKeyEmail  = "email"
)

// userContextKey はcontext.Context上のAuthenticatedUserのキー。
type userContextKey struct{}

// GenerateJWT はユーザー情報からHS256で署名したJWTトークンを生成する。
// ttlが0以下の場合はエラーを返す。
func GenerateJWT(secret, userID, email string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errEmptySecret
	}
	if ttl <= 0 {
		return "", fmt.Errorf("トークンの有効期間が不正: %s", ttl)
	}

	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID: userID,
		Email:  email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// TokenVerification はトークン検証の結果。
// Errがnilの場合のみClaimsが有効。
type TokenVerification struct {
	// Claims は検証済みのクレーム。
	Claims *JWTClaims
	// Err は検証に失敗した理由。
	Err error
}

// Valid は検証が成功したかを返す。
func (v TokenVerification) Valid() bool {
	return v.Err == nil && v.Claims != nil
}

// VerifyJWT はトークンの署名と有効期限を検証する。
// 失敗の理由（署名不一致、期限切れ、形式不正など）はErrに格納し、区別せずに無効として扱う。
func VerifyJWT(secret, tokenString string) TokenVerification {
	if secret == "" {
		return TokenVerification{Err: errEmptySecret}
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return TokenVerification{Err: err}
	}
	if !token.Valid {
		return TokenVerification{Err: errInvalidToken}
	}
	return TokenVerification{Claims: claims}
}

// JWTAuth はBearerトークンを検証し、ユーザーを解決するGinミドルウェアを返す。
//
// トークンが有効で、かつユーザーストアに該当ユーザーが存在する場合のみ後続に進む。
// 解決したユーザーは GetUser / UserFromContext で取得できる。
// ユーザーストアへの問い合わせはリクエストごとに1回行う。
func JWTAuth(secret string, users UserFinder, logger *zap.Logger) gin.HandlerFunc {
	logger = nopIfNil(logger)

	return func(c *gin.Context) {
		tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found {
			abortUnauthorized(c, msgNoToken)
			return
		}

		verification := VerifyJWT(secret, tokenString)
		if !verification.Valid() {
			logger.Warn("トークンの検証に失敗",
				zap.String("path", c.Request.URL.Path),
				zap.Error(verification.Err),
			)
			abortUnauthorized(c, msgInvalidToken)
			return
		}

		user, err := users.FindAuthenticatedUser(c.Request.Context(), verification.Claims.UserID)
		if errors.Is(err, ErrUserNotFound) {
			abortUnauthorized(c, msgUserNotFound)
			return
		}
		if err != nil {
			// ストア障害も認証失敗として扱う
			logger.Error("ユーザーの取得に失敗",
				zap.String("user_id", verification.Claims.UserID),
				zap.Error(err),
			)
			abortUnauthorized(c, msgInvalidToken)
			return
		}

		c.Set(contextKeyUser, user)
		c.Set(contextKeyUserID, user.ID)
		c.Set(contextKeyEmail, user.Email)
		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), user))
		c.Next()
	}
}

// abortUnauthorized は401レスポンスを書き込み、後続のハンドラを中断する。
func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"message": message,
		"success": false,
	})
}

// GetUser はGinコンテキストから認証済みユーザーを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUser(c *gin.Context) (AuthenticatedUser, bool) {
	v, ok := c.Get(contextKeyUser)
	if !ok {
		return AuthenticatedUser{}, false
	}
	user, ok := v.(AuthenticatedUser)
	return user, ok
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetEmail はGinコンテキストから認証済みユーザーのメールアドレスを取得する。
// トークンのemailクレームではなく、ユーザーストアの値を返す。
func GetEmail(c *gin.Context) string {
	email, _ := c.Get(contextKeyEmail)
	if e, ok := email.(string); ok {
		return e
	}
	return ""
}

// WithUser はコンテキストに認証済みユーザーを設定する。
func WithUser(ctx context.Context, user AuthenticatedUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext はcontext.Contextから認証済みユーザーを取得する。
func UserFromContext(ctx context.Context) (AuthenticatedUser, bool) {
	user, ok := ctx.Value(userContextKey{}).(AuthenticatedUser)
	return user, ok
}
