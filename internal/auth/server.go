package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/gatekeeper/internal/config"
	"github.com/nao1215/gatekeeper/internal/user"
	"github.com/nao1215/gatekeeper/pkg/middleware"
)

// shutdownTimeout は停止時に処理中のリクエストを待つ上限。
const shutdownTimeout = 10 * time.Second

// Server は認証サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr string
	// users はユーザーストア。
	users *user.Store
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
	// tokenTTL は発行するトークンの有効期間。
	tokenTTL time.Duration
	// bcryptCost はパスワードハッシュのコスト。
	bcryptCost int
	// logger は構造化ロガー。
	logger *zap.Logger
}

// NewServer は新しい認証サーバーを生成する。
func NewServer(cfg *config.Config, users *user.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:     router,
		addr:       cfg.Addr(),
		users:      users,
		jwtSecret:  cfg.JWTSecret,
		tokenTTL:   cfg.TokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger,
	}
	s.setupRoutes()

	return s
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまで待つ。
// キャンセル後は処理中のリクエストを待ってから停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// アカウント作成・ログイン（認証不要）
	auth := s.router.Group("/auth")
	{
		auth.POST("/signup", middleware.SignupValidation(), s.handleSignup())
		auth.POST("/login", middleware.LoginValidation(), s.handleLogin())
	}

	// 認証必須のAPIエンドポイント
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.jwtSecret, s.users, s.logger))
	{
		api.GET("/me", s.handleGetCurrentUser())
	}

	// ヘルスチェック
	s.router.GET("/health", s.handleHealth())
}

// handleSignup はアカウントを作成するハンドラを返す。
func (s *Server) handleSignup() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := middleware.ValidatedBody[middleware.SignupRequest](c)
		if !ok {
			s.internalError(c, "検証済みボディが見つかりません", nil)
			return
		}

		hash, err := hashPassword(req.Password, s.bcryptCost)
		if err != nil {
			s.internalError(c, "パスワードのハッシュ化に失敗", err)
			return
		}

		u := user.User{
			ID:           uuid.NewString(),
			Name:         req.Name,
			Email:        req.Email,
			PasswordHash: hash,
		}
		if err := s.users.Create(c.Request.Context(), u); err != nil {
			if errors.Is(err, user.ErrEmailTaken) {
				c.JSON(http.StatusConflict, gin.H{
					"message": "Email already registered",
					"success": false,
				})
				return
			}
			s.internalError(c, "ユーザー登録に失敗", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": "Signup successful",
			"success": true,
			"user":    middleware.AuthenticatedUser{ID: u.ID, Name: u.Name, Email: u.Email},
		})
	}
}

// handleLogin はメールアドレスとパスワードを照合し、JWTを発行するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := middleware.ValidatedBody[middleware.LoginRequest](c)
		if !ok {
			s.internalError(c, "検証済みボディが見つかりません", nil)
			return
		}

		u, err := s.users.FindByEmail(c.Request.Context(), req.Email)
		if errors.Is(err, user.ErrNotFound) {
			rejectLogin(c)
			return
		}
		if err != nil {
			s.internalError(c, "ユーザー取得に失敗", err)
			return
		}

		matched, err := checkPassword(u.PasswordHash, req.Password)
		if err != nil {
			s.internalError(c, "パスワード照合に失敗", err)
			return
		}
		if !matched {
			rejectLogin(c)
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, u.ID, u.Email, s.tokenTTL)
		if err != nil {
			s.internalError(c, "JWT生成に失敗", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Login successful",
			"success": true,
			"token":   token,
			"user":    middleware.AuthenticatedUser{ID: u.ID, Name: u.Name, Email: u.Email},
		})
	}
}

// rejectLogin はメールアドレスとパスワードのどちらが誤りかを区別せずに401を返す。
func rejectLogin(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"message": "Invalid email or password",
		"success": false,
	})
}

// handleGetCurrentUser は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := middleware.GetUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"message": "User not found",
				"success": false,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"user":    u,
		})
	}
}

// handleHealth はデータベースへの疎通を含むヘルスチェックのハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.users.Ping(c.Request.Context()); err != nil {
			s.logger.Warn("ヘルスチェックでDBに到達できません", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "auth"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auth"})
	}
}

// internalError はエラーを記録して500を返す。
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"message": "Internal Server Error",
		"success": false,
	})
}
