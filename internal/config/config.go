package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// ErrMissingSecret はJWT_SECRETが未設定または空であることを表す。
var ErrMissingSecret = errors.New("JWT_SECRETが設定されていません")

// Config は認証サービスの設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `env:"PORT" envDefault:"8080"`
	// JWTSecret はトークンの署名と検証に使う秘密鍵。
	JWTSecret string `env:"JWT_SECRET"`
	// TokenTTL は発行するトークンの有効期間。
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	// DatabasePath はSQLiteデータベースファイルのパス。
	DatabasePath string `env:"DATABASE_PATH" envDefault:"/data/auth.db"`
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	// LogLevel はzapのログレベル。
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数から設定を読み込んで検証する。
func Load() (*Config, error) {
	return load(env.Options{})
}

// load はenvのオプションを指定して設定を読み込む。テストから環境変数を差し替えるために使う。
func load(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg, opts); err != nil {
		return nil, fmt.Errorf("環境変数の解析に失敗: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	// 空白のみは未設定とみなす。値自体は書き換えない
	if strings.TrimSpace(c.JWTSecret) == "" {
		return ErrMissingSecret
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTLは正の値である必要があります: %s", c.TokenTTL)
	}
	if c.Port == "" {
		return errors.New("PORTが空です")
	}
	return nil
}

// Addr はHTTPサーバーのリッスンアドレスを返す。
func (c *Config) Addr() string {
	return ":" + c.Port
}
