// 認証サービスのエントリポイント。
// アカウント作成・ログイン・JWT検証を担当し、ユーザーはSQLiteに保存する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nao1215/gatekeeper/internal/auth"
	"github.com/nao1215/gatekeeper/internal/config"
	"github.com/nao1215/gatekeeper/internal/logger"
	"github.com/nao1215/gatekeeper/internal/user"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("認証サービスの起動に失敗: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := user.Open(ctx, cfg.DatabasePath, zl)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	server := auth.NewServer(cfg, store, zl)

	zl.Info("認証サービスを起動します", zap.String("addr", cfg.Addr()))
	if err := server.Run(ctx); err != nil {
		return err
	}
	zl.Info("認証サービスを停止しました")
	return nil
}
