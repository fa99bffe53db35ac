// Package logger はzapロガーの生成を提供する。
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New は指定したレベルで本番向け設定のzapロガーを生成する。
// levelには debug, info, warn, error などzapが解釈できる文字列を指定する。
func New(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("ログレベルの解析に失敗: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ロガーの生成に失敗: %w", err)
	}
	return logger, nil
}
