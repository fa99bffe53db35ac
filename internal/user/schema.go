package user

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"go.uber.org/zap"

	"github.com/nao1215/gatekeeper/pkg/migration"
)

// migrationFS はusersテーブルのマイグレーション。
//
//go:embed migrations/*.sql
var migrationFS embed.FS

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if err := migration.Run(ctx, db, migrationFS, "migrations", logger); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
