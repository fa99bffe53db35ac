package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger はリクエストとレスポンスの情報を構造化ログに出力するGinミドルウェアを返す。
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = nopIfNil(logger)

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("size", c.Writer.Size()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if userID := GetUserID(c); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		if c.Writer.Status() >= 500 {
			logger.Error("リクエスト処理", fields...)
			return
		}
		logger.Info("リクエスト処理", fields...)
	}
}
