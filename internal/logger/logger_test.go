package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestNew はNew関数を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("指定したレベルが反映されること", func(t *testing.T) {
		t.Parallel()

		l, err := New("warn")
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if l.Core().Enabled(zapcore.InfoLevel) {
			t.Error("warnレベルでinfoが有効になっている")
		}
		if !l.Core().Enabled(zapcore.WarnLevel) {
			t.Error("warnレベルでwarnが無効になっている")
		}
	})

	t.Run("不正なレベルはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("verbose"); err == nil {
			t.Fatal("New()がエラーを返すべき")
		}
	})
}
