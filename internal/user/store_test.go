package user

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nao1215/gatekeeper/pkg/middleware"
)

// newTestStore はインメモリSQLiteのStoreを生成する。
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("Storeの生成に失敗: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedUser はテスト用のユーザーを登録する。
func seedUser(t *testing.T, s *Store, u User) {
	t.Helper()

	if err := s.Create(context.Background(), u); err != nil {
		t.Fatalf("テスト用ユーザーの登録に失敗: %v", err)
	}
}

// TestStore_Create はユーザー登録を検証する。
func TestStore_Create(t *testing.T) {
	t.Parallel()

	t.Run("登録したユーザーをメールアドレスで取得できること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		seedUser(t, s, User{ID: "user-1", Name: "Taro", Email: "taro@example.com", PasswordHash: "hash"})

		got, err := s.FindByEmail(context.Background(), "taro@example.com")
		if err != nil {
			t.Fatalf("FindByEmail()でエラーが発生: %v", err)
		}
		if got.ID != "user-1" || got.Name != "Taro" || got.PasswordHash != "hash" {
			t.Errorf("FindByEmail() = %+v", got)
		}
		if got.CreatedAt.IsZero() {
			t.Error("CreatedAtが設定されていない")
		}
	})

	t.Run("同じメールアドレスは大文字小文字を問わずErrEmailTakenになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		seedUser(t, s, User{ID: "user-1", Name: "Taro", Email: "taro@example.com", PasswordHash: "hash"})

		err := s.Create(context.Background(), User{ID: "user-2", Name: "Jiro", Email: "TARO@example.com", PasswordHash: "hash"})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("err = %v, want %v", err, ErrEmailTaken)
		}
	})
}

// TestStore_FindByEmail はメールアドレスでの取得を検証する。
func TestStore_FindByEmail(t *testing.T) {
	t.Parallel()

	t.Run("大文字小文字を区別せずに取得できること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		seedUser(t, s, User{ID: "user-1", Name: "Taro", Email: "taro@example.com", PasswordHash: "hash"})

		got, err := s.FindByEmail(context.Background(), "Taro@Example.com")
		if err != nil {
			t.Fatalf("FindByEmail()でエラーが発生: %v", err)
		}
		if got.ID != "user-1" {
			t.Errorf("ID = %q, want %q", got.ID, "user-1")
		}
	})

	t.Run("存在しない場合はErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)

		_, err := s.FindByEmail(context.Background(), "nobody@example.com")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want %v", err, ErrNotFound)
		}
	})
}

// TestStore_FindAuthenticatedUser はIDでの取得を検証する。
func TestStore_FindAuthenticatedUser(t *testing.T) {
	t.Parallel()

	t.Run("id・名前・メールアドレスが返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		seedUser(t, s, User{ID: "user-1", Name: "Taro", Email: "taro@example.com", PasswordHash: "hash"})

		got, err := s.FindAuthenticatedUser(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("FindAuthenticatedUser()でエラーが発生: %v", err)
		}
		want := middleware.AuthenticatedUser{ID: "user-1", Name: "Taro", Email: "taro@example.com"}
		if got != want {
			t.Errorf("FindAuthenticatedUser() = %+v, want %+v", got, want)
		}
	})

	t.Run("存在しない場合はmiddleware.ErrUserNotFoundになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)

		_, err := s.FindAuthenticatedUser(context.Background(), "missing")
		if !errors.Is(err, middleware.ErrUserNotFound) {
			t.Errorf("err = %v, want %v", err, middleware.ErrUserNotFound)
		}
	})

	t.Run("接続を閉じた後はErrUserNotFound以外のエラーになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close()でエラーが発生: %v", err)
		}

		_, err := s.FindAuthenticatedUser(context.Background(), "user-1")
		if err == nil || errors.Is(err, middleware.ErrUserNotFound) {
			t.Errorf("err = %v, want store error", err)
		}
	})

	t.Run("middleware.UserFinderとして使えること", func(t *testing.T) {
		t.Parallel()

		var _ middleware.UserFinder = newTestStore(t)
	})
}

// TestOpen はファイルベースのDBを検証する。
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("再オープンしてもデータとスキーマが保持されること", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "auth.db")
		ctx := context.Background()

		s1, err := Open(ctx, path, nil)
		if err != nil {
			t.Fatalf("Open()でエラーが発生: %v", err)
		}
		seedUser(t, s1, User{ID: "user-1", Name: "Taro", Email: "taro@example.com", PasswordHash: "hash"})
		if err := s1.Close(); err != nil {
			t.Fatalf("Close()でエラーが発生: %v", err)
		}

		s2, err := Open(ctx, path, nil)
		if err != nil {
			t.Fatalf("再Open()でエラーが発生: %v", err)
		}
		t.Cleanup(func() { s2.Close() })

		if err := s2.Ping(ctx); err != nil {
			t.Fatalf("Ping()でエラーが発生: %v", err)
		}
		if _, err := s2.FindAuthenticatedUser(ctx, "user-1"); err != nil {
			t.Errorf("FindAuthenticatedUser()でエラーが発生: %v", err)
		}
	})
}
