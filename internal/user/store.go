package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nao1215/gatekeeper/pkg/middleware"
)

var (
	// ErrNotFound は該当するユーザーが存在しないことを表す。
	ErrNotFound = errors.New("ユーザーが見つかりません")
	// ErrEmailTaken はメールアドレスが既に登録されていることを表す。
	ErrEmailTaken = errors.New("メールアドレスは既に登録されています")
)

// User はusersテーブルの1行。
type User struct {
	// ID はユーザーの一意識別子。
	ID string
	// Name は表示名。
	Name string
	// Email はメールアドレス。
	Email string
	// PasswordHash はbcryptハッシュ。
	PasswordHash string
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// Store はSQLiteに保存されたユーザーを扱う。
type Store struct {
	db *sql.DB
}

// Open はSQLiteデータベースを開き、スキーマを適用したStoreを返す。
// pathに ":memory:" を指定するとインメモリDBになる。
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteの書き込みは直列化されるため接続は1本に固定する
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New は既存の接続にスキーマを適用したStoreを返す。
func New(ctx context.Context, db *sql.DB, logger *zap.Logger) (*Store, error) {
	if err := initSchema(ctx, db, logger); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースに到達できるかを確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create はユーザーを登録する。
// メールアドレスが既に存在する場合は ErrEmailTaken を返す。
func (s *Store) Create(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password_hash) VALUES (?, ?, ?, ?)",
		u.ID, u.Name, u.Email, u.PasswordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("ユーザーの登録に失敗: %w", err)
	}
	return nil
}

// FindByEmail はメールアドレスでユーザーを取得する。大文字小文字は区別しない。
func (s *Store) FindByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?",
		email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return u, nil
}

// FindAuthenticatedUser はIDでユーザーを取得し、id・名前・メールアドレスのみを返す。
// middleware.UserFinder を満たす。該当しない場合は middleware.ErrUserNotFound を返す。
func (s *Store) FindAuthenticatedUser(ctx context.Context, id string) (middleware.AuthenticatedUser, error) {
	var u middleware.AuthenticatedUser
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return middleware.AuthenticatedUser{}, fmt.Errorf("id=%s: %w", id, middleware.ErrUserNotFound)
	}
	if err != nil {
		return middleware.AuthenticatedUser{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return u, nil
}

// isUniqueViolation はUNIQUE制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
