package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptは72バイトまでしか扱えないため、SHA-256で固定長にしてからハッシュ化する。
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// hashPassword はパスワードのbcryptハッシュを生成する。
func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(password), cost)
	if err != nil {
		return "", fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}
	return string(hash), nil
}

// checkPassword はパスワードがハッシュと一致するかを返す。
// 一致しない場合はfalseとnilを返し、ハッシュが壊れている場合のみエラーを返す。
func checkPassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), prehash(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("パスワードの照合に失敗: %w", err)
	}
	return true, nil
}
