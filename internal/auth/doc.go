// Package auth は認証サービスのHTTPサーバーを提供する。
//
// アカウント作成とログイン（JWT発行）、認証済みユーザー情報の取得を担当する。
// リクエストボディの検証とトークン検証は pkg/middleware のミドルウェアが行い、
// ハンドラは検証済みの値だけを扱う。
package auth
