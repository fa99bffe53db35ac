// Package user はSQLiteに保存されたユーザーレコードへのアクセスを提供する。
//
// 認証ミドルウェアからは middleware.UserFinder として利用され、
// トークンの主体をid・名前・メールアドレスのみに絞って解決する。
package user
