// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// リクエストボディの検証（SignupValidation, LoginValidation）、
// Bearerトークンの検証とユーザー解決（JWTAuth）、リクエストログ、
// パニックリカバリ、CORS設定を含む。
// いずれのミドルウェアも失敗時はJSONでエラーを返し、後続のハンドラを中断する。
package middleware
