// Package config は環境変数から認証サービスの設定を読み込む。
package config
