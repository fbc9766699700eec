// Package model はドメインモデルを定義する。
package model

import "time"

// Session はエンドユーザーのログインセッションを表す。
// ProjectIDは遅延解決される: ログイン直後はnilで、検証時にオーナーの
// 最初のプロジェクトが自動的に設定される。
type Session struct {
	ID        string
	AuthID    string
	ProjectID *string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// AdminSession は管理者のログインセッションを表す。
// プロジェクトへの紐付けは持たない。
type AdminSession struct {
	ID        string
	ExpiresAt time.Time
	CreatedAt time.Time
}
