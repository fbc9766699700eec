package model

import "time"

// Auth はログイン認証情報のオーナーを表す。
// 1つのAuthは複数のProjectを所有できる。
type Auth struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Project はテナント（顧客の店舗・事業所）のワークスペースを表す。
// 月間利用上限とSEO記事アドオンの有効フラグを持つ。
type Project struct {
	ProjectID       string
	Name            string
	AuthID          string
	APIUsageLimit   int
	SeoAddonEnabled bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
