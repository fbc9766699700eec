package model

import "time"

// UsageEvent はプロジェクトに対する1回の生成課金イベントを表す。
// 追記専用で、作成後に更新・削除されることはない。
type UsageEvent struct {
	ID        int64
	ProjectID string
	UsedAt    time.Time
}
