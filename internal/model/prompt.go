package model

import "time"

// PromptTemplate は生成モードごとのカスタムプロンプトテンプレート。
// SystemとUserには `${name}` 形式のプレースホルダを含めることができ、
// プロジェクトプロフィールのフィールドと指示テキストで置換される。
type PromptTemplate struct {
	AiType    AiType
	System    string
	User      string
	UpdatedAt time.Time
}
