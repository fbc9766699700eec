package model

// AiType は生成モードを表す閉じた列挙型。
// 文字列キーのマップではなくswitchで網羅的に扱うことで、
// 新しいモード追加時のルール定義漏れをコンパイル時に近い形で防ぐ。
type AiType string

const (
	// AiTypeMarket は商圏・市場分析。
	AiTypeMarket AiType = "market"
	// AiTypeCompetitor は競合分析。
	AiTypeCompetitor AiType = "competitor"
	// AiTypeInstagramCaption はInstagram投稿キャプション生成。
	AiTypeInstagramCaption AiType = "instagram-caption"
	// AiTypeInstagramReel はInstagramリール台本生成。
	AiTypeInstagramReel AiType = "instagram-reel"
	// AiTypeGMapReplyPositive はGoogleマップ高評価クチコミへの返信生成。
	AiTypeGMapReplyPositive AiType = "gmap-reply-positive"
	// AiTypeGMapReplyNegative はGoogleマップ低評価クチコミへの返信生成。
	AiTypeGMapReplyNegative AiType = "gmap-reply-negative"
	// AiTypeSeoArticle はSEO記事生成。
	AiTypeSeoArticle AiType = "seo-article"
)

// AllAiTypes は全生成モードの一覧を返す。
func AllAiTypes() []AiType {
	return []AiType{
		AiTypeMarket,
		AiTypeCompetitor,
		AiTypeInstagramCaption,
		AiTypeInstagramReel,
		AiTypeGMapReplyPositive,
		AiTypeGMapReplyNegative,
		AiTypeSeoArticle,
	}
}

// ParseAiType は文字列をAiTypeに変換する。未知の値はfalseを返す。
func ParseAiType(s string) (AiType, bool) {
	t := AiType(s)
	switch t {
	case AiTypeMarket, AiTypeCompetitor,
		AiTypeInstagramCaption, AiTypeInstagramReel,
		AiTypeGMapReplyPositive, AiTypeGMapReplyNegative,
		AiTypeSeoArticle:
		return t, true
	}
	return "", false
}

// ValidationRule は生成モードごとのリクエスト形状の制約。
type ValidationRule struct {
	MaxImages          int  // 添付画像の上限枚数
	RequireImage       bool // 画像添付が必須か
	RequireInstruction bool // 指示テキストが必須か
}

// Rule は生成モードのバリデーションルールを返す。
// 全モードをswitchで網羅する。
func (t AiType) Rule() ValidationRule {
	switch t {
	case AiTypeMarket:
		return ValidationRule{MaxImages: 3}
	case AiTypeCompetitor:
		return ValidationRule{MaxImages: 3, RequireInstruction: true}
	case AiTypeInstagramCaption:
		return ValidationRule{MaxImages: 4, RequireImage: true}
	case AiTypeInstagramReel:
		return ValidationRule{MaxImages: 1, RequireInstruction: true}
	case AiTypeGMapReplyPositive, AiTypeGMapReplyNegative:
		return ValidationRule{MaxImages: 0, RequireInstruction: true}
	case AiTypeSeoArticle:
		return ValidationRule{MaxImages: 0, RequireInstruction: true}
	default:
		// ParseAiTypeを通過した値のみが到達する前提
		return ValidationRule{}
	}
}
