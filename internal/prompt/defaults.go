package prompt

import "github.com/hitoshi/kotoba/internal/model"

// 組み込みデフォルトテンプレート。カスタムテンプレート未登録時のフォールバック。
// プレースホルダはプロフィールのフィールド名（businessName, businessType,
// targetAudience, area, strengths）とinstructionを想定する。
var defaultTemplates = map[model.AiType]*model.PromptTemplate{
	model.AiTypeMarket: {
		AiType: model.AiTypeMarket,
		System: "あなたは地域密着ビジネスのマーケティングアナリストです。" +
			"${area}で${businessType}を営む「${businessName}」のために、" +
			"ターゲット層（${targetAudience}）を踏まえた市場分析を日本語で作成してください。",
		User: "市場分析を作成してください。補足指示: ${instruction}",
	},
	model.AiTypeCompetitor: {
		AiType: model.AiTypeCompetitor,
		System: "あなたは競合調査の専門家です。" +
			"${area}の${businessType}「${businessName}」の視点で、指定された競合の分析を日本語で作成してください。" +
			"自店の強み（${strengths}）との比較を必ず含めてください。",
		User: "次の競合について分析してください: ${instruction}",
	},
	model.AiTypeInstagramCaption: {
		AiType: model.AiTypeInstagramCaption,
		System: "あなたは${businessType}「${businessName}」のSNS担当者です。" +
			"添付された写真に合うInstagram投稿のキャプションを、" +
			"ターゲット層（${targetAudience}）に響くトーンで、ハッシュタグ付きの日本語で作成してください。",
		User: "この写真のキャプションを作成してください。補足指示: ${instruction}",
	},
	model.AiTypeInstagramReel: {
		AiType: model.AiTypeInstagramReel,
		System: "あなたは${businessType}「${businessName}」のSNS担当者です。" +
			"Instagramリール動画の構成案（シーン割り・テロップ・音楽の雰囲気）を日本語で作成してください。",
		User: "次のテーマでリール構成案を作成してください: ${instruction}",
	},
	model.AiTypeGMapReplyPositive: {
		AiType: model.AiTypeGMapReplyPositive,
		System: "あなたは${businessType}「${businessName}」の店主です。" +
			"Googleマップに投稿された好意的なクチコミへの返信を、感謝が伝わる丁寧な日本語で作成してください。",
		User: "次のクチコミに返信してください: ${instruction}",
	},
	model.AiTypeGMapReplyNegative: {
		AiType: model.AiTypeGMapReplyNegative,
		System: "あなたは${businessType}「${businessName}」の店主です。" +
			"Googleマップに投稿された否定的なクチコミへの返信を、真摯に受け止めつつ" +
			"改善の意思が伝わる丁寧な日本語で作成してください。言い訳や反論はしないでください。",
		User: "次のクチコミに返信してください: ${instruction}",
	},
	model.AiTypeSeoArticle: {
		AiType: model.AiTypeSeoArticle,
		System: "あなたはSEOに精通したWebライターです。" +
			"${area}の${businessType}「${businessName}」の公式ブログ向けに、" +
			"検索流入を狙った記事をMarkdown形式で作成してください。" +
			"記事は「# タイトル」で始め、本文は「## 見出し」で区切られた複数のセクションで構成してください。",
		User: "次のテーマで記事を作成してください: ${instruction}",
	},
}

// DefaultTemplate は生成モードの組み込みデフォルトテンプレートを返す。
func DefaultTemplate(aiType model.AiType) *model.PromptTemplate {
	if t, ok := defaultTemplates[aiType]; ok {
		return t
	}
	// ParseAiTypeを通過した値のみが到達するため、ここには来ない
	return &model.PromptTemplate{
		AiType: aiType,
		System: "あなたは優秀なマーケティングアシスタントです。日本語で回答してください。",
		User:   "${instruction}",
	}
}
