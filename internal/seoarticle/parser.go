// Package seoarticle はSEO記事の構造解析と修正エンジンを提供する。
package seoarticle

import (
	"strings"

	"github.com/hitoshi/kotoba/internal/model"
)

// Section は記事の見出し1つ分のまとまり。
type Section struct {
	Heading string // 見出しテキスト（##マーカーを除く）
	Body    string // 次の見出しまたは文末までの本文
}

// Article は見出し構造に分解されたSEO記事。
type Article struct {
	Title    string
	Sections []Section
}

// Parse はMarkdown記事をタイトルとセクション列に分解する。
// 先頭の「# タイトル」行と、それに続く「## 見出し」区切りのセクションを想定する。
// セクションが1つも取れない場合はUNPARSEABLE_ARTICLEエラーを返す。
func Parse(markdown string) (*Article, error) {
	lines := strings.Split(markdown, "\n")

	article := &Article{}
	var current *Section
	var body []string

	flush := func() {
		if current != nil {
			current.Body = strings.TrimRight(strings.Join(body, "\n"), "\n")
			article.Sections = append(article.Sections, *current)
			current = nil
		}
		body = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "## "):
			flush()
			current = &Section{Heading: strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))}
		case strings.HasPrefix(trimmed, "# ") && article.Title == "" && current == nil:
			article.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		default:
			if current != nil {
				body = append(body, line)
			}
		}
	}
	flush()

	if len(article.Sections) == 0 {
		return nil, model.NewUnparseableArticleError()
	}

	return article, nil
}

// Render は記事をMarkdownに組み直す。
// 対象外セクションの本文には手を加えず、元の並び順を保つ。
func Render(article *Article) string {
	var b strings.Builder
	if article.Title != "" {
		b.WriteString("# ")
		b.WriteString(article.Title)
		b.WriteString("\n\n")
	}
	for i, section := range article.Sections {
		b.WriteString("## ")
		b.WriteString(section.Heading)
		b.WriteString("\n")
		b.WriteString(section.Body)
		if i < len(article.Sections)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}
