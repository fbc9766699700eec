// Package prompt はLLMに渡すシステム・ユーザープロンプトの組み立てを提供する。
// テンプレートはDB上のカスタム版と組み込みのデフォルト版の二層構成。
package prompt

import (
	"context"
	"fmt"
	"regexp"

	"github.com/hitoshi/kotoba/internal/model"
	"github.com/hitoshi/kotoba/internal/repository"
)

// placeholderPattern は ${name} 形式のプレースホルダにマッチする。
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Resolved は置換済みのプロンプト一式。
type Resolved struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Resolver はテンプレートの解決とプレースホルダ置換を担当する。
type Resolver struct {
	prompts  repository.PromptRepository
	profiles repository.ProjectProfileRepository
}

// NewResolver はResolverを生成する。
func NewResolver(prompts repository.PromptRepository, profiles repository.ProjectProfileRepository) *Resolver {
	return &Resolver{
		prompts:  prompts,
		profiles: profiles,
	}
}

// Resolve は生成モードのテンプレートを取得し、事業プロフィールと
// 修正指示を使ってプレースホルダを置換したプロンプトを返す。
// カスタムテンプレート未登録の場合は組み込みデフォルトを使用する。
func (r *Resolver) Resolve(ctx context.Context, projectID string, aiType model.AiType, instruction string) (*Resolved, error) {
	template, err := r.prompts.FindByAiType(ctx, aiType)
	if err != nil {
		return nil, fmt.Errorf("failed to find prompt template: %w", err)
	}
	if template == nil {
		template = DefaultTemplate(aiType)
	}

	profile, err := r.profiles.FindByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find project profile: %w", err)
	}

	vars := buildSubstitutionMap(profile, instruction)
	return &Resolved{
		System: Substitute(template.System, vars),
		User:   Substitute(template.User, vars),
	}, nil
}

// buildSubstitutionMap はプロフィールのうち文字列値だけを採用し、
// instructionキーを加えた置換マップを作る。指示が空でも空文字として置換する。
func buildSubstitutionMap(profile map[string]any, instruction string) map[string]string {
	vars := make(map[string]string, len(profile)+1)
	for key, value := range profile {
		if s, ok := value.(string); ok {
			vars[key] = s
		}
	}
	vars["instruction"] = instruction
	return vars
}

// Substitute はテンプレート中の ${key} をマップの値で置換する。
// マップに存在しないキーはリテラルのまま残す。ネスト置換は行わない。
func Substitute(template string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := vars[key]; ok {
			return value
		}
		return match
	})
}
