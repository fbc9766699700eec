package seoarticle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/kotoba/internal/llm"
	"github.com/hitoshi/kotoba/internal/metrics"
	"github.com/hitoshi/kotoba/internal/model"
	"github.com/hitoshi/kotoba/internal/prompt"
	"github.com/hitoshi/kotoba/internal/repository"
	"github.com/hitoshi/kotoba/internal/security"
)

// RevisionService はSEO記事の部分修正を実行する。
// 修正指示がどのセクションを指すかをLLMで判定し、対象セクションだけを
// 再生成して新しいバージョンの記事として保存する。
type RevisionService struct {
	histories repository.AnalysisHistoryRepository
	resolver  *prompt.Resolver
	llm       llm.Client
	sanitizer security.InstructionSanitizerService
	collector metrics.MetricsCollector

	now func() time.Time
}

// NewRevisionService はRevisionServiceを生成する。
func NewRevisionService(
	histories repository.AnalysisHistoryRepository,
	resolver *prompt.Resolver,
	llmClient llm.Client,
	sanitizer security.InstructionSanitizerService,
	collector metrics.MetricsCollector,
) *RevisionService {
	return &RevisionService{
		histories: histories,
		resolver:  resolver,
		llm:       llmClient,
		sanitizer: sanitizer,
		collector: collector,
		now:       time.Now,
	}
}

// Revise は記事の修正を実行し、新しいバージョンの履歴を返す。
//
// Result は修正の成果物。新しい履歴と、差し替えたセクションの
// 0始まりインデックス列（昇順）を保持する。
type Result struct {
	History         *model.AnalysisHistory
	UpdatedSections []int
}

// 対象セクションの再生成はall-or-nothing: 1つでも失敗した場合は
// 記事を一切変更せずエラーを返す。部分的な保存は行わない。
func (s *RevisionService) Revise(ctx context.Context, project *model.Project, historyID, rawInstruction string) (*Result, error) {
	if !project.SeoAddonEnabled {
		s.collector.RecordRevisionFailure("addon_disabled")
		return nil, model.NewAddonDisabledError()
	}

	instruction := s.sanitizer.Sanitize(rawInstruction)
	if instruction == "" {
		return nil, model.NewValidationError("修正指示が必要です")
	}

	target, err := s.histories.FindByProjectAndID(ctx, project.ProjectID, historyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find history: %w", err)
	}
	if target == nil {
		// 他プロジェクトの履歴も存在を秘匿して未検出として扱う
		return nil, model.NewHistoryNotFoundError(historyID)
	}
	if target.AiType != model.AiTypeSeoArticle {
		return nil, model.NewValidationError("SEO記事以外の履歴は修正できません")
	}

	markdown := target.OutputText()
	if markdown == "" {
		s.collector.RecordRevisionFailure("unparseable")
		return nil, model.NewUnparseableArticleError()
	}

	article, err := Parse(markdown)
	if err != nil {
		s.collector.RecordRevisionFailure("unparseable")
		return nil, err
	}

	resolved, err := s.resolver.Resolve(ctx, project.ProjectID, model.AiTypeSeoArticle, instruction)
	if err != nil {
		return nil, err
	}

	targets, err := s.detectTargets(ctx, article, resolved.System, instruction)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		s.collector.RecordRevisionFailure("no_target_section")
		return nil, model.NewNoTargetSectionError()
	}

	// 対象セクションを全て再生成してから差し替える
	replacements := make(map[int]string, len(targets))
	for _, idx := range targets {
		body, err := s.regenerateSection(ctx, article, idx, resolved.System, instruction)
		if err != nil {
			s.collector.RecordRevisionFailure("regeneration_failed")
			return nil, err
		}
		replacements[idx] = body
	}

	revised := &Article{Title: article.Title, Sections: make([]Section, len(article.Sections))}
	copy(revised.Sections, article.Sections)
	for idx, body := range replacements {
		revised.Sections[idx].Body = body
	}

	history, err := s.persistRevision(ctx, target, instruction, Render(revised))
	if err != nil {
		return nil, err
	}

	sort.Ints(targets)

	s.collector.RecordRevisionSuccess()
	slog.Info("SEO記事の修正が完了しました",
		slog.String("project_id", project.ProjectID),
		slog.String("root_id", history.RootID()),
		slog.Int("version", history.Version),
		slog.Int("revised_sections", len(targets)),
	)
	return &Result{History: history, UpdatedSections: targets}, nil
}

// detectTargets は修正指示がどのセクションを指すかをLLMで判定する。
// 判定結果は0始まりのインデックス列で、範囲外と重複は除外される。
func (s *RevisionService) detectTargets(ctx context.Context, article *Article, systemPrompt, instruction string) ([]int, error) {
	var headings strings.Builder
	for i, section := range article.Sections {
		fmt.Fprintf(&headings, "%d: %s\n", i, section.Heading)
	}

	user := fmt.Sprintf(
		"以下はSEO記事のセクション見出し一覧です。\n%s\n"+
			"次の修正指示が対象とするセクションの番号を、カンマ区切りの数字のみで答えてください。"+
			"該当するセクションがない場合は「none」とだけ答えてください。\n\n修正指示: %s",
		headings.String(), instruction,
	)

	answer, err := llm.Complete(ctx, s.llm, llm.Request{System: systemPrompt, User: user})
	if err != nil {
		return nil, fmt.Errorf("failed to classify revision target: %w", err)
	}

	return parseTargetIndices(answer, len(article.Sections)), nil
}

// parseTargetIndices はLLMの回答からセクション番号を取り出す。
// 余計な文言が混ざっていても数字トークンだけを拾う。
func parseTargetIndices(answer string, sectionCount int) []int {
	fields := strings.FieldsFunc(answer, func(r rune) bool {
		return r < '0' || r > '9'
	})

	seen := make(map[int]bool)
	var indices []int
	for _, field := range fields {
		idx, err := strconv.Atoi(field)
		if err != nil || idx < 0 || idx >= sectionCount || seen[idx] {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
	}
	return indices
}

// regenerateSection は対象セクションの本文をLLMで再生成する。
// 空の結果は失敗として扱う。
func (s *RevisionService) regenerateSection(ctx context.Context, article *Article, idx int, systemPrompt, instruction string) (string, error) {
	section := article.Sections[idx]
	user := fmt.Sprintf(
		"記事タイトル: %s\nセクション見出し: %s\n\n現在の本文:\n%s\n\n"+
			"次の修正指示に従って、このセクションの本文だけを書き直してください。"+
			"見出し行は含めず、本文のMarkdownのみを出力してください。\n\n修正指示: %s",
		article.Title, section.Heading, section.Body, instruction,
	)

	body, err := llm.Complete(ctx, s.llm, llm.Request{System: systemPrompt, User: user})
	if err != nil {
		return "", model.NewRegenerationFailedError()
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", model.NewRegenerationFailedError()
	}
	return body, nil
}

// persistRevision はリネージ全体の最大バージョン+1で新しい履歴を保存する。
func (s *RevisionService) persistRevision(ctx context.Context, target *model.AnalysisHistory, instruction, markdown string) (*model.AnalysisHistory, error) {
	rootID := target.RootID()

	lineage, err := s.histories.ListLineage(ctx, target.ProjectID, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revision lineage: %w", err)
	}

	maxVersion := target.Version
	for _, h := range lineage {
		if h.Version > maxVersion {
			maxVersion = h.Version
		}
	}

	input, _ := json.Marshal(model.GenerationInput{Instruction: instruction})
	output, _ := json.Marshal(model.GenerationOutput{Output: markdown})

	history := &model.AnalysisHistory{
		ID:               uuid.NewString(),
		ProjectID:        target.ProjectID,
		AiType:           model.AiTypeSeoArticle,
		Input:            input,
		Output:           output,
		RevisionParentID: &rootID,
		Version:          maxVersion + 1,
		CreatedAt:        s.now(),
	}

	if err := s.histories.Create(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to persist revision: %w", err)
	}
	return history, nil
}
