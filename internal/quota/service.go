// Package quota はプロジェクト単位の月間AI利用上限を管理する。
// 月の区切りは課金と合わせて常に日本時間（UTC+9）で判定する。
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/kotoba/internal/model"
	"github.com/hitoshi/kotoba/internal/repository"
)

// jst は月境界の判定に使う固定タイムゾーン。サマータイムは存在しない。
var jst = time.FixedZone("JST", 9*60*60)

// MonthWindow は指定時刻を含むJSTの月の範囲を返す。両端を含む。
func MonthWindow(at time.Time) (from, to time.Time) {
	local := at.In(jst)
	from = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, jst)
	to = from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return from, to
}

// Service は利用イベントの記録と上限判定を提供する。
type Service struct {
	usageEvents repository.UsageEventRepository
	projects    repository.ProjectRepository

	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(usageEvents repository.UsageEventRepository, projects repository.ProjectRepository) *Service {
	return &Service{
		usageEvents: usageEvents,
		projects:    projects,
		now:         time.Now,
	}
}

// CountThisMonth は当月（JST）の利用回数を返す。
func (s *Service) CountThisMonth(ctx context.Context, projectID string) (int, error) {
	from, to := MonthWindow(s.now())
	count, err := s.usageEvents.CountByProjectWithin(ctx, projectID, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage events: %w", err)
	}
	return count, nil
}

// Admit はプロジェクトの当月利用回数が上限未満であることを確認する。
// 上限に達している場合はQUOTA_EXCEEDEDエラーを返す。
// 判定と記録はトランザクションで括らない。わずかな超過は許容し、
// 生成リクエストの直列化を避ける。
func (s *Service) Admit(ctx context.Context, project *model.Project) error {
	count, err := s.CountThisMonth(ctx, project.ProjectID)
	if err != nil {
		return err
	}
	if count >= project.APIUsageLimit {
		return model.NewQuotaExceededError()
	}
	return nil
}

// Record は利用イベントを1件追記する。
// プロジェクトが存在しない場合は記録せずエラーを返す。
func (s *Service) Record(ctx context.Context, projectID string, usedAt time.Time) (*model.UsageEvent, error) {
	project, err := s.projects.FindByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError()
	}

	event, err := s.usageEvents.Create(ctx, projectID, usedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record usage event: %w", err)
	}
	return event, nil
}

// UsageSummary は管理画面向けの当月の利用状況。
type UsageSummary struct {
	ProjectID string `json:"projectId"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Summary はプロジェクトの当月利用状況を返す。
func (s *Service) Summary(ctx context.Context, projectID string) (*UsageSummary, error) {
	project, err := s.projects.FindByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError()
	}

	from, to := MonthWindow(s.now())
	count, err := s.usageEvents.CountByProjectWithin(ctx, projectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count usage events: %w", err)
	}

	return &UsageSummary{
		ProjectID: projectID,
		Used:      count,
		Limit:     project.APIUsageLimit,
		From:      from.Format(time.RFC3339),
		To:        to.Format(time.RFC3339),
	}, nil
}
