package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/kotoba/internal/model"
)

type mockUsageEventRepo struct {
	createFn               func(ctx context.Context, projectID string, usedAt time.Time) (*model.UsageEvent, error)
	countByProjectWithinFn func(ctx context.Context, projectID string, from, to time.Time) (int, error)
}

func (m *mockUsageEventRepo) Create(ctx context.Context, projectID string, usedAt time.Time) (*model.UsageEvent, error) {
	if m.createFn != nil {
		return m.createFn(ctx, projectID, usedAt)
	}
	return &model.UsageEvent{ID: 1, ProjectID: projectID, UsedAt: usedAt}, nil
}

func (m *mockUsageEventRepo) CountByProjectWithin(ctx context.Context, projectID string, from, to time.Time) (int, error) {
	if m.countByProjectWithinFn != nil {
		return m.countByProjectWithinFn(ctx, projectID, from, to)
	}
	return 0, nil
}

type mockProjectRepo struct {
	findByProjectIDFn func(ctx context.Context, projectID string) (*model.Project, error)
}

func (m *mockProjectRepo) FindByProjectID(ctx context.Context, projectID string) (*model.Project, error) {
	if m.findByProjectIDFn != nil {
		return m.findByProjectIDFn(ctx, projectID)
	}
	return nil, nil
}

func (m *mockProjectRepo) ListByAuthID(ctx context.Context, authID string) ([]*model.Project, error) {
	return nil, nil
}

func (m *mockProjectRepo) UpdateLimit(ctx context.Context, projectID string, apiUsageLimit int, seoAddonEnabled bool) error {
	return nil
}

func TestMonthWindow(t *testing.T) {
	tests := []struct {
		name     string
		at       time.Time
		wantFrom time.Time
		wantTo   time.Time
	}{
		{
			name:     "月の途中",
			at:       time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2025, 6, 1, 0, 0, 0, 0, jst),
			wantTo:   time.Date(2025, 7, 1, 0, 0, 0, 0, jst).Add(-time.Nanosecond),
		},
		{
			// UTCでは5月31日23時だがJSTでは6月1日になっている
			name:     "UTC月末はJSTでは翌月",
			at:       time.Date(2025, 5, 31, 23, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2025, 6, 1, 0, 0, 0, 0, jst),
			wantTo:   time.Date(2025, 7, 1, 0, 0, 0, 0, jst).Add(-time.Nanosecond),
		},
		{
			// JSTの1月1日0時ちょうどは新しい月に属する
			name:     "JST月初ちょうど",
			at:       time.Date(2025, 1, 1, 0, 0, 0, 0, jst),
			wantFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, jst),
			wantTo:   time.Date(2025, 2, 1, 0, 0, 0, 0, jst).Add(-time.Nanosecond),
		},
		{
			name:     "年末年始の跨ぎ",
			at:       time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, jst),
			wantTo:   time.Date(2025, 2, 1, 0, 0, 0, 0, jst).Add(-time.Nanosecond),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := MonthWindow(tt.at)
			if !from.Equal(tt.wantFrom) {
				t.Errorf("from: expected %v, got %v", tt.wantFrom, from)
			}
			if !to.Equal(tt.wantTo) {
				t.Errorf("to: expected %v, got %v", tt.wantTo, to)
			}
		})
	}
}

func TestAdmit_UnderLimit(t *testing.T) {
	usageEvents := &mockUsageEventRepo{
		countByProjectWithinFn: func(ctx context.Context, projectID string, from, to time.Time) (int, error) {
			return 29, nil
		},
	}
	svc := NewService(usageEvents, &mockProjectRepo{})

	project := &model.Project{ProjectID: "proj-1", APIUsageLimit: 30}
	if err := svc.Admit(context.Background(), project); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAdmit_AtLimit(t *testing.T) {
	usageEvents := &mockUsageEventRepo{
		countByProjectWithinFn: func(ctx context.Context, projectID string, from, to time.Time) (int, error) {
			return 30, nil
		},
	}
	svc := NewService(usageEvents, &mockProjectRepo{})

	project := &model.Project{ProjectID: "proj-1", APIUsageLimit: 30}
	err := svc.Admit(context.Background(), project)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeQuotaExceeded {
		t.Errorf("expected QUOTA_EXCEEDED, got %v", err)
	}
}

// 上限0のプロジェクトは利用実績がなくても常に拒否される。
func TestAdmit_ZeroLimit(t *testing.T) {
	usageEvents := &mockUsageEventRepo{
		countByProjectWithinFn: func(ctx context.Context, projectID string, from, to time.Time) (int, error) {
			return 0, nil
		},
	}
	svc := NewService(usageEvents, &mockProjectRepo{})

	project := &model.Project{ProjectID: "proj-1", APIUsageLimit: 0}
	err := svc.Admit(context.Background(), project)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeQuotaExceeded {
		t.Errorf("expected QUOTA_EXCEEDED, got %v", err)
	}
}

// 月が変わると集計範囲も変わり、前月分はカウントに含まれない。
func TestCountThisMonth_WindowFollowsClock(t *testing.T) {
	var gotFrom, gotTo time.Time
	usageEvents := &mockUsageEventRepo{
		countByProjectWithinFn: func(ctx context.Context, projectID string, from, to time.Time) (int, error) {
			gotFrom, gotTo = from, to
			return 5, nil
		},
	}
	svc := NewService(usageEvents, &mockProjectRepo{})
	svc.now = func() time.Time {
		return time.Date(2025, 7, 1, 0, 0, 0, 0, jst)
	}

	count, err := svc.CountThisMonth(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5, got %d", count)
	}
	if !gotFrom.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, jst)) {
		t.Errorf("expected July window start, got %v", gotFrom)
	}
	if !gotTo.Before(time.Date(2025, 8, 1, 0, 0, 0, 0, jst)) {
		t.Errorf("window end must not reach August, got %v", gotTo)
	}
}

func TestRecord(t *testing.T) {
	usedAt := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	usageEvents := &mockUsageEventRepo{}
	projects := &mockProjectRepo{
		findByProjectIDFn: func(ctx context.Context, projectID string) (*model.Project, error) {
			return &model.Project{ProjectID: projectID, APIUsageLimit: 30}, nil
		},
	}
	svc := NewService(usageEvents, projects)

	event, err := svc.Record(context.Background(), "proj-1", usedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ProjectID != "proj-1" || !event.UsedAt.Equal(usedAt) {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestRecord_UnknownProject(t *testing.T) {
	usageEvents := &mockUsageEventRepo{
		createFn: func(ctx context.Context, projectID string, usedAt time.Time) (*model.UsageEvent, error) {
			t.Fatal("event must not be recorded for an unknown project")
			return nil, nil
		},
	}
	svc := NewService(usageEvents, &mockProjectRepo{})

	_, err := svc.Record(context.Background(), "missing", time.Now())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProjectNotFound {
		t.Errorf("expected PROJECT_NOT_FOUND, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	usageEvents := &mockUsageEventRepo{
		countByProjectWithinFn: func(ctx context.Context, projectID string, from, to time.Time) (int, error) {
			return 12, nil
		},
	}
	projects := &mockProjectRepo{
		findByProjectIDFn: func(ctx context.Context, projectID string) (*model.Project, error) {
			return &model.Project{ProjectID: projectID, APIUsageLimit: 30}, nil
		},
	}
	svc := NewService(usageEvents, projects)

	summary, err := svc.Summary(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Used != 12 || summary.Limit != 30 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}
