package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/hitoshi/kotoba/internal/generation"
	"github.com/hitoshi/kotoba/internal/middleware"
	"github.com/hitoshi/kotoba/internal/model"
	"github.com/hitoshi/kotoba/internal/quota"
	"github.com/hitoshi/kotoba/internal/seoarticle"
	"github.com/hitoshi/kotoba/internal/worker/usage"
)

// --- テスト用モック ---

type mockAuthService struct {
	loginFn      func(ctx context.Context, email, password string) (*model.Session, error)
	loginAdminFn func(ctx context.Context, email, password string) (*model.AdminSession, error)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.Session, error) {
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthService) LoginAdmin(ctx context.Context, email, password string) (*model.AdminSession, error) {
	return m.loginAdminFn(ctx, email, password)
}

type mockSessionService struct {
	logoutFn        func(ctx context.Context, sessionID string) error
	logoutAdminFn   func(ctx context.Context, sessionID string) error
	switchProjectFn func(ctx context.Context, session *model.Session, projectID string) error
}

func (m *mockSessionService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockSessionService) LogoutAdmin(ctx context.Context, sessionID string) error {
	if m.logoutAdminFn != nil {
		return m.logoutAdminFn(ctx, sessionID)
	}
	return nil
}

func (m *mockSessionService) SwitchProject(ctx context.Context, session *model.Session, projectID string) error {
	if m.switchProjectFn != nil {
		return m.switchProjectFn(ctx, session, projectID)
	}
	return nil
}

type mockProjectRepo struct {
	findByProjectIDFn func(ctx context.Context, projectID string) (*model.Project, error)
	listByAuthIDFn    func(ctx context.Context, authID string) ([]*model.Project, error)
	updateLimitFn     func(ctx context.Context, projectID string, apiUsageLimit int, seoAddonEnabled bool) error
}

func (m *mockProjectRepo) FindByProjectID(ctx context.Context, projectID string) (*model.Project, error) {
	if m.findByProjectIDFn != nil {
		return m.findByProjectIDFn(ctx, projectID)
	}
	return nil, nil
}

func (m *mockProjectRepo) ListByAuthID(ctx context.Context, authID string) ([]*model.Project, error) {
	if m.listByAuthIDFn != nil {
		return m.listByAuthIDFn(ctx, authID)
	}
	return nil, nil
}

func (m *mockProjectRepo) UpdateLimit(ctx context.Context, projectID string, apiUsageLimit int, seoAddonEnabled bool) error {
	if m.updateLimitFn != nil {
		return m.updateLimitFn(ctx, projectID, apiUsageLimit, seoAddonEnabled)
	}
	return nil
}

type mockHistoryRepo struct {
	createFn             func(ctx context.Context, history *model.AnalysisHistory) error
	findByProjectAndIDFn func(ctx context.Context, projectID, id string) (*model.AnalysisHistory, error)
	listByProjectIDFn    func(ctx context.Context, projectID string, limit int) ([]*model.AnalysisHistory, error)
	listLineageFn        func(ctx context.Context, projectID, rootID string) ([]*model.AnalysisHistory, error)
}

func (m *mockHistoryRepo) Create(ctx context.Context, history *model.AnalysisHistory) error {
	if m.createFn != nil {
		return m.createFn(ctx, history)
	}
	return nil
}

func (m *mockHistoryRepo) FindByProjectAndID(ctx context.Context, projectID, id string) (*model.AnalysisHistory, error) {
	if m.findByProjectAndIDFn != nil {
		return m.findByProjectAndIDFn(ctx, projectID, id)
	}
	return nil, nil
}

func (m *mockHistoryRepo) ListByProjectID(ctx context.Context, projectID string, limit int) ([]*model.AnalysisHistory, error) {
	if m.listByProjectIDFn != nil {
		return m.listByProjectIDFn(ctx, projectID, limit)
	}
	return nil, nil
}

func (m *mockHistoryRepo) ListLineage(ctx context.Context, projectID, rootID string) ([]*model.AnalysisHistory, error) {
	if m.listLineageFn != nil {
		return m.listLineageFn(ctx, projectID, rootID)
	}
	return nil, nil
}

type mockPromptRepo struct {
	findByAiTypeFn func(ctx context.Context, aiType model.AiType) (*model.PromptTemplate, error)
	upsertFn       func(ctx context.Context, template *model.PromptTemplate) error
}

func (m *mockPromptRepo) FindByAiType(ctx context.Context, aiType model.AiType) (*model.PromptTemplate, error) {
	if m.findByAiTypeFn != nil {
		return m.findByAiTypeFn(ctx, aiType)
	}
	return nil, nil
}

func (m *mockPromptRepo) Upsert(ctx context.Context, template *model.PromptTemplate) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, template)
	}
	return nil
}

type mockGenerationService struct {
	generateFn func(ctx context.Context, req generation.Request, sink generation.ChunkSink) (*model.AnalysisHistory, error)
}

func (m *mockGenerationService) Generate(ctx context.Context, req generation.Request, sink generation.ChunkSink) (*model.AnalysisHistory, error) {
	return m.generateFn(ctx, req, sink)
}

type mockRevisionService struct {
	reviseFn func(ctx context.Context, project *model.Project, historyID, instruction string) (*seoarticle.Result, error)
}

func (m *mockRevisionService) Revise(ctx context.Context, project *model.Project, historyID, instruction string) (*seoarticle.Result, error) {
	return m.reviseFn(ctx, project, historyID, instruction)
}

type mockQuotaAdmitter struct {
	admitFn func(ctx context.Context, project *model.Project) error
}

func (m *mockQuotaAdmitter) Admit(ctx context.Context, project *model.Project) error {
	if m.admitFn != nil {
		return m.admitFn(ctx, project)
	}
	return nil
}

type mockUsageSummarizer struct {
	summaryFn func(ctx context.Context, projectID string) (*quota.UsageSummary, error)
}

func (m *mockUsageSummarizer) Summary(ctx context.Context, projectID string) (*quota.UsageSummary, error) {
	return m.summaryFn(ctx, projectID)
}

// fakeRecorder は課金キューへの投入を記録するフェイク。
type fakeRecorder struct {
	events []usage.Event
}

func (f *fakeRecorder) Enqueue(_ context.Context, event usage.Event) {
	f.events = append(f.events, event)
}

var _ generation.UsageEnqueuer = (*fakeRecorder)(nil)

// --- テスト用ヘルパー ---

// withSessionContext はリクエストにプロジェクト付きセッションを注入する。
func withSessionContext(req *http.Request, projectID string) *http.Request {
	sess := testSession(projectID)
	return req.WithContext(middleware.ContextWithSession(req.Context(), sess))
}

func testSession(projectID string) *model.Session {
	return &model.Session{
		ID:        "sess-test",
		AuthID:    "auth-test",
		ProjectID: &projectID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func testProject(projectID string) *model.Project {
	return &model.Project{
		ProjectID:       projectID,
		Name:            "テスト店舗",
		AuthID:          "auth-test",
		APIUsageLimit:   100,
		SeoAddonEnabled: true,
	}
}

func newRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
