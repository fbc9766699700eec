package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/kotoba/internal/generation"
	"github.com/hitoshi/kotoba/internal/middleware"
	"github.com/hitoshi/kotoba/internal/model"
	"github.com/hitoshi/kotoba/internal/repository"
	"github.com/hitoshi/kotoba/internal/seoarticle"
	"github.com/hitoshi/kotoba/internal/worker/usage"
)

// RevisionServiceInterface はSEO記事修正サービスのインターフェース。
type RevisionServiceInterface interface {
	Revise(ctx context.Context, project *model.Project, historyID, instruction string) (*seoarticle.Result, error)
}

// QuotaAdmitterInterface はクォータ許可判定のインターフェース。
type QuotaAdmitterInterface interface {
	Admit(ctx context.Context, project *model.Project) error
}

// RevisionHandler はSEO記事修正のHTTPハンドラー。
// 修正もクォータを1回分消費する。課金は許可時点で確定し、
// 生成と同じ遅延記録キューに積まれる。
type RevisionHandler struct {
	service  RevisionServiceInterface
	projects repository.ProjectRepository
	quota    QuotaAdmitterInterface
	recorder generation.UsageEnqueuer

	now func() time.Time
}

// NewRevisionHandler はRevisionHandlerを生成する。
func NewRevisionHandler(
	service RevisionServiceInterface,
	projects repository.ProjectRepository,
	quota QuotaAdmitterInterface,
	recorder generation.UsageEnqueuer,
) *RevisionHandler {
	return &RevisionHandler{
		service:  service,
		projects: projects,
		quota:    quota,
		recorder: recorder,
		now:      time.Now,
	}
}

// reviseRequest はSEO記事修正リクエストのボディ。
type reviseRequest struct {
	HistoryID           string `json:"historyId"`
	RevisionInstruction string `json:"revisionInstruction"`
}

// reviseResponse はSEO記事修正のAPIレスポンス。
type reviseResponse struct {
	Output                 string `json:"output"`
	HistoryID              string `json:"historyId"`
	RevisionParentID       string `json:"revisionParentId"`
	Version                int    `json:"version"`
	UpdatedSectionIndexes  []int  `json:"updatedSectionIndexes"`
}

// Revise はSEO記事の部分修正を処理する。
// POST /api/seo-article-revise
func (h *RevisionHandler) Revise(w http.ResponseWriter, r *http.Request) {
	projectID, err := middleware.ProjectIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req reviseRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.HistoryID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("historyIdは必須です"))
		return
	}

	project, err := h.projects.FindByProjectID(r.Context(), projectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if project == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError())
		return
	}

	if err := h.quota.Admit(r.Context(), project); err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Revise(r.Context(), project, req.HistoryID, req.RevisionInstruction)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 課金は修正の成立時に確定する
	h.recorder.Enqueue(r.Context(), usage.Event{
		ProjectID: projectID,
		UsedAt:    h.now(),
	})

	history := result.History
	writeJSON(w, http.StatusOK, reviseResponse{
		Output:                history.OutputText(),
		HistoryID:             history.ID,
		RevisionParentID:      history.RootID(),
		Version:               history.Version,
		UpdatedSectionIndexes: result.UpdatedSections,
	})
}
