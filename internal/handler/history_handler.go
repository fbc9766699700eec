package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/kotoba/internal/middleware"
	"github.com/hitoshi/kotoba/internal/model"
	"github.com/hitoshi/kotoba/internal/repository"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryHandler は生成履歴照会のHTTPハンドラー。
// すべての照会はセッションのアクティブプロジェクトにスコープされる。
type HistoryHandler struct {
	histories repository.AnalysisHistoryRepository
}

// NewHistoryHandler はHistoryHandlerを生成する。
func NewHistoryHandler(histories repository.AnalysisHistoryRepository) *HistoryHandler {
	return &HistoryHandler{histories: histories}
}

// historyResponse は生成履歴のAPIレスポンス。
type historyResponse struct {
	ID               string          `json:"id"`
	AiType           string          `json:"aiType"`
	Input            json.RawMessage `json:"input"`
	Output           json.RawMessage `json:"output"`
	RevisionParentID *string         `json:"revisionParentId"`
	Version          int             `json:"version"`
	CreatedAt        string          `json:"createdAt"`
}

// ListHistories はプロジェクトの履歴一覧を作成日時の降順で返す。
// GET /api/histories?limit=N
func (h *HistoryHandler) ListHistories(w http.ResponseWriter, r *http.Request) {
	projectID, err := middleware.ProjectIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("limitは1以上の整数を指定してください"))
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	histories, err := h.histories.ListByProjectID(r.Context(), projectID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]historyResponse, len(histories))
	for i, history := range histories {
		results[i] = toHistoryResponse(history)
	}

	writeJSON(w, http.StatusOK, map[string]any{"histories": results})
}

// GetHistory は履歴詳細を返す。他プロジェクトの履歴は存在を秘匿して404となる。
// GET /api/histories/{id}
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	projectID, err := middleware.ProjectIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	historyID := chi.URLParam(r, "id")

	history, err := h.histories.FindByProjectAndID(r.Context(), projectID, historyID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if history == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewHistoryNotFoundError(historyID))
		return
	}

	writeJSON(w, http.StatusOK, toHistoryResponse(history))
}

// GetLineage は履歴の属するリネージ全体（ルートと全リビジョン）を返す。
// GET /api/histories/{id}/lineage
func (h *HistoryHandler) GetLineage(w http.ResponseWriter, r *http.Request) {
	projectID, err := middleware.ProjectIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	historyID := chi.URLParam(r, "id")

	history, err := h.histories.FindByProjectAndID(r.Context(), projectID, historyID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if history == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewHistoryNotFoundError(historyID))
		return
	}

	lineage, err := h.histories.ListLineage(r.Context(), projectID, history.RootID())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]historyResponse, len(lineage))
	for i, entry := range lineage {
		results[i] = toHistoryResponse(entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rootId":    history.RootID(),
		"histories": results,
	})
}

// toHistoryResponse はmodel.AnalysisHistoryからAPIレスポンスに変換する。
func toHistoryResponse(history *model.AnalysisHistory) historyResponse {
	return historyResponse{
		ID:               history.ID,
		AiType:           string(history.AiType),
		Input:            history.Input,
		Output:           history.Output,
		RevisionParentID: history.RevisionParentID,
		Version:          history.Version,
		CreatedAt:        history.CreatedAt.Format(time.RFC3339),
	}
}
