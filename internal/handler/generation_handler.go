package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/kotoba/internal/generation"
	"github.com/hitoshi/kotoba/internal/middleware"
	"github.com/hitoshi/kotoba/internal/model"
)

// maxUploadBytes はmultipartリクエスト全体のメモリ上限。
const maxUploadBytes = 32 << 20 // 32MB

// maxImageBytes は画像1枚あたりの上限。
const maxImageBytes = 10 << 20 // 10MB

// GenerationServiceInterface は生成ハンドラーが必要とするオーケストレーター。
type GenerationServiceInterface interface {
	Generate(ctx context.Context, req generation.Request, sink generation.ChunkSink) (*model.AnalysisHistory, error)
}

// GenerationHandler はAI生成のストリーミングHTTPハンドラー。
type GenerationHandler struct {
	service GenerationServiceInterface
}

// NewGenerationHandler はGenerationHandlerを生成する。
func NewGenerationHandler(service GenerationServiceInterface) *GenerationHandler {
	return &GenerationHandler{service: service}
}

// streamSink はhttp.ResponseWriterをgeneration.ChunkSinkに適合させる。
// 最初のチャンク書き込みでtext/plainの200を確定し、チャンクごとにフラッシュする。
type streamSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// WriteChunk はチャンクを1つレスポンスに書き出す。
func (s *streamSink) WriteChunk(chunk string) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.w.Header().Set("X-Content-Type-Options", "nosniff")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := io.WriteString(s.w, chunk); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Generate はAI生成リクエストを処理する。
// POST /api/analysis?type=T (multipart/form-data)
//
// 生成テキストはチャンク単位でそのままレスポンスボディにストリーミングされる。
// ストリーミング開始前のエラーは統一JSONフォーマット、開始後のエラーは
// ステータスを変更できないため打ち切りのみとなる。
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	projectID, err := middleware.ProjectIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	aiType := r.URL.Query().Get("type")
	if aiType == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("typeクエリパラメータは必須です"))
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("multipart/form-dataの解析に失敗しました"))
		return
	}

	images, err := readUploadedImages(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	req := generation.Request{
		ProjectID:   projectID,
		AiType:      model.AiType(aiType),
		Instruction: r.FormValue("instruction"),
		Images:      images,
		ImageURL:    r.FormValue("imageUrl"),
	}

	flusher, _ := w.(http.Flusher)
	sink := &streamSink{w: w, flusher: flusher}

	history, err := h.service.Generate(r.Context(), req, sink)
	if err != nil {
		if sink.started {
			// ヘッダー送信済み。エラーはログに残し打ち切るしかない
			slog.Error("generation failed mid-stream",
				slog.String("project_id", projectID),
				slog.String("ai_type", aiType),
				slog.String("error", err.Error()),
			)
			return
		}
		handleServiceError(w, err)
		return
	}

	if !sink.started {
		// 空の生成結果。ヘッダーだけ確定させる
		sink.WriteChunk("")
	}

	slog.Info("generation stream completed",
		slog.String("project_id", projectID),
		slog.String("ai_type", aiType),
		slog.String("history_id", history.ID),
	)
}

// readUploadedImages はmultipartフォームの`images`フィールドを読み込む。
func readUploadedImages(r *http.Request) ([]generation.Image, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	files := r.MultipartForm.File["images"]
	images := make([]generation.Image, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxImageBytes {
			return nil, model.NewValidationError("画像サイズが上限を超えています")
		}

		f, err := fh.Open()
		if err != nil {
			return nil, model.NewValidationError("画像の読み込みに失敗しました")
		}
		data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
		f.Close()
		if err != nil {
			return nil, model.NewValidationError("画像の読み込みに失敗しました")
		}

		images = append(images, generation.Image{
			Data:        data,
			ContentType: fh.Header.Get("Content-Type"),
		})
	}
	return images, nil
}
