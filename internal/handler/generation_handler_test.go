package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/hitoshi/kotoba/internal/generation"
	"github.com/hitoshi/kotoba/internal/model"
)

// multipartRequest はinstruction付きのmultipartリクエストを組み立てる。
func multipartRequest(t *testing.T, target, instruction string, images map[string][]byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if instruction != "" {
		if err := mw.WriteField("instruction", instruction); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for name, data := range images {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="images"; filename="`+name+`"`)
		header.Set("Content-Type", "image/jpeg")
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("failed to write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withSessionContext(req, "project-1")
}

func TestGenerate_StreamsChunksToBody(t *testing.T) {
	service := &mockGenerationService{
		generateFn: func(ctx context.Context, req generation.Request, sink generation.ChunkSink) (*model.AnalysisHistory, error) {
			for _, chunk := range []string{"商圏分析の", "結果です。"} {
				if err := sink.WriteChunk(chunk); err != nil {
					return nil, err
				}
			}
			return &model.AnalysisHistory{ID: "hist-1"}, nil
		},
	}

	h := NewGenerationHandler(service)

	req := multipartRequest(t, "/api/analysis?type=market", "駅前の競合を調べて", nil)
	w := newRecorder()

	h.Generate(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/plain", got)
	}
	if got := w.Body.String(); got != "商圏分析の結果です。" {
		t.Errorf("body = %q, want concatenated chunks", got)
	}
	if !w.Flushed {
		t.Error("expected response to be flushed per chunk")
	}
}

func TestGenerate_PassesRequestFieldsToService(t *testing.T) {
	var captured generation.Request
	service := &mockGenerationService{
		generateFn: func(ctx context.Context, req generation.Request, sink generation.ChunkSink) (*model.AnalysisHistory, error) {
			captured = req
			return &model.AnalysisHistory{ID: "hist-1"}, nil
		},
	}

	h := NewGenerationHandler(service)

	req := multipartRequest(t, "/api/analysis?type=instagram-caption", "新商品の投稿文",
		map[string][]byte{"menu.jpg": []byte("jpeg-bytes")})
	w := newRecorder()

	h.Generate(w, req)

	if captured.ProjectID != "project-1" {
		t.Errorf("projectID = %q, want project-1", captured.ProjectID)
	}
	if captured.AiType != model.AiTypeInstagramCaption {
		t.Errorf("aiType = %q, want instagram-caption", captured.AiType)
	}
	if captured.Instruction != "新商品の投稿文" {
		t.Errorf("instruction = %q", captured.Instruction)
	}
	if len(captured.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(captured.Images))
	}
	if string(captured.Images[0].Data) != "jpeg-bytes" {
		t.Errorf("image data = %q", captured.Images[0].Data)
	}
	if captured.Images[0].ContentType != "image/jpeg" {
		t.Errorf("content type = %q", captured.Images[0].ContentType)
	}
}

func TestGenerate_MissingTypeQuery_Returns400(t *testing.T) {
	h := NewGenerationHandler(&mockGenerationService{})

	req := multipartRequest(t, "/api/analysis", "指示", nil)
	w := newRecorder()

	h.Generate(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestGenerate_NoSession_ReturnsUnauthorizedJSON(t *testing.T) {
	h := NewGenerationHandler(&mockGenerationService{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/analysis?type=market", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := newRecorder()

	h.Generate(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestGenerate_QuotaExceededBeforeStream_Returns403JSON(t *testing.T) {
	service := &mockGenerationService{
		generateFn: func(ctx context.Context, req generation.Request, sink generation.ChunkSink) (*model.AnalysisHistory, error) {
			return nil, model.NewQuotaExceededError()
		},
	}

	h := NewGenerationHandler(service)

	req := multipartRequest(t, "/api/analysis?type=market", "指示", nil)
	w := newRecorder()

	h.Generate(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != "QUOTA_EXCEEDED" {
		t.Errorf("code = %q, want QUOTA_EXCEEDED", body.Code)
	}
}

func TestGenerate_MidStreamError_LeavesStatus200(t *testing.T) {
	service := &mockGenerationService{
		generateFn: func(ctx context.Context, req generation.Request, sink generation.ChunkSink) (*model.AnalysisHistory, error) {
			if err := sink.WriteChunk("途中まで"); err != nil {
				return nil, err
			}
			return nil, context.DeadlineExceeded
		},
	}

	h := NewGenerationHandler(service)

	req := multipartRequest(t, "/api/analysis?type=market", "指示", nil)
	w := newRecorder()

	h.Generate(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d (headers already sent)", resp.StatusCode, http.StatusOK)
	}
	if got := w.Body.String(); got != "途中まで" {
		t.Errorf("body = %q, want partial output only", got)
	}
}

func TestGenerate_EmptyResult_Commits200(t *testing.T) {
	service := &mockGenerationService{
		generateFn: func(ctx context.Context, req generation.Request, sink generation.ChunkSink) (*model.AnalysisHistory, error) {
			return &model.AnalysisHistory{ID: "hist-1"}, nil
		},
	}

	h := NewGenerationHandler(service)

	req := multipartRequest(t, "/api/analysis?type=market", "指示", nil)
	w := newRecorder()

	h.Generate(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/plain", got)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}
