// Package generation はAI生成リクエストのオーケストレーションを提供する。
// 許可判定、プロンプト組み立て、LLMストリーミングの中継、
// 履歴の永続化、利用イベントの計上を1つの流れとして実行する。
package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/kotoba/internal/blob"
	"github.com/hitoshi/kotoba/internal/llm"
	"github.com/hitoshi/kotoba/internal/metrics"
	"github.com/hitoshi/kotoba/internal/model"
	"github.com/hitoshi/kotoba/internal/prompt"
	"github.com/hitoshi/kotoba/internal/quota"
	"github.com/hitoshi/kotoba/internal/repository"
	"github.com/hitoshi/kotoba/internal/security"
	"github.com/hitoshi/kotoba/internal/worker/usage"
)

// Image はリクエストに添付された画像。
type Image struct {
	Data        []byte
	ContentType string
}

// Request は1回の生成リクエスト。
type Request struct {
	ProjectID   string
	AiType      model.AiType
	Instruction string
	Images      []Image
	ImageURL    string // 外部URL指定の画像。取得はSSRF検証付きで行う。
}

// ChunkSink は生成テキストのチャンクを受け取る出力先。
// HTTPハンドラーがレスポンスライターをラップして実装する。
type ChunkSink interface {
	// WriteChunk はチャンクを1つ書き出す。クライアント切断時はエラーを返す。
	WriteChunk(chunk string) error
}

// UsageEnqueuer は利用イベントの遅延記録キュー。
type UsageEnqueuer interface {
	Enqueue(ctx context.Context, event usage.Event)
}

// Orchestrator は生成リクエストの状態遷移
// （許可 → プロンプト → ストリーミング → 確定）を駆動する。
type Orchestrator struct {
	projects  repository.ProjectRepository
	histories repository.AnalysisHistoryRepository
	quota     *quota.Service
	resolver  *prompt.Resolver
	llm       llm.Client
	blobs     blob.Store
	fetcher   security.ImageFetcherService
	sanitizer security.InstructionSanitizerService
	recorder  UsageEnqueuer
	collector metrics.MetricsCollector

	now func() time.Time
}

// NewOrchestrator はOrchestratorを生成する。
func NewOrchestrator(
	projects repository.ProjectRepository,
	histories repository.AnalysisHistoryRepository,
	quotaService *quota.Service,
	resolver *prompt.Resolver,
	llmClient llm.Client,
	blobs blob.Store,
	fetcher security.ImageFetcherService,
	sanitizer security.InstructionSanitizerService,
	recorder UsageEnqueuer,
	collector metrics.MetricsCollector,
) *Orchestrator {
	return &Orchestrator{
		projects:  projects,
		histories: histories,
		quota:     quotaService,
		resolver:  resolver,
		llm:       llmClient,
		blobs:     blobs,
		fetcher:   fetcher,
		sanitizer: sanitizer,
		recorder:  recorder,
		collector: collector,
		now:       time.Now,
	}
}

// Generate は生成リクエストを実行する。
//
// ストリーミング開始前のエラーは*model.APIErrorとして返され、
// ハンドラーがHTTPステータスに変換する。ストリーミング開始後のエラーは
// ステータスを変えられないため、中継を打ち切りバッファを可能な範囲で永続化する。
// クライアント切断では上流の読み取りを止めず、全文の取得と永続化を優先する。
func (o *Orchestrator) Generate(ctx context.Context, req Request, sink ChunkSink) (*model.AnalysisHistory, error) {
	instruction := o.sanitizer.Sanitize(req.Instruction)

	if err := validateShape(req.AiType, instruction, len(req.Images), req.ImageURL); err != nil {
		return nil, err
	}

	// 許可判定: 上限チェックはモデル呼び出しの前に必ず行う
	project, err := o.projects.FindByProjectID(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError()
	}

	if err := o.quota.Admit(ctx, project); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeQuotaExceeded {
			o.collector.RecordQuotaRejection(project.ProjectID)
		}
		return nil, err
	}

	resolved, err := o.resolver.Resolve(ctx, project.ProjectID, req.AiType, instruction)
	if err != nil {
		return nil, err
	}

	images := req.Images
	if req.ImageURL != "" {
		data, contentType, err := o.fetcher.Fetch(ctx, req.ImageURL)
		if err != nil {
			return nil, model.NewValidationError("画像URLを取得できませんでした")
		}
		images = append(images, Image{Data: data, ContentType: contentType})
	}

	// 先頭画像は履歴から参照できるようblobストアに保存する
	imagePath := ""
	if len(images) > 0 {
		path, err := o.blobs.Save(images[0].Data, extensionFor(images[0].ContentType))
		if err != nil {
			slog.Warn("画像のblob保存に失敗しました",
				slog.String("project_id", project.ProjectID),
				slog.String("error", err.Error()),
			)
		} else {
			imagePath = path
		}
	}

	// 許可が確定した時点で課金する。ストリームの成否には依存しない。
	o.recorder.Enqueue(ctx, usage.Event{ProjectID: project.ProjectID, UsedAt: o.now()})

	// クライアント切断で上流の読み取りを巻き込まないよう、
	// LLM呼び出しと永続化はリクエストコンテキストから切り離す
	streamCtx := context.WithoutCancel(ctx)

	start := o.now()
	stream, err := o.llm.Stream(streamCtx, llm.Request{
		System:    resolved.System,
		User:      resolved.User,
		ImageURLs: dataURLs(images),
	})
	if err != nil {
		o.collector.RecordGenerationFailure(string(req.AiType), "llm_error")
		return nil, fmt.Errorf("failed to start LLM stream: %w", err)
	}
	defer stream.Close()

	buffer, chunkCount, streamErr := o.relay(stream, sink)
	o.collector.RecordStreamedChunks(chunkCount)
	o.collector.RecordGenerationLatency(string(req.AiType), o.now().Sub(start))

	if streamErr != nil && buffer == "" {
		o.collector.RecordGenerationFailure(string(req.AiType), "stream_error")
		return nil, fmt.Errorf("LLM stream failed: %w", streamErr)
	}

	// ストリーム完了後に1回だけ永続化する。途中失敗時も部分出力を残す。
	history := o.buildHistory(project.ProjectID, req.AiType, instruction, imagePath, buffer)
	if err := o.histories.Create(streamCtx, history); err != nil {
		// クライアントには既に全文を送っているため、ここでの失敗はログのみ
		slog.Error("生成履歴の永続化に失敗しました",
			slog.String("project_id", project.ProjectID),
			slog.String("ai_type", string(req.AiType)),
			slog.String("error", err.Error()),
		)
	}

	if streamErr != nil {
		o.collector.RecordGenerationFailure(string(req.AiType), "stream_error")
		return history, fmt.Errorf("LLM stream failed after partial output: %w", streamErr)
	}

	o.collector.RecordGenerationSuccess(string(req.AiType))
	return history, nil
}

// relay は上流チャンクをクライアントへ中継しつつ全文をバッファする。
// クライアントへの書き込みが失敗しても中継だけを止め、上流は読み切る。
func (o *Orchestrator) relay(stream llm.Stream, sink ChunkSink) (string, int, error) {
	var buffer []byte
	chunkCount := 0
	clientGone := false

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return string(buffer), chunkCount, nil
			}
			return string(buffer), chunkCount, err
		}

		buffer = append(buffer, chunk...)
		chunkCount++

		if !clientGone {
			if err := sink.WriteChunk(chunk); err != nil {
				clientGone = true
				slog.Info("クライアントが切断されました。上流の読み取りは継続します")
			}
		}
	}
}

// buildHistory は永続化するAnalysisHistoryを組み立てる。
func (o *Orchestrator) buildHistory(projectID string, aiType model.AiType, instruction, imagePath, output string) *model.AnalysisHistory {
	input, _ := json.Marshal(model.GenerationInput{
		Image:       imagePath,
		Instruction: instruction,
	})
	outputPayload, _ := json.Marshal(model.GenerationOutput{Output: output})

	return &model.AnalysisHistory{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		AiType:    aiType,
		Input:     input,
		Output:    outputPayload,
		Version:   1,
		CreatedAt: o.now(),
	}
}

// validateShape は生成モードごとの入力制約を検証する。
// 上限チェックやモデル呼び出しの前に不正リクエストを弾く。
func validateShape(aiType model.AiType, instruction string, imageCount int, imageURL string) error {
	if _, ok := model.ParseAiType(string(aiType)); !ok {
		return model.NewValidationError(fmt.Sprintf("未対応の生成モードです: %s", aiType))
	}
	rule := aiType.Rule()

	total := imageCount
	if imageURL != "" {
		total++
	}

	if rule.RequireInstruction && instruction == "" {
		return model.NewValidationError("このモードには指示文が必要です")
	}
	if rule.RequireImage && total == 0 {
		return model.NewValidationError("このモードには画像が必要です")
	}
	if total > rule.MaxImages {
		return model.NewValidationError(fmt.Sprintf("画像は最大%d枚までです", rule.MaxImages))
	}

	return nil
}

// dataURLs は添付画像をLLMへ渡すdata URL形式に変換する。
func dataURLs(images []Image) []string {
	if len(images) == 0 {
		return nil
	}
	urls := make([]string, 0, len(images))
	for _, img := range images {
		contentType := img.ContentType
		if contentType == "" {
			contentType = "image/jpeg"
		}
		urls = append(urls, "data:"+contentType+";base64,"+base64.StdEncoding.EncodeToString(img.Data))
	}
	return urls
}

// extensionFor はContent-Typeから保存用の拡張子を推定する。
func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
