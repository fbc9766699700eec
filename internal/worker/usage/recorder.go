// Package usage は利用イベントの遅延記録ワーカーを提供する。
// 生成オーケストレーターは許可判定が通った時点でイベントをキューに積み、
// 記録のDB書き込みはストリーミングと並行してこのワーカーが行う。
// 課金はストリーム完了ではなく生成開始に対して発生する。
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/kotoba/internal/metrics"
	"github.com/hitoshi/kotoba/internal/quota"
)

// Event は記録待ちの利用イベント。
type Event struct {
	ProjectID string
	UsedAt    time.Time
}

// Recorder は利用イベントをバッファリングして順次記録するワーカー。
// Enqueueは1イベントにつき1回だけ呼ばれ、記録は最大1回行われる。
type Recorder struct {
	quota     *quota.Service
	logger    *slog.Logger
	collector metrics.MetricsCollector

	queue chan Event
	wg    sync.WaitGroup
}

// NewRecorder はRecorderを生成する。queueSizeが0以下の場合はデフォルト値256を使用する。
func NewRecorder(quotaService *quota.Service, logger *slog.Logger, collector metrics.MetricsCollector, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Recorder{
		quota:     quotaService,
		logger:    logger,
		collector: collector,
		queue:     make(chan Event, queueSize),
	}
}

// Enqueue はイベントを記録キューに積む。
// キューが満杯の場合はブロックせず、その場で同期的に記録する。
// 課金イベントを取りこぼさないことをキューの空き状況より優先する。
func (r *Recorder) Enqueue(ctx context.Context, event Event) {
	select {
	case r.queue <- event:
		if r.collector != nil {
			r.collector.RecordUsageQueueDepth(len(r.queue))
		}
	default:
		r.logger.Warn("利用イベントキューが満杯のため同期記録にフォールバックします",
			slog.String("project_id", event.ProjectID),
		)
		r.record(ctx, event)
	}
}

// Start はワーカーループを起動する。コンテキストのキャンセルで停止し、
// 停止時にはキューに残ったイベントを全て書き切ってから戻る。
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.logger.Info("利用イベント記録ワーカーを開始しました",
			slog.Int("queue_size", cap(r.queue)),
		)

		for {
			select {
			case <-ctx.Done():
				r.drain()
				r.logger.Info("利用イベント記録ワーカーを停止しました")
				return
			case event := <-r.queue:
				r.record(context.Background(), event)
				if r.collector != nil {
					r.collector.RecordUsageQueueDepth(len(r.queue))
				}
			}
		}
	}()
}

// Wait はワーカーの終了を待つ。
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// drain は停止時にキューへ残ったイベントを全て記録する。
func (r *Recorder) drain() {
	for {
		select {
		case event := <-r.queue:
			r.record(context.Background(), event)
		default:
			return
		}
	}
}

// record はイベントを1件記録する。失敗はログに残すのみでリトライしない。
// 二重課金よりも記録漏れを許容する。
func (r *Recorder) record(ctx context.Context, event Event) {
	recordCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := r.quota.Record(recordCtx, event.ProjectID, event.UsedAt); err != nil {
		r.logger.Error("利用イベントの記録に失敗しました",
			slog.String("project_id", event.ProjectID),
			slog.Time("used_at", event.UsedAt),
			slog.String("error", err.Error()),
		)
	}
}
