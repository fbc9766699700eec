package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordGenerationSuccess_IncrementsCounter は生成成功カウンタがラベル付きで増加することを検証する。
func TestRecordGenerationSuccess_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGenerationSuccess("market")
	c.RecordGenerationSuccess("market")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "kotoba_generation_success_total" {
			found = true
			if len(mf.GetMetric()) != 1 {
				t.Fatalf("expected 1 metric, got %d", len(mf.GetMetric()))
			}
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 2 {
				t.Errorf("generation_success_total = %v, want 2", val)
			}
		}
	}
	if !found {
		t.Error("kotoba_generation_success_total metric not found")
	}
}

// TestRecordGenerationFailure_IncrementsCounter は生成失敗カウンタが増加することを検証する。
func TestRecordGenerationFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGenerationFailure("seo-article", "llm_error")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "kotoba_generation_fail_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 1 {
				t.Errorf("generation_fail_total = %v, want 1", val)
			}
		}
	}
	if !found {
		t.Error("kotoba_generation_fail_total metric not found")
	}
}

// TestRecordQuotaRejection_IncrementsCounter は上限拒否カウンタが増加することを検証する。
func TestRecordQuotaRejection_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordQuotaRejection("proj-1")
	c.RecordQuotaRejection("proj-2")
	c.RecordQuotaRejection("proj-1")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "kotoba_quota_rejected_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 3 {
				t.Errorf("quota_rejected_total = %v, want 3", val)
			}
		}
	}
	if !found {
		t.Error("kotoba_quota_rejected_total metric not found")
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(403)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "kotoba_http_status_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "200":
					if val != 2 {
						t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
					}
				case "403":
					if val != 1 {
						t.Errorf("http_status_total{status_code=403} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("kotoba_http_status_total metric not found")
	}
}

// TestRecordGenerationLatency_ObservesHistogram は生成レイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordGenerationLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGenerationLatency("market", 3*time.Second)
	c.RecordGenerationLatency("market", 15*time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "kotoba_generation_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は3 + 15 = 18秒
			if h.GetSampleSum() < 17.9 || h.GetSampleSum() > 18.1 {
				t.Errorf("sample_sum = %v, want ~18", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("kotoba_generation_latency_seconds metric not found")
	}
}

// TestRecordStreamedChunks_IncrementsCounter はチャンク中継カウンタが増加することを検証する。
func TestRecordStreamedChunks_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStreamedChunks(10)
	c.RecordStreamedChunks(5)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "kotoba_streamed_chunks_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 15 {
				t.Errorf("streamed_chunks_total = %v, want 15", val)
			}
		}
	}
	if !found {
		t.Error("kotoba_streamed_chunks_total metric not found")
	}
}

// TestRecordRevision_Counters は修正系カウンタが増加することを検証する。
func TestRecordRevision_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRevisionSuccess()
	c.RecordRevisionFailure("no_target_section")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	var successVal, failVal float64
	for _, mf := range metrics {
		switch mf.GetName() {
		case "kotoba_revision_success_total":
			successVal = mf.GetMetric()[0].GetCounter().GetValue()
		case "kotoba_revision_fail_total":
			failVal = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if successVal != 1 {
		t.Errorf("revision_success_total = %v, want 1", successVal)
	}
	if failVal != 1 {
		t.Errorf("revision_fail_total = %v, want 1", failVal)
	}
}

// TestRecordUsageQueueDepth_SetsGauge はキュー滞留数ゲージが最新値を保持することを検証する。
func TestRecordUsageQueueDepth_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUsageQueueDepth(7)
	c.RecordUsageQueueDepth(3)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "kotoba_usage_queue_depth" {
			found = true
			val := mf.GetMetric()[0].GetGauge().GetValue()
			if val != 3 {
				t.Errorf("usage_queue_depth = %v, want 3", val)
			}
		}
	}
	if !found {
		t.Error("kotoba_usage_queue_depth metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.RecordGenerationSuccess("market")
	c.RecordGenerationFailure("market", "llm_error")
	c.RecordHTTPStatus(200)
	c.RecordGenerationLatency("market", 5*time.Second)
	c.RecordStreamedChunks(3)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	// Prometheus形式のメトリクスが含まれていることを確認
	expectedMetrics := []string{
		"kotoba_generation_success_total",
		"kotoba_generation_fail_total",
		"kotoba_http_status_total",
		"kotoba_generation_latency_seconds",
		"kotoba_streamed_chunks_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordGenerationSuccess("market")
	c2.RecordGenerationSuccess("market")
	c2.RecordGenerationSuccess("market")

	metrics1, _ := reg1.Gather()
	metrics2, _ := reg2.Gather()

	var val1, val2 float64
	for _, mf := range metrics1 {
		if mf.GetName() == "kotoba_generation_success_total" {
			val1 = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	for _, mf := range metrics2 {
		if mf.GetName() == "kotoba_generation_success_total" {
			val2 = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}

	if val1 != 1 {
		t.Errorf("reg1 generation_success = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 generation_success = %v, want 2", val2)
	}
}
