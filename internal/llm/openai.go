package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient はOpenAI Chat Completions互換エンドポイントのクライアント。
// エンドポイントを差し替えることで互換プロキシやローカルモデルにも接続できる。
type OpenAIClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient はOpenAIClientを生成する。
func NewOpenAIClient(endpoint, apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			// ストリーミング全体の上限。チャンク間の無応答もこれで打ち切られる。
			Timeout: 5 * time.Minute,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *imageURLValue `json:"image_url,omitempty"`
}

type imageURLValue struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream は生成をSSEストリームとして開始する。
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (Stream, error) {
	body := chatRequest{
		Model:  c.model,
		Stream: true,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: buildUserContent(req)},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal LLM request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call LLM API: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("LLM API returned status %d: %s", resp.StatusCode, string(b))
	}

	return &sseStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

// buildUserContent はテキストのみなら文字列、画像付きならパーツ配列を返す。
func buildUserContent(req Request) any {
	if len(req.ImageURLs) == 0 {
		return req.User
	}
	parts := []contentPart{{Type: "text", Text: req.User}}
	for _, url := range req.ImageURLs {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURLValue{URL: url},
		})
	}
	return parts
}

// sseStream はChat CompletionsのSSEレスポンスをチャンク列として読み出す。
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

var _ Stream = (*sseStream)(nil)

// Recv は次のテキストチャンクを返す。空のデルタは読み飛ばす。
func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("failed to decode LLM stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read LLM stream: %w", err)
	}
	s.done = true
	return "", io.EOF
}

// Close はレスポンスボディを閉じる。
func (s *sseStream) Close() error {
	return s.body.Close()
}
