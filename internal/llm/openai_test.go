package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseHandler(t *testing.T, chunks []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !req.Stream {
			t.Error("expected stream=true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", chunk)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

func TestOpenAIClient_Stream(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{"こん", "にち", "は"}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "test-key", "gpt-4o")
	stream, err := client.Stream(context.Background(), Request{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	var got []string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, chunk)
	}

	want := []string{"こん", "にち", "は"}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestOpenAIClient_StreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "test-key", "gpt-4o")
	_, err := client.Stream(context.Background(), Request{System: "s", User: "u"})
	if err == nil {
		t.Fatal("expected an error for non-200 status")
	}
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{"今月の", "おすすめ", "です"}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "test-key", "gpt-4o")
	text, err := Complete(context.Background(), client, Request{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "今月のおすすめです" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestOpenAIClient_ImageContent(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "test-key", "gpt-4o")
	stream, err := client.Stream(context.Background(), Request{
		System:    "s",
		User:      "u",
		ImageURLs: []string{"data:image/png;base64,AAAA"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stream.Close()

	if len(captured.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(captured.Messages))
	}
	parts, ok := captured.Messages[1].Content.([]any)
	if !ok {
		t.Fatalf("expected user content to be a parts array, got %T", captured.Messages[1].Content)
	}
	if len(parts) != 2 {
		t.Errorf("expected text part plus one image part, got %d parts", len(parts))
	}
}
