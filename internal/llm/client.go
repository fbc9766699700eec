// Package llm はOpenAI互換APIへのストリーミングクライアントを提供する。
package llm

import (
	"context"
	"io"
	"strings"
)

// Request は1回の生成リクエスト。
type Request struct {
	System    string   // システムプロンプト
	User      string   // ユーザープロンプト
	ImageURLs []string // 添付画像（data URLまたはhttps URL）
}

// Stream は生成結果のテキストチャンク列。
// Recvはチャンクを1つ返し、終端に達するとio.EOFを返す。
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Client はLLMの呼び出しインターフェース。
type Client interface {
	// Stream は生成をストリーミングで開始する。
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Complete はストリームを最後まで読み切り、全文を返す。
// セクション再生成やターゲット判定など、途中経過が不要な呼び出しで使う。
func Complete(ctx context.Context, client Client, req Request) (string, error) {
	stream, err := client.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}
