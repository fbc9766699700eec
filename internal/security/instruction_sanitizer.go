// Package security はアプリケーションのセキュリティ機能を提供する。
//
// InstructionSanitizerService はユーザー入力の自由記述指示をサニタイズし、
// プロンプトへの埋め込みや履歴としての再表示を安全にする。
// bluemondayライブラリの厳格ポリシーで全てのHTMLタグを除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// InstructionSanitizerService は自由記述指示のサニタイズ機能のインターフェースを定義する。
// 生成リクエストと修正リクエストの受付時に使用される。
type InstructionSanitizerService interface {
	// Sanitize は指示文からHTMLタグを全て除去し、プレーンテキストを返す。
	// scriptタグやイベント属性を含む入力も無害化される。
	// 前後の空白は取り除かれる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(instruction string) string
}

// instructionSanitizer はInstructionSanitizerServiceの実装。
// bluemondayの厳格ポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type instructionSanitizer struct {
	policy *bluemonday.Policy
}

// NewInstructionSanitizer はInstructionSanitizerServiceの新しいインスタンスを生成する。
// 指示文はLLMプロンプトと履歴画面の両方に流れるため、
// タグを一切許可しない厳格ポリシーを使用する。
func NewInstructionSanitizer() *instructionSanitizer {
	return &instructionSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は指示文からHTMLタグを全て除去する。
func (s *instructionSanitizer) Sanitize(instruction string) string {
	return strings.TrimSpace(s.policy.Sanitize(instruction))
}
