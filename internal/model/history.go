package model

import (
	"encoding/json"
	"time"
)

// AnalysisHistory は1回の生成またはリビジョンの入出力を永続化したレコード。
// 作成後は不変。RevisionParentIDがnilのレコードがリネージのルートとなり、
// リビジョンはルートのIDをRevisionParentIDに持つ。
type AnalysisHistory struct {
	ID               string
	ProjectID        string
	AiType           AiType
	Input            json.RawMessage
	Output           json.RawMessage
	RevisionParentID *string
	Version          int
	CreatedAt        time.Time
}

// GenerationInput はAnalysisHistory.Inputに格納するJSONの構造。
type GenerationInput struct {
	Image       string `json:"image,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

// GenerationOutput はAnalysisHistory.Outputに格納するJSONの構造。
type GenerationOutput struct {
	Output string `json:"output"`
}

// OutputText はOutputペイロードから本文テキストを取り出す。
// ペイロードが壊れている場合は空文字列を返す。
func (h *AnalysisHistory) OutputText() string {
	var out GenerationOutput
	if err := json.Unmarshal(h.Output, &out); err != nil {
		return ""
	}
	return out.Output
}

// RootID はリネージのルートとなるAnalysisHistoryのIDを返す。
// 自身がルートの場合は自身のIDを返す。
func (h *AnalysisHistory) RootID() string {
	if h.RevisionParentID != nil {
		return *h.RevisionParentID
	}
	return h.ID
}
