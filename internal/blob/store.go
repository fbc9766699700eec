// Package blob はアップロード画像のコンテンツアドレス保存を提供する。
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Store はバイナリデータの保存インターフェース。
type Store interface {
	// Save はデータを保存し、参照パスを返す。
	// 同一内容の保存は同じパスを返す（冪等）。
	Save(data []byte, ext string) (string, error)
}

// FSStore はローカルファイルシステム上のコンテンツアドレスストア。
// SHA-256ハッシュをキーとし、先頭2文字のディレクトリに分散させる。
type FSStore struct {
	root string
}

var _ Store = (*FSStore)(nil)

// NewFSStore はFSStoreを生成し、ルートディレクトリを用意する。
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Save はデータをハッシュ名で保存する。既存の同一内容はそのまま再利用する。
func (s *FSStore) Save(data []byte, ext string) (string, error) {
	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + ext
	dir := filepath.Join(s.root, name[:2])
	path := filepath.Join(dir, name)

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob dir: %w", err)
	}

	// 書きかけのファイルが見えないよう一時ファイル経由でrenameする
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to finalize blob: %w", err)
	}

	return path, nil
}
