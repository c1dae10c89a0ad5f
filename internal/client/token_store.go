package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hitoshi/prmconsole/internal/console"
)

// TokenStore はセッションのトークンを永続化する。
// 保存されていない場合Loadは nil, nil を返す。
type TokenStore interface {
	Load() (*console.Session, error)
	Save(s *console.Session) error
	Clear() error
}

// FileTokenStore はトークンをJSONファイルに保存する。ファイルは所有者のみ読み書きできる。
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

// NewFileTokenStore はFileTokenStoreを生成する。
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (f *FileTokenStore) Load() (*console.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var s console.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if s.RefreshToken == "" {
		return nil, nil
	}
	return &s, nil
}

// Save は一時ファイルに書き込んでからリネームする。
func (f *FileTokenStore) Save(s *console.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

func (f *FileTokenStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// MemoryTokenStore はプロセス内だけでトークンを保持する。
type MemoryTokenStore struct {
	mu      sync.Mutex
	session *console.Session
}

// NewMemoryTokenStore はMemoryTokenStoreを生成する。
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Load() (*console.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.session), nil
}

func (m *MemoryTokenStore) Save(s *console.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = copySession(s)
	return nil
}

func (m *MemoryTokenStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

var (
	_ TokenStore = (*FileTokenStore)(nil)
	_ TokenStore = (*MemoryTokenStore)(nil)
)
