package receipts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/approval-engine/approval"
)

var _ approval.BlobStore = (*LocalStore)(nil)

// LocalStore keeps receipts as files under baseDir.
type LocalStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalStore creates baseDir if needed.
func NewLocalStore(baseDir string, logger *zap.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve receipts dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create receipts dir: %w", err)
	}
	return &LocalStore{baseDir: abs, logger: logger}, nil
}

// Put writes body at key, creating parent directories.
func (s *LocalStore) Put(_ context.Context, key string, body []byte, _ string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		s.logger.Error("Failed to create parent directories", zap.String("path", full), zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(full, body, 0o644); err != nil {
		s.logger.Error("Failed to write receipt", zap.String("path", full), zap.Error(err))
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	s.logger.Debug("Receipt saved", zap.String("key", key), zap.Int("size", len(body)))
	return nil
}

// Delete removes the file at key. Missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete receipt: %w", err)
	}
	return nil
}

// Read returns the stored bytes for key.
func (s *LocalStore) Read(key string) ([]byte, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// resolve maps a key to a path inside baseDir, rejecting traversal.
func (s *LocalStore) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage key is required")
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("storage key escapes base directory: %s", key)
	}
	return full, nil
}
