package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BannerStore persists course banner images on disk under a base directory
// and hands back stable reference paths. The repositories only ever store
// the reference, never the bytes.
type BannerStore struct {
	baseDir string
}

// NewBannerStore ensures the base directory exists and returns a handle.
func NewBannerStore(baseDir string) (*BannerStore, error) {
	if baseDir == "" {
		baseDir = "./banners"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create banner directory: %w", err)
	}
	return &BannerStore{baseDir: baseDir}, nil
}

// Save writes banner bytes for a course and returns the reference path.
// The filename embeds the course id and a random suffix so successive
// uploads never overwrite each other.
func (s *BannerStore) Save(courseID int64, originalName string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".img"
	}
	filename := fmt.Sprintf("course_%d_banner_%s%s", courseID, uuid.NewString(), ext)
	path := filepath.Join(s.baseDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write banner file: %w", err)
	}
	return filepath.ToSlash(filepath.Join(filepath.Base(s.baseDir), filename)), nil
}

// Delete removes a previously stored banner if present.
func (s *BannerStore) Delete(reference string) error {
	if reference == "" {
		return nil
	}
	path := filepath.Join(s.baseDir, filepath.Base(reference))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete banner file: %w", err)
	}
	return nil
}

// Path exposes the absolute path for a stored reference.
func (s *BannerStore) Path(reference string) string {
	return filepath.Join(s.baseDir, filepath.Base(reference))
}
