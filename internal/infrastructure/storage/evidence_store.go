// internal/infrastructure/storage/evidence_store.go
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// EvidenceStore keeps uploaded evidence under baseDir/<audit code>/<section>/.
// The returned file ID is the path relative to baseDir.
type EvidenceStore struct {
	baseDir string
	logger  *zap.Logger
	newID   func() string
}

// NewEvidenceStore creates an EvidenceStore rooted at baseDir
func NewEvidenceStore(baseDir string, logger *zap.Logger) *EvidenceStore {
	return &EvidenceStore{
		baseDir: baseDir,
		logger:  logger,
		newID:   func() string { return uuid.NewString()[:8] },
	}
}

// Save writes content and returns its file ID. A short random prefix keeps
// repeated uploads of the same file name apart.
func (s *EvidenceStore) Save(ctx context.Context, auditCode string, sectionID entity.SectionID, fileName string, content []byte) (string, error) {
	folder := SanitizeName(auditCode)
	sec := SanitizeName(string(sectionID))
	name := SanitizeFileName(fileName)
	if folder == "" || sec == "" || name == "" {
		return "", fmt.Errorf("%w: evidence path has an empty component", entity.ErrValidation)
	}

	fileID := filepath.ToSlash(filepath.Join(folder, sec, s.newID()+"_"+name))
	fullPath := s.GetFullPath(fileID)
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create evidence directory",
			zap.String("path", filepath.Dir(fullPath)),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write evidence",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("Evidence saved",
		zap.String("file_id", fileID),
		zap.Int("size", len(content)))
	return fileID, nil
}

// Read returns the content stored under fileID
func (s *EvidenceStore) Read(ctx context.Context, fileID string) ([]byte, error) {
	fullPath := s.GetFullPath(fileID)
	if err := s.validatePath(fullPath); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return nil, entity.NewNotFoundError("evidence", fileID)
	}
	if err != nil {
		s.logger.Error("Failed to read evidence",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Delete removes the file; a missing file is not an error
func (s *EvidenceStore) Delete(ctx context.Context, fileID string) error {
	fullPath := s.GetFullPath(fileID)
	if err := s.validatePath(fullPath); err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetFullPath converts a file ID to a filesystem path
func (s *EvidenceStore) GetFullPath(fileID string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(fileID))
}

func (s *EvidenceStore) validatePath(fullPath string) error {
	return withinBase(s.baseDir, fullPath)
}

// withinBase rejects paths that resolve outside base
func withinBase(base, fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return fmt.Errorf("%w: path escapes base directory: %s", entity.ErrValidation, fullPath)
	}
	return nil
}

var _ port.EvidenceStorage = (*EvidenceStore)(nil)
