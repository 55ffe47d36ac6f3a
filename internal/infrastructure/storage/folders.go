package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
	unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)
)

// ExportFolders hands out one folder per audit for generated reports
type ExportFolders struct {
	baseDir string
	logger  *zap.Logger
}

// NewExportFolders creates an ExportFolders rooted at baseDir
func NewExportFolders(baseDir string, logger *zap.Logger) *ExportFolders {
	return &ExportFolders{baseDir: baseDir, logger: logger}
}

// Ensure creates the folder for auditCode if needed and returns its path
func (m *ExportFolders) Ensure(ctx context.Context, auditCode string) (string, error) {
	safeName := SanitizeName(auditCode)
	if safeName == "" {
		return "", fmt.Errorf("cannot create folder: empty name")
	}

	folderPath := filepath.Join(m.baseDir, safeName)
	if err := os.MkdirAll(folderPath, 0755); err != nil {
		m.logger.Error("Failed to create export folder",
			zap.String("audit_code", auditCode),
			zap.String("folder_path", folderPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to create folder: %w", err)
	}
	return folderPath, nil
}

// GetPath returns the folder path without creating it
func (m *ExportFolders) GetPath(auditCode string) string {
	return filepath.Join(m.baseDir, SanitizeName(auditCode))
}

// Exists reports whether the audit's folder exists
func (m *ExportFolders) Exists(auditCode string) bool {
	info, err := os.Stat(m.GetPath(auditCode))
	return err == nil && info.IsDir()
}

// Delete removes the folder and everything in it
func (m *ExportFolders) Delete(ctx context.Context, auditCode string) error {
	safeName := SanitizeName(auditCode)
	if safeName == "" {
		return nil
	}
	if err := os.RemoveAll(filepath.Join(m.baseDir, safeName)); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}

// SanitizeName keeps letters, digits, hyphens and underscores
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	return unsafeNameChars.ReplaceAllString(name, "")
}

// SanitizeFileName is SanitizeName that also keeps dots, minus any leading ones
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, " ", "_")
	name = unsafeFileChars.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "..", ".")
	return strings.TrimLeft(name, ".")
}
