package repository

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/infrastructure/persistence/sqlite"
)

// DocumentRepository implements port.DocumentIndex over the documents table
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Register records an uploaded evidence file
func (r *DocumentRepository) Register(ctx context.Context, meta *port.DocumentMeta) error {
	query := `
		INSERT INTO documents (audit_id, section_id, file_id, file_name, uploaded_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		meta.AuditID,
		string(meta.SectionID),
		meta.FileID,
		meta.FileName,
		meta.UploadedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to register document",
			zap.Int64("audit_id", meta.AuditID),
			zap.String("section_id", string(meta.SectionID)),
			zap.Error(err))
		return storageErr("register document", err)
	}
	return nil
}

// HasDocument reports whether any evidence was uploaded for the section
func (r *DocumentRepository) HasDocument(ctx context.Context, auditID int64, sectionID entity.SectionID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM documents WHERE audit_id = ? AND section_id = ?)`
	if err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, auditID, string(sectionID)).Scan(&exists); err != nil {
		return false, storageErr("has document", err)
	}
	return exists, nil
}

// GetDocumentMeta returns the latest upload for the section, or nil, nil
func (r *DocumentRepository) GetDocumentMeta(ctx context.Context, auditID int64, sectionID entity.SectionID) (*port.DocumentMeta, error) {
	query := `
		SELECT audit_id, section_id, file_id, file_name, uploaded_at
		FROM documents
		WHERE audit_id = ? AND section_id = ?
		ORDER BY id DESC
		LIMIT 1
	`
	var meta port.DocumentMeta
	var section string
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, auditID, string(sectionID)).Scan(
		&meta.AuditID,
		&section,
		&meta.FileID,
		&meta.FileName,
		&meta.UploadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get document", err)
	}
	meta.SectionID = entity.SectionID(section)
	return &meta, nil
}

// Verify interface compliance
var _ port.DocumentIndex = (*DocumentRepository)(nil)
