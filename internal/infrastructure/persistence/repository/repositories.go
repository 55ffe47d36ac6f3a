// Package repository implements the application ports on top of SQLite.
// Every method runs inside the caller's transaction when one is present on
// the context (see sqlite.DB.WithTransaction).
package repository

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
)

// New wires a repository per port against db
func New(db *sql.DB, logger *zap.Logger) port.Repositories {
	return port.Repositories{
		Audits:      NewAuditRepository(db, logger),
		History:     NewHistoryRepository(db, logger),
		Evaluations: NewEvaluationRepository(db, logger),
		Validations: NewValidationRepository(db, logger),
		Visits:      NewVisitRepository(db, logger),
		Findings:    NewFindingRepository(db, logger),
		Reports:     NewReportRepository(db, logger),
		Documents:   NewDocumentRepository(db, logger),
		Inventory:   NewInventoryRepository(db, logger),
	}
}
