package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/geo"
	"github.com/garyjia/site-audit/internal/infrastructure/persistence/sqlite"
)

const visitColumns = `id, audit_id, site_name, site_address, reference_lat, reference_lng,
	scheduled_at, state, sections, auditor_id, arrival_at, arrival_lat, arrival_lng,
	departure_at, departure_lat, departure_lng, distance_meters, verification, score,
	notes, cancel_reason, version, created_at, updated_at`

// VisitRepository implements port.VisitRepository
type VisitRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVisitRepository creates a new visit repository
func NewVisitRepository(db *sql.DB, logger *zap.Logger) *VisitRepository {
	return &VisitRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a visit and sets its ID
func (r *VisitRepository) Create(ctx context.Context, v *entity.Visit) error {
	sections, err := jsonColumn(v.Sections)
	if err != nil {
		return err
	}
	refLat, refLng := pointColumns(v.Reference)
	arrLat, arrLng := pointColumns(v.Arrival)
	depLat, depLng := pointColumns(v.Departure)

	query := `
		INSERT INTO visits (
			audit_id, site_name, site_address, reference_lat, reference_lng,
			scheduled_at, state, sections, auditor_id, arrival_at, arrival_lat, arrival_lng,
			departure_at, departure_lat, departure_lng, distance_meters, verification, score,
			notes, cancel_reason, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		v.AuditID,
		v.SiteName,
		v.SiteAddress,
		refLat, refLng,
		v.ScheduledAt.UTC(),
		string(v.State),
		sections,
		v.AuditorID,
		nullTime(v.ArrivalAt),
		arrLat, arrLng,
		nullTime(v.DepartureAt),
		depLat, depLng,
		nullFloat(v.DistanceMeters),
		string(v.Verification),
		nullFloat(v.Score),
		v.Notes,
		v.CancelReason,
		v.Version,
		v.CreatedAt.UTC(),
		v.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create visit", zap.Int64("audit_id", v.AuditID), zap.Error(err))
		return storageErr("create visit", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("last insert id", err)
	}
	v.ID = id
	return nil
}

func scanVisit(row rowScanner) (*entity.Visit, error) {
	var v entity.Visit
	var state, verification string
	var sections sql.NullString
	var refLat, refLng, arrLat, arrLng, depLat, depLng, distance, score sql.NullFloat64
	var arrivalAt, departureAt sql.NullTime

	err := row.Scan(
		&v.ID,
		&v.AuditID,
		&v.SiteName,
		&v.SiteAddress,
		&refLat, &refLng,
		&v.ScheduledAt,
		&state,
		&sections,
		&v.AuditorID,
		&arrivalAt,
		&arrLat, &arrLng,
		&departureAt,
		&depLat, &depLng,
		&distance,
		&verification,
		&score,
		&v.Notes,
		&v.CancelReason,
		&v.Version,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.State = entity.VisitState(state)
	v.Verification = geo.Outcome(verification)
	v.Reference = pointFrom(refLat, refLng)
	v.Arrival = pointFrom(arrLat, arrLng)
	v.Departure = pointFrom(depLat, depLng)
	v.ArrivalAt = timePtr(arrivalAt)
	v.DepartureAt = timePtr(departureAt)
	v.DistanceMeters = floatPtr(distance)
	v.Score = floatPtr(score)
	if err := decodeJSON(sections, &v.Sections); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetByID retrieves a visit by ID
func (r *VisitRepository) GetByID(ctx context.Context, id int64) (*entity.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE id = ?`
	v, err := scanVisit(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.NewNotFoundError("visit", id)
	}
	if err != nil {
		r.logger.Error("Failed to get visit", zap.Int64("id", id), zap.Error(err))
		return nil, storageErr("get visit", err)
	}
	return v, nil
}

// ListByAudit returns the audit's visits in scheduling order
func (r *VisitRepository) ListByAudit(ctx context.Context, auditID int64) ([]*entity.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE audit_id = ? ORDER BY id ASC`
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, auditID)
	if err != nil {
		r.logger.Error("Failed to list visits", zap.Int64("audit_id", auditID), zap.Error(err))
		return nil, storageErr("list visits", err)
	}
	defer rows.Close()

	var visits []*entity.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, storageErr("scan visit", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// Update writes every mutable column guarded by the version
func (r *VisitRepository) Update(ctx context.Context, v *entity.Visit) error {
	sections, err := jsonColumn(v.Sections)
	if err != nil {
		return err
	}
	refLat, refLng := pointColumns(v.Reference)
	arrLat, arrLng := pointColumns(v.Arrival)
	depLat, depLng := pointColumns(v.Departure)

	query := `
		UPDATE visits
		SET site_name = ?, site_address = ?, reference_lat = ?, reference_lng = ?,
			scheduled_at = ?, state = ?, sections = ?, auditor_id = ?,
			arrival_at = ?, arrival_lat = ?, arrival_lng = ?,
			departure_at = ?, departure_lat = ?, departure_lng = ?,
			distance_meters = ?, verification = ?, score = ?, notes = ?, cancel_reason = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		v.SiteName,
		v.SiteAddress,
		refLat, refLng,
		v.ScheduledAt.UTC(),
		string(v.State),
		sections,
		v.AuditorID,
		nullTime(v.ArrivalAt),
		arrLat, arrLng,
		nullTime(v.DepartureAt),
		depLat, depLng,
		nullFloat(v.DistanceMeters),
		string(v.Verification),
		nullFloat(v.Score),
		v.Notes,
		v.CancelReason,
		v.UpdatedAt.UTC(),
		v.ID,
		v.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update visit", zap.Int64("id", v.ID), zap.Error(err))
		return storageErr("update visit", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, v.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: visit %d expected version %d", entity.ErrConcurrency, v.ID, v.Version)
	}
	v.Version++
	return nil
}

// Verify interface compliance
var _ port.VisitRepository = (*VisitRepository)(nil)
