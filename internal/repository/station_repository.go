package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evgrid/station-api/internal/models"
)

// StationRepository persists stations and their immutable versions.
type StationRepository struct {
	db *sqlx.DB
}

// NewStationRepository constructs the repository.
func NewStationRepository(db *sqlx.DB) *StationRepository {
	return &StationRepository{db: db}
}

// Create inserts a new station identity row.
func (r *StationRepository) Create(ctx context.Context, station *models.Station) error {
	if station.ID == "" {
		station.ID = uuid.NewString()
	}
	if station.CreatedAt.IsZero() {
		station.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO stations (id, provider_id, created_at)
	VALUES (:id, :provider_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, station); err != nil {
		return fmt.Errorf("create station: %w", err)
	}
	return nil
}

// GetByID fetches a station identity.
func (r *StationRepository) GetByID(ctx context.Context, id string) (*models.Station, error) {
	const query = `SELECT id, provider_id, created_at FROM stations WHERE id = $1`
	var station models.Station
	if err := r.db.GetContext(ctx, &station, query, id); err != nil {
		return nil, err
	}
	return &station, nil
}

// VersionServiceInput pairs a service row with its port groups for insert.
type VersionServiceInput struct {
	Service models.StationService
	Ports   []models.ChargingPort
}

// CreateVersion inserts a version together with its services and ports in a
// single transaction.
func (r *StationRepository) CreateVersion(ctx context.Context, version *models.StationVersion, services []VersionServiceInput) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create version: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const versionQuery = `INSERT INTO station_versions
	(id, station_id, version_no, workflow_status, name, address, lat, lng, operating_hours, parking, visibility, public_status, created_by, created_at, published_at)
	VALUES (:id, :station_id, :version_no, :workflow_status, :name, :address, :lat, :lng, :operating_hours, :parking, :visibility, :public_status, :created_by, :created_at, :published_at)`
	if _, err := tx.NamedExecContext(ctx, versionQuery, version); err != nil {
		return fmt.Errorf("create station version: %w", err)
	}

	const serviceQuery = `INSERT INTO station_services (id, station_version_id, service_type)
	VALUES ($1, $2, $3)`
	const portQuery = `INSERT INTO charging_ports (id, station_service_id, power_type, power_kw, port_count)
	VALUES ($1, $2, $3, $4, $5)`
	for i := range services {
		svc := &services[i].Service
		if svc.ID == "" {
			svc.ID = uuid.NewString()
		}
		svc.StationVersionID = version.ID
		if _, err := tx.ExecContext(ctx, serviceQuery, svc.ID, svc.StationVersionID, svc.ServiceType); err != nil {
			return fmt.Errorf("create station service: %w", err)
		}
		for j := range services[i].Ports {
			port := &services[i].Ports[j]
			if port.ID == "" {
				port.ID = uuid.NewString()
			}
			port.StationServiceID = svc.ID
			if _, err := tx.ExecContext(ctx, portQuery, port.ID, port.StationServiceID, port.PowerType, port.PowerKw, port.PortCount); err != nil {
				return fmt.Errorf("create charging port: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create version: %w", err)
	}
	commit = true
	return nil
}

// GetVersion fetches one version by identifier.
func (r *StationRepository) GetVersion(ctx context.Context, id string) (*models.StationVersion, error) {
	const query = `SELECT id, station_id, version_no, workflow_status, name, address, lat, lng,
	       operating_hours, parking, visibility, public_status, created_by, created_at, published_at
	FROM station_versions WHERE id = $1`
	var version models.StationVersion
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		return nil, err
	}
	return &version, nil
}

// GetPublishedVersion returns the live version of a station, or
// sql.ErrNoRows when none is published.
func (r *StationRepository) GetPublishedVersion(ctx context.Context, stationID string) (*models.StationVersion, error) {
	const query = `SELECT id, station_id, version_no, workflow_status, name, address, lat, lng,
	       operating_hours, parking, visibility, public_status, created_by, created_at, published_at
	FROM station_versions WHERE station_id = $1 AND workflow_status = $2`
	var version models.StationVersion
	if err := r.db.GetContext(ctx, &version, query, stationID, models.WorkflowStatusPublished); err != nil {
		return nil, err
	}
	return &version, nil
}

// GetLatestVersion returns the newest version of a station regardless of its
// workflow state, or sql.ErrNoRows when the station has no versions.
func (r *StationRepository) GetLatestVersion(ctx context.Context, stationID string) (*models.StationVersion, error) {
	const query = `SELECT id, station_id, version_no, workflow_status, name, address, lat, lng,
	       operating_hours, parking, visibility, public_status, created_by, created_at, published_at
	FROM station_versions WHERE station_id = $1 ORDER BY version_no DESC LIMIT 1`
	var version models.StationVersion
	if err := r.db.GetContext(ctx, &version, query, stationID); err != nil {
		return nil, err
	}
	return &version, nil
}

// ListServices returns the services of a version.
func (r *StationRepository) ListServices(ctx context.Context, versionID string) ([]models.StationService, error) {
	const query = `SELECT id, station_version_id, service_type FROM station_services WHERE station_version_id = $1`
	var services []models.StationService
	if err := r.db.SelectContext(ctx, &services, query, versionID); err != nil {
		return nil, fmt.Errorf("list station services: %w", err)
	}
	return services, nil
}

// ListPorts returns the port groups of a version across all its services.
func (r *StationRepository) ListPorts(ctx context.Context, versionID string) ([]models.ChargingPort, error) {
	const query = `SELECT cp.id, cp.station_service_id, cp.power_type, cp.power_kw, cp.port_count
	FROM charging_ports cp
	JOIN station_services ss ON ss.id = cp.station_service_id
	WHERE ss.station_version_id = $1
	ORDER BY cp.power_type, cp.power_kw DESC`
	var ports []models.ChargingPort
	if err := r.db.SelectContext(ctx, &ports, query, versionID); err != nil {
		return nil, fmt.Errorf("list charging ports: %w", err)
	}
	return ports, nil
}

// UpdateVersionStatus moves a version between workflow states with an
// optimistic guard on the expected current state.
func (r *StationRepository) UpdateVersionStatus(ctx context.Context, id string, from, to models.WorkflowStatus) error {
	const query = `UPDATE station_versions SET workflow_status = $1, published_at = NULL
	WHERE id = $2 AND workflow_status = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("update version status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check version status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Publish atomically swaps the live version of a station. It locks the
// station row, archives any currently published version, then marks the
// approved version as published. Returns the archived version ID when a
// previous live version existed.
func (r *StationRepository) Publish(ctx context.Context, stationID, versionID string, publishedAt time.Time) (*string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin publish: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	var lockedID string
	if err := tx.GetContext(ctx, &lockedID, `SELECT id FROM stations WHERE id = $1 FOR UPDATE`, stationID); err != nil {
		return nil, err
	}

	var archivedID *string
	var previousID string
	err = tx.GetContext(ctx, &previousID, `UPDATE station_versions
	SET workflow_status = $1, published_at = NULL
	WHERE station_id = $2 AND workflow_status = $3
	RETURNING id`, models.WorkflowStatusArchived, stationID, models.WorkflowStatusPublished)
	switch {
	case err == sql.ErrNoRows:
		// first publish for this station
	case err != nil:
		return nil, fmt.Errorf("archive published version: %w", err)
	default:
		archivedID = &previousID
	}

	result, err := tx.ExecContext(ctx, `UPDATE station_versions
	SET workflow_status = $1, published_at = $2
	WHERE id = $3 AND workflow_status = $4`,
		models.WorkflowStatusPublished, publishedAt, versionID, models.WorkflowStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("publish version: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check publish rows: %w", err)
	}
	if rows == 0 {
		return nil, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit publish: %w", err)
	}
	commit = true
	return archivedID, nil
}
