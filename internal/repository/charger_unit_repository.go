package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evgrid/station-api/internal/models"
)

// ChargerUnitRepository persists physical charging bays.
type ChargerUnitRepository struct {
	db *sqlx.DB
}

// NewChargerUnitRepository constructs the repository.
func NewChargerUnitRepository(db *sqlx.DB) *ChargerUnitRepository {
	return &ChargerUnitRepository{db: db}
}

// ListLabels returns the existing unit labels of a station.
func (r *ChargerUnitRepository) ListLabels(ctx context.Context, stationID string) ([]string, error) {
	const query = `SELECT label FROM charger_units WHERE station_id = $1`
	var labels []string
	if err := r.db.SelectContext(ctx, &labels, query, stationID); err != nil {
		return nil, fmt.Errorf("list charger unit labels: %w", err)
	}
	return labels, nil
}

// ListByStation returns a station's units ordered by label.
func (r *ChargerUnitRepository) ListByStation(ctx context.Context, stationID string) ([]models.ChargerUnit, error) {
	const query = `SELECT id, station_id, label, power_type, power_kw, price_per_slot, created_at
	FROM charger_units WHERE station_id = $1 ORDER BY label`
	var units []models.ChargerUnit
	if err := r.db.SelectContext(ctx, &units, query, stationID); err != nil {
		return nil, fmt.Errorf("list charger units: %w", err)
	}
	return units, nil
}

// BulkInsert inserts units, skipping labels that already exist.
func (r *ChargerUnitRepository) BulkInsert(ctx context.Context, units []models.ChargerUnit) error {
	if len(units) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert charger units: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()
	const query = `INSERT INTO charger_units (id, station_id, label, power_type, power_kw, price_per_slot, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (station_id, label) DO NOTHING`
	now := time.Now().UTC()
	for i := range units {
		unit := &units[i]
		if unit.ID == "" {
			unit.ID = uuid.NewString()
		}
		if unit.CreatedAt.IsZero() {
			unit.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, query,
			unit.ID, unit.StationID, unit.Label, unit.PowerType, unit.PowerKw, unit.PricePerSlot, unit.CreatedAt); err != nil {
			return fmt.Errorf("insert charger unit: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert charger units: %w", err)
	}
	commit = true
	return nil
}
