package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/evgrid/station-api/internal/models"
)

// TrustRepository persists per-station trust scores.
type TrustRepository struct {
	db *sqlx.DB
}

// NewTrustRepository constructs the repository.
func NewTrustRepository(db *sqlx.DB) *TrustRepository {
	return &TrustRepository{db: db}
}

// Upsert writes the recomputed score and breakdown for a station.
func (r *TrustRepository) Upsert(ctx context.Context, trust *models.StationTrust) error {
	if trust.RecomputedAt.IsZero() {
		trust.RecomputedAt = time.Now().UTC()
	}
	breakdown, err := json.Marshal(trust.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal trust breakdown: %w", err)
	}
	const query = `INSERT INTO station_trust (station_id, score, breakdown, recomputed_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (station_id) DO UPDATE SET score = $2, breakdown = $3, recomputed_at = $4`
	if _, err := r.db.ExecContext(ctx, query, trust.StationID, trust.Score, breakdown, trust.RecomputedAt); err != nil {
		return fmt.Errorf("upsert station trust: %w", err)
	}
	return nil
}

// Get fetches the trust record of a station.
func (r *TrustRepository) Get(ctx context.Context, stationID string) (*models.StationTrust, error) {
	const query = `SELECT station_id, score, breakdown, recomputed_at FROM station_trust WHERE station_id = $1`
	var row struct {
		StationID    string    `db:"station_id"`
		Score        int       `db:"score"`
		Breakdown    []byte    `db:"breakdown"`
		RecomputedAt time.Time `db:"recomputed_at"`
	}
	if err := r.db.GetContext(ctx, &row, query, stationID); err != nil {
		return nil, err
	}
	trust := &models.StationTrust{
		StationID:    row.StationID,
		Score:        row.Score,
		RecomputedAt: row.RecomputedAt,
	}
	if len(row.Breakdown) > 0 {
		if err := json.Unmarshal(row.Breakdown, &trust.Breakdown); err != nil {
			return nil, fmt.Errorf("unmarshal trust breakdown: %w", err)
		}
	}
	return trust, nil
}
