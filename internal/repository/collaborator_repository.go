package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evgrid/station-api/internal/models"
)

// CollaboratorRepository persists collaborator profiles and contracts.
type CollaboratorRepository struct {
	db *sqlx.DB
}

// NewCollaboratorRepository constructs the repository.
func NewCollaboratorRepository(db *sqlx.DB) *CollaboratorRepository {
	return &CollaboratorRepository{db: db}
}

// UpsertProfile creates or replaces a collaborator profile.
func (r *CollaboratorRepository) UpsertProfile(ctx context.Context, profile *models.CollaboratorProfile) error {
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO collaborator_profiles (user_id, full_name, phone, region, lat, lng, created_at)
	VALUES (:user_id, :full_name, :phone, :region, :lat, :lng, :created_at)
	ON CONFLICT (user_id) DO UPDATE SET
	full_name = EXCLUDED.full_name, phone = EXCLUDED.phone, region = EXCLUDED.region,
	lat = EXCLUDED.lat, lng = EXCLUDED.lng`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("upsert collaborator profile: %w", err)
	}
	return nil
}

// GetProfile fetches a collaborator profile.
func (r *CollaboratorRepository) GetProfile(ctx context.Context, userID string) (*models.CollaboratorProfile, error) {
	const query = `SELECT user_id, full_name, phone, region, lat, lng, created_at
	FROM collaborator_profiles WHERE user_id = $1`
	var profile models.CollaboratorProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetUser fetches the account row mirrored from the identity provider.
func (r *CollaboratorRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, email, full_name, role, active, created_at FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateContract inserts a contract row.
func (r *CollaboratorRepository) CreateContract(ctx context.Context, contract *models.CollaboratorContract) error {
	if contract.ID == "" {
		contract.ID = uuid.NewString()
	}
	if contract.Status == "" {
		contract.Status = models.ContractActive
	}
	if contract.CreatedAt.IsZero() {
		contract.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO collaborator_contracts (id, user_id, status, start_date, end_date, created_at)
	VALUES (:id, :user_id, :status, :start_date, :end_date, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, contract); err != nil {
		return fmt.Errorf("create contract: %w", err)
	}
	return nil
}

// GetActiveContract returns an ACTIVE contract covering the given date, or
// sql.ErrNoRows when none exists.
func (r *CollaboratorRepository) GetActiveContract(ctx context.Context, userID string, at time.Time) (*models.CollaboratorContract, error) {
	const query = `SELECT id, user_id, status, start_date, end_date, created_at
	FROM collaborator_contracts
	WHERE user_id = $1 AND status = $2 AND start_date <= $3 AND end_date >= $3
	ORDER BY end_date DESC LIMIT 1`
	var contract models.CollaboratorContract
	if err := r.db.GetContext(ctx, &contract, query, userID, models.ContractActive, at); err != nil {
		return nil, err
	}
	return &contract, nil
}

// ListContracts returns all contracts of a collaborator, newest first.
func (r *CollaboratorRepository) ListContracts(ctx context.Context, userID string) ([]models.CollaboratorContract, error) {
	const query = `SELECT id, user_id, status, start_date, end_date, created_at
	FROM collaborator_contracts WHERE user_id = $1 ORDER BY created_at DESC`
	var contracts []models.CollaboratorContract
	if err := r.db.SelectContext(ctx, &contracts, query, userID); err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return contracts, nil
}

// TerminateContract marks an ACTIVE contract as TERMINATED.
func (r *CollaboratorRepository) TerminateContract(ctx context.Context, id string) error {
	const query = `UPDATE collaborator_contracts SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, models.ContractTerminated, id, models.ContractActive)
	if err != nil {
		return fmt.Errorf("terminate contract: %w", err)
	}
	return requireRow(result)
}
