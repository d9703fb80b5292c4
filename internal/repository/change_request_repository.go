package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/evgrid/station-api/internal/models"
)

const changeRequestColumns = `id, request_type, status, station_id, station_version_id, requested_by,
       risk_score, risk_reasons, reject_reason, created_at, submitted_at, decided_at`

// ChangeRequestRepository persists the moderation workflow.
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository constructs the repository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

// Create inserts a draft change request.
func (r *ChangeRequestRepository) Create(ctx context.Context, cr *models.ChangeRequest) error {
	if cr.ID == "" {
		cr.ID = uuid.NewString()
	}
	if cr.Status == "" {
		cr.Status = models.ChangeRequestDraft
	}
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO change_requests
	(id, request_type, status, station_id, station_version_id, requested_by, risk_score, risk_reasons, reject_reason, created_at, submitted_at, decided_at)
	VALUES (:id, :request_type, :status, :station_id, :station_version_id, :requested_by, :risk_score, :risk_reasons, :reject_reason, :created_at, :submitted_at, :decided_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cr); err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	return nil
}

// GetByID fetches a change request.
func (r *ChangeRequestRepository) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE id = $1`
	var cr models.ChangeRequest
	if err := r.db.GetContext(ctx, &cr, query, id); err != nil {
		return nil, err
	}
	return &cr, nil
}

// List returns change requests matching the filter, newest first.
func (r *ChangeRequestRepository) List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.RequestType != nil {
		args = append(args, *filter.RequestType)
		conditions = append(conditions, fmt.Sprintf("request_type = $%d", len(args)))
	}
	if filter.RequestedBy != nil {
		args = append(args, *filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("requested_by = $%d", len(args)))
	}
	if filter.MinRisk != nil {
		args = append(args, *filter.MinRisk)
		conditions = append(conditions, fmt.Sprintf("risk_score >= $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM change_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count change requests: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	query := fmt.Sprintf("SELECT %s FROM change_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		changeRequestColumns, where, pageSize, (page-1)*pageSize)

	var items []models.ChangeRequest
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list change requests: %w", err)
	}
	return items, total, nil
}

// Submit freezes the risk assessment and moves DRAFT to PENDING. Returns
// sql.ErrNoRows when the request is not in DRAFT.
func (r *ChangeRequestRepository) Submit(ctx context.Context, id string, score int, reasons []string, submittedAt time.Time) error {
	const query = `UPDATE change_requests
	SET status = $1, risk_score = $2, risk_reasons = $3, submitted_at = $4
	WHERE id = $5 AND status = $6`
	result, err := r.db.ExecContext(ctx, query,
		models.ChangeRequestPending, score, pq.StringArray(reasons), submittedAt, id, models.ChangeRequestDraft)
	if err != nil {
		return fmt.Errorf("submit change request: %w", err)
	}
	return requireRow(result)
}

// Decide moves PENDING to APPROVED or REJECTED and stamps the decision time.
func (r *ChangeRequestRepository) Decide(ctx context.Context, id string, to models.ChangeRequestStatus, reason *string, decidedAt time.Time) error {
	const query = `UPDATE change_requests
	SET status = $1, reject_reason = $2, decided_at = $3
	WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, to, reason, decidedAt, id, models.ChangeRequestPending)
	if err != nil {
		return fmt.Errorf("decide change request: %w", err)
	}
	return requireRow(result)
}

// MarkPublished moves APPROVED to PUBLISHED, stamping decided_at only when
// it is still unset.
func (r *ChangeRequestRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE change_requests
	SET status = $1, decided_at = COALESCE(decided_at, $2)
	WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, models.ChangeRequestPublished, at, id, models.ChangeRequestApproved)
	if err != nil {
		return fmt.Errorf("mark change request published: %w", err)
	}
	return requireRow(result)
}

// SetStationID backfills the station on a creation request once the station
// row has been allocated.
func (r *ChangeRequestRepository) SetStationID(ctx context.Context, id, stationID string) error {
	const query = `UPDATE change_requests SET station_id = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, stationID, id); err != nil {
		return fmt.Errorf("set change request station: %w", err)
	}
	return nil
}

// HasRecentHighRiskPublish reports whether any change request for the
// station was published at or above the risk threshold since the cutoff.
func (r *ChangeRequestRepository) HasRecentHighRiskPublish(ctx context.Context, stationID string, since time.Time, minRisk int) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM change_requests
	WHERE station_id = $1 AND status = $2 AND risk_score >= $3 AND decided_at >= $4)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, stationID, models.ChangeRequestPublished, minRisk, since); err != nil {
		return false, fmt.Errorf("check high risk publishes: %w", err)
	}
	return exists, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
