package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/evgrid/station-api/internal/models"
)

const issueColumns = `id, station_id, reported_by, category, description, status, created_at, updated_at`

// IssueRepository persists EV-user reports against published stations.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository constructs the repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Create inserts an OPEN issue.
func (r *IssueRepository) Create(ctx context.Context, issue *models.StationIssue) error {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.Status == "" {
		issue.Status = models.IssueOpen
	}
	now := time.Now().UTC()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = now
	const query = `INSERT INTO station_issues
	(id, station_id, reported_by, category, description, status, created_at, updated_at)
	VALUES (:id, :station_id, :reported_by, :category, :description, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// GetByID fetches an issue.
func (r *IssueRepository) GetByID(ctx context.Context, id string) (*models.StationIssue, error) {
	query := `SELECT ` + issueColumns + ` FROM station_issues WHERE id = $1`
	var issue models.StationIssue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		return nil, err
	}
	return &issue, nil
}

// List returns issues matching the filter, newest first.
func (r *IssueRepository) List(ctx context.Context, filter models.IssueFilter) ([]models.StationIssue, int, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if filter.StationID != nil {
		args = append(args, *filter.StationID)
		conditions = append(conditions, fmt.Sprintf("station_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM station_issues"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	query := fmt.Sprintf("SELECT %s FROM station_issues%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		issueColumns, where, pageSize, (page-1)*pageSize)

	var items []models.StationIssue
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	return items, total, nil
}

// UpdateStatus transitions an issue, guarded by the allowed source states.
func (r *IssueRepository) UpdateStatus(ctx context.Context, id string, to models.IssueStatus, from ...models.IssueStatus) error {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	const query = `UPDATE station_issues SET status = $1, updated_at = $2
	WHERE id = $3 AND status = ANY($4)`
	result, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, pq.StringArray(states))
	if err != nil {
		return fmt.Errorf("update issue status: %w", err)
	}
	return requireRow(result)
}

// CountUnresolved counts OPEN and ACKNOWLEDGED issues for a station.
func (r *IssueRepository) CountUnresolved(ctx context.Context, stationID string) (int, error) {
	const query = `SELECT COUNT(*) FROM station_issues
	WHERE station_id = $1 AND status IN ($2, $3)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, stationID, models.IssueOpen, models.IssueAcknowledged); err != nil {
		return 0, fmt.Errorf("count unresolved issues: %w", err)
	}
	return count, nil
}
