package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evgrid/station-api/internal/models"
)

const verificationTaskColumns = `id, station_id, change_request_id, status, priority, sla_due_at, assignee_id, result,
       review_note, created_by, created_at, assigned_at, checked_in_at, submitted_at, reviewed_at, reviewed_by`

// VerificationRepository persists field-verification tasks and their
// check-ins, evidence, and reviews.
type VerificationRepository struct {
	db *sqlx.DB
}

// NewVerificationRepository constructs the repository.
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// CreateTask inserts an OPEN task.
func (r *VerificationRepository) CreateTask(ctx context.Context, task *models.VerificationTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.VerificationOpen
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO verification_tasks
	(id, station_id, change_request_id, status, priority, sla_due_at, assignee_id, result, review_note, created_by, created_at, assigned_at, checked_in_at, submitted_at, reviewed_at, reviewed_by)
	VALUES (:id, :station_id, :change_request_id, :status, :priority, :sla_due_at, :assignee_id, :result, :review_note, :created_by, :created_at, :assigned_at, :checked_in_at, :submitted_at, :reviewed_at, :reviewed_by)`
	if _, err := r.db.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("create verification task: %w", err)
	}
	return nil
}

// GetTask fetches a task by identifier.
func (r *VerificationRepository) GetTask(ctx context.Context, id string) (*models.VerificationTask, error) {
	query := `SELECT ` + verificationTaskColumns + ` FROM verification_tasks WHERE id = $1`
	var task models.VerificationTask
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns tasks matching the filter, highest priority and nearest
// SLA deadline first.
func (r *VerificationRepository) ListTasks(ctx context.Context, filter models.VerificationTaskFilter) ([]models.VerificationTask, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.StationID != nil {
		args = append(args, *filter.StationID)
		conditions = append(conditions, fmt.Sprintf("station_id = $%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		conditions = append(conditions, fmt.Sprintf("assignee_id = $%d", len(args)))
	}
	if filter.DueBefore != nil {
		args = append(args, *filter.DueBefore)
		conditions = append(conditions, fmt.Sprintf("sla_due_at <= $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM verification_tasks"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count verification tasks: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	query := fmt.Sprintf("SELECT %s FROM verification_tasks%s ORDER BY priority DESC, sla_due_at ASC NULLS LAST, created_at ASC LIMIT %d OFFSET %d",
		verificationTaskColumns, where, pageSize, (page-1)*pageSize)

	var tasks []models.VerificationTask
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list verification tasks: %w", err)
	}
	return tasks, total, nil
}

// Assign moves OPEN to ASSIGNED for the given collaborator.
func (r *VerificationRepository) Assign(ctx context.Context, id, assigneeID string, at time.Time) error {
	const query = `UPDATE verification_tasks
	SET status = $1, assignee_id = $2, assigned_at = $3
	WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, models.VerificationAssigned, assigneeID, at, id, models.VerificationOpen)
	if err != nil {
		return fmt.Errorf("assign verification task: %w", err)
	}
	return requireRow(result)
}

// Checkin records the arrival position and moves ASSIGNED to CHECKED_IN in
// one transaction.
func (r *VerificationRepository) Checkin(ctx context.Context, checkin *models.VerificationCheckin) error {
	if checkin.ID == "" {
		checkin.ID = uuid.NewString()
	}
	if checkin.CreatedAt.IsZero() {
		checkin.CreatedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkin: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO verification_checkins (id, task_id, lat, lng, distance_meters, device_note, created_at)
	VALUES (:id, :task_id, :lat, :lng, :distance_meters, :device_note, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, checkin); err != nil {
		return fmt.Errorf("insert checkin: %w", err)
	}

	result, err := tx.ExecContext(ctx, `UPDATE verification_tasks
	SET status = $1, checked_in_at = $2
	WHERE id = $3 AND status = $4`,
		models.VerificationCheckedIn, checkin.CreatedAt, checkin.TaskID, models.VerificationAssigned)
	if err != nil {
		return fmt.Errorf("update task on checkin: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkin: %w", err)
	}
	commit = true
	return nil
}

// AddEvidence attaches evidence to a checked-in task.
func (r *VerificationRepository) AddEvidence(ctx context.Context, evidence *models.VerificationEvidence) error {
	if evidence.ID == "" {
		evidence.ID = uuid.NewString()
	}
	if evidence.CreatedAt.IsZero() {
		evidence.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO verification_evidence (id, task_id, object_key, note, submitted_by, created_at)
	VALUES (:id, :task_id, :object_key, :note, :submitted_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, evidence); err != nil {
		return fmt.Errorf("add evidence: %w", err)
	}
	return nil
}

// ListEvidence returns the evidence of a task, oldest first.
func (r *VerificationRepository) ListEvidence(ctx context.Context, taskID string) ([]models.VerificationEvidence, error) {
	const query = `SELECT id, task_id, object_key, note, submitted_by, created_at
	FROM verification_evidence WHERE task_id = $1 ORDER BY created_at ASC`
	var items []models.VerificationEvidence
	if err := r.db.SelectContext(ctx, &items, query, taskID); err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	return items, nil
}

// SubmitTask moves CHECKED_IN to SUBMITTED.
func (r *VerificationRepository) SubmitTask(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE verification_tasks SET status = $1, submitted_at = $2
	WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, models.VerificationSubmitted, at, id, models.VerificationCheckedIn)
	if err != nil {
		return fmt.Errorf("submit verification task: %w", err)
	}
	return requireRow(result)
}

// Review moves SUBMITTED to REVIEWED with the admin verdict.
func (r *VerificationRepository) Review(ctx context.Context, id string, result models.VerificationResult, note *string, reviewerID string, at time.Time) error {
	const query = `UPDATE verification_tasks
	SET status = $1, result = $2, review_note = $3, reviewed_by = $4, reviewed_at = $5
	WHERE id = $6 AND status = $7`
	res, err := r.db.ExecContext(ctx, query,
		models.VerificationReviewed, result, note, reviewerID, at, id, models.VerificationSubmitted)
	if err != nil {
		return fmt.Errorf("review verification task: %w", err)
	}
	return requireRow(res)
}

// LatestReviewedResult returns the result of the most recently reviewed task
// for a station since the cutoff, or sql.ErrNoRows when none exists.
func (r *VerificationRepository) LatestReviewedResult(ctx context.Context, stationID string, since time.Time) (models.VerificationResult, error) {
	const query = `SELECT result FROM verification_tasks
	WHERE station_id = $1 AND status = $2 AND reviewed_at >= $3
	ORDER BY reviewed_at DESC LIMIT 1`
	var result models.VerificationResult
	if err := r.db.GetContext(ctx, &result, query, stationID, models.VerificationReviewed, since); err != nil {
		return "", err
	}
	return result, nil
}

// HasPassForChangeRequest reports whether any task tied to the change
// request was reviewed with a PASS.
func (r *VerificationRepository) HasPassForChangeRequest(ctx context.Context, changeRequestID string) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM verification_tasks
	WHERE change_request_id = $1 AND status = $2 AND result = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, changeRequestID, models.VerificationReviewed, models.VerificationPass); err != nil {
		return false, fmt.Errorf("check verification pass: %w", err)
	}
	return exists, nil
}

// MonthlyKPI aggregates a collaborator's reviewed tasks since the given
// period start.
func (r *VerificationRepository) MonthlyKPI(ctx context.Context, collaboratorID string, periodStart time.Time) (*models.CollaboratorKPI, error) {
	const query = `SELECT
	COUNT(*) AS total,
	COUNT(*) FILTER (WHERE result = $1) AS passed,
	COUNT(*) FILTER (WHERE result = $2) AS failed
	FROM verification_tasks
	WHERE assignee_id = $3 AND status = $4 AND reviewed_at >= $5`
	var row struct {
		Total  int `db:"total"`
		Passed int `db:"passed"`
		Failed int `db:"failed"`
	}
	if err := r.db.GetContext(ctx, &row, query,
		models.VerificationPass, models.VerificationFail, collaboratorID, models.VerificationReviewed, periodStart); err != nil {
		return nil, fmt.Errorf("collaborator kpi: %w", err)
	}
	return &models.CollaboratorKPI{
		CollaboratorID: collaboratorID,
		PeriodStart:    periodStart.Format("2006-01-02"),
		TotalReviewed:  row.Total,
		Passed:         row.Passed,
		Failed:         row.Failed,
	}, nil
}

// ListCandidates returns collaborators eligible for assignment on the given
// date: those with a profile and an active contract covering it, together
// with workload counters. One row per collaborator, no matter how many
// contracts cover the date. Distance ranking is applied by the caller.
func (r *VerificationRepository) ListCandidates(ctx context.Context, at time.Time) ([]models.CandidateCollaborator, error) {
	const query = `SELECT p.user_id, p.full_name, p.region, p.lat, p.lng,
	COALESCE(active.cnt, 0) AS active_tasks,
	COALESCE(done.cnt, 0) AS completed_tasks
	FROM collaborator_profiles p
	LEFT JOIN (
	 SELECT assignee_id, COUNT(*) AS cnt FROM verification_tasks
	 WHERE status IN ($3, $4, $5) GROUP BY assignee_id
	) active ON active.assignee_id = p.user_id
	LEFT JOIN (
	 SELECT assignee_id, COUNT(*) AS cnt FROM verification_tasks
	 WHERE status = $6 GROUP BY assignee_id
	) done ON done.assignee_id = p.user_id
	WHERE EXISTS (
	 SELECT 1 FROM collaborator_contracts c
	 WHERE c.user_id = p.user_id
	  AND c.status = $1 AND c.start_date <= $2 AND c.end_date >= $2)`
	var candidates []models.CandidateCollaborator
	if err := r.db.SelectContext(ctx, &candidates, query,
		models.ContractActive, at,
		models.VerificationAssigned, models.VerificationCheckedIn, models.VerificationSubmitted,
		models.VerificationReviewed); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return candidates, nil
}
