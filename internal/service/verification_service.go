package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
	"github.com/evgrid/station-api/pkg/export"
	"github.com/evgrid/station-api/pkg/geo"
)

// defaultMaxCheckinDistance is how far from the published location a
// collaborator may check in, in meters.
const defaultMaxCheckinDistance = 200.0

type verificationStore interface {
	CreateTask(ctx context.Context, task *models.VerificationTask) error
	GetTask(ctx context.Context, id string) (*models.VerificationTask, error)
	ListTasks(ctx context.Context, filter models.VerificationTaskFilter) ([]models.VerificationTask, int, error)
	Assign(ctx context.Context, id, assigneeID string, at time.Time) error
	Checkin(ctx context.Context, checkin *models.VerificationCheckin) error
	AddEvidence(ctx context.Context, evidence *models.VerificationEvidence) error
	ListEvidence(ctx context.Context, taskID string) ([]models.VerificationEvidence, error)
	SubmitTask(ctx context.Context, id string, at time.Time) error
	Review(ctx context.Context, id string, result models.VerificationResult, note *string, reviewerID string, at time.Time) error
	ListCandidates(ctx context.Context, at time.Time) ([]models.CandidateCollaborator, error)
	MonthlyKPI(ctx context.Context, collaboratorID string, periodStart time.Time) (*models.CollaboratorKPI, error)
}

type stationLocator interface {
	GetByID(ctx context.Context, id string) (*models.Station, error)
	GetPublishedVersion(ctx context.Context, stationID string) (*models.StationVersion, error)
}

type collaboratorGate interface {
	HasProfile(ctx context.Context, userID string) (bool, error)
	ResolveRole(ctx context.Context, userID string) (models.UserRole, error)
	RequireActiveContract(ctx context.Context, userID string, at time.Time) error
}

type evidenceSigner interface {
	Generate(taskID, objectKey string) (string, time.Time, error)
}

type reviewObserver interface {
	RecordVerificationReview(result models.VerificationResult)
}

// VerificationService runs the field-verification lifecycle from task
// creation through admin review.
type VerificationService struct {
	repo          verificationStore
	stations      stationLocator
	collaborators collaboratorGate
	signer        evidenceSigner
	trust         trustRecomputer
	audit         auditRecorder
	metrics       reviewObserver
	pdf           *export.PDFExporter
	logger        *zap.Logger

	maxCheckinDistance float64
	defaultPriority    int
}

// VerificationServiceOption configures the service.
type VerificationServiceOption func(*VerificationService)

// WithMaxCheckinDistance overrides the check-in radius in meters.
func WithMaxCheckinDistance(meters float64) VerificationServiceOption {
	return func(s *VerificationService) {
		if meters > 0 {
			s.maxCheckinDistance = meters
		}
	}
}

// WithDefaultTaskPriority overrides the priority of tasks created without one.
func WithDefaultTaskPriority(priority int) VerificationServiceOption {
	return func(s *VerificationService) {
		if priority > 0 {
			s.defaultPriority = priority
		}
	}
}

// NewVerificationService constructs the service with defaults.
func NewVerificationService(repo verificationStore, stations stationLocator, collaborators collaboratorGate, signer evidenceSigner, trust trustRecomputer, audit auditRecorder, metrics reviewObserver, logger *zap.Logger, opts ...VerificationServiceOption) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &VerificationService{
		repo:               repo,
		stations:           stations,
		collaborators:      collaborators,
		signer:             signer,
		trust:              trust,
		audit:              audit,
		metrics:            metrics,
		pdf:                export.NewPDFExporter(),
		logger:             logger,
		maxCheckinDistance: defaultMaxCheckinDistance,
		defaultPriority:    3,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateTask opens a verification task against a station.
func (s *VerificationService) CreateTask(ctx context.Context, payload dto.CreateVerificationTaskPayload, actor *models.JWTClaims) (*models.VerificationTask, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	if _, err := s.stations.GetByID(ctx, payload.StationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "station not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load station")
	}
	priority := s.defaultPriority
	if payload.Priority != nil {
		if *payload.Priority < 1 || *payload.Priority > 5 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "priority must be between 1 and 5")
		}
		priority = *payload.Priority
	}
	task := &models.VerificationTask{
		StationID:       payload.StationID,
		ChangeRequestID: payload.ChangeRequestID,
		Status:          models.VerificationOpen,
		Priority:        priority,
		SLADueAt:        payload.SLADueAt,
		CreatedBy:       actor.UserID,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create verification task")
	}
	s.emitAudit(ctx, actor, models.AuditCreateVerification, task.ID, map[string]string{"stationId": task.StationID})
	return task, nil
}

// GetTask returns one task, restricted to admins and the assignee.
func (s *VerificationService) GetTask(ctx context.Context, id string, actor *models.JWTClaims) (*models.VerificationTask, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	task, err := s.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && !isAssignee(task, actor.UserID) {
		return nil, appErrors.ErrForbidden
	}
	return task, nil
}

// ListTasks returns tasks scoped by actor role.
func (s *VerificationService) ListTasks(ctx context.Context, filter models.VerificationTaskFilter, actor *models.JWTClaims) ([]models.VerificationTask, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
		// unrestricted
	case models.RoleCollaborator:
		assignee := actor.UserID
		filter.AssigneeID = &assignee
	default:
		return nil, 0, appErrors.ErrForbidden
	}
	tasks, total, err := s.repo.ListTasks(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list verification tasks")
	}
	return tasks, total, nil
}

// Assign hands an open task to a collaborator. The assignee must hold the
// collaborator role, a profile, and an active contract covering today.
func (s *VerificationService) Assign(ctx context.Context, id string, payload dto.AssignVerificationTaskPayload, actor *models.JWTClaims) (*models.VerificationTask, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	task, err := s.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.VerificationOpen {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only open tasks can be assigned")
	}
	role, err := s.collaborators.ResolveRole(ctx, payload.AssigneeID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleCollaborator {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee must be a collaborator")
	}
	hasProfile, err := s.collaborators.HasProfile(ctx, payload.AssigneeID)
	if err != nil {
		return nil, err
	}
	if !hasProfile {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee has no collaborator profile")
	}

	now := time.Now().UTC()
	if err := s.collaborators.RequireActiveContract(ctx, payload.AssigneeID, now); err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrForbidden.Code {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assignee has no active contract covering today")
		}
		return nil, err
	}
	if err := s.repo.Assign(ctx, task.ID, payload.AssigneeID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "task already assigned")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign task")
	}
	task.Status = models.VerificationAssigned
	task.AssigneeID = &payload.AssigneeID
	task.AssignedAt = &now
	s.emitAudit(ctx, actor, models.AuditAssignVerification, task.ID, map[string]string{"assigneeId": payload.AssigneeID})
	return task, nil
}

// Candidates ranks eligible collaborators for a task: nearest to the
// station's published location first, then lightest current workload, then
// most completed reviews.
func (s *VerificationService) Candidates(ctx context.Context, taskID string, actor *models.JWTClaims) ([]models.CandidateCollaborator, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var target *geo.Point
	published, err := s.stations.GetPublishedVersion(ctx, task.StationID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// unpublished station, rank by workload only
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published version")
	default:
		if published.HasLocation() {
			target = &geo.Point{Lat: *published.Lat, Lng: *published.Lng}
		}
	}

	candidates, err := s.repo.ListCandidates(ctx, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list candidates")
	}
	for i := range candidates {
		c := &candidates[i]
		if target != nil && c.Lat != nil && c.Lng != nil {
			d := geo.DistanceMeters(*target, geo.Point{Lat: *c.Lat, Lng: *c.Lng})
			c.DistanceMeters = &d
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch {
		case a.DistanceMeters != nil && b.DistanceMeters != nil && *a.DistanceMeters != *b.DistanceMeters:
			return *a.DistanceMeters < *b.DistanceMeters
		case (a.DistanceMeters != nil) != (b.DistanceMeters != nil):
			return a.DistanceMeters != nil
		case a.ActiveTasks != b.ActiveTasks:
			return a.ActiveTasks < b.ActiveTasks
		default:
			return a.CompletedTasks > b.CompletedTasks
		}
	})
	return candidates, nil
}

// Checkin records the assignee's arrival at the station. The reported
// position must fall within the check-in radius of the published location.
func (s *VerificationService) Checkin(ctx context.Context, taskID string, payload dto.CheckinPayload, actor *models.JWTClaims) (*models.VerificationCheckin, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !isAssignee(task, actor.UserID) {
		return nil, appErrors.ErrForbidden
	}
	if task.Status != models.VerificationAssigned {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "task is not awaiting check-in")
	}
	now := time.Now().UTC()
	if err := s.collaborators.RequireActiveContract(ctx, actor.UserID, now); err != nil {
		return nil, err
	}

	published, err := s.stations.GetPublishedVersion(ctx, task.StationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "station has no published location to verify against")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published version")
	}
	if !published.HasLocation() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "published version has no coordinates")
	}
	distance := geo.DistanceMeters(
		geo.Point{Lat: *published.Lat, Lng: *published.Lng},
		geo.Point{Lat: payload.Lat, Lng: payload.Lng},
	)
	if distance > s.maxCheckinDistance {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("check-in position is %.0fm from the station, limit is %.0fm", distance, s.maxCheckinDistance))
	}

	checkin := &models.VerificationCheckin{
		TaskID:         task.ID,
		Lat:            payload.Lat,
		Lng:            payload.Lng,
		DistanceMeters: distance,
		DeviceNote:     payload.DeviceNote,
		CreatedAt:      now,
	}
	if err := s.repo.Checkin(ctx, checkin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "task is not awaiting check-in")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-in")
	}
	s.emitAudit(ctx, actor, models.AuditCheckinVerification, task.ID, map[string]string{
		"distanceMeters": strconv.FormatFloat(distance, 'f', 1, 64),
	})
	return checkin, nil
}

// AddEvidence attaches one evidence object to a checked-in task.
func (s *VerificationService) AddEvidence(ctx context.Context, taskID string, payload dto.EvidencePayload, actor *models.JWTClaims) (*models.VerificationEvidence, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !isAssignee(task, actor.UserID) {
		return nil, appErrors.ErrForbidden
	}
	if task.Status != models.VerificationCheckedIn {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "evidence can only be added after check-in")
	}
	if err := s.collaborators.RequireActiveContract(ctx, actor.UserID, time.Now().UTC()); err != nil {
		return nil, err
	}
	evidence := &models.VerificationEvidence{
		TaskID:      task.ID,
		ObjectKey:   payload.ObjectKey,
		Note:        payload.Note,
		SubmittedBy: actor.UserID,
	}
	if err := s.repo.AddEvidence(ctx, evidence); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence")
	}
	return evidence, nil
}

// SubmitEvidence finalizes the site visit, optionally attaching a last batch
// of evidence, and hands the task to review.
func (s *VerificationService) SubmitEvidence(ctx context.Context, taskID string, payload dto.SubmitEvidencePayload, actor *models.JWTClaims) (*models.VerificationTask, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !isAssignee(task, actor.UserID) {
		return nil, appErrors.ErrForbidden
	}
	if task.Status != models.VerificationCheckedIn {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only checked-in tasks can be submitted")
	}
	now := time.Now().UTC()
	if err := s.collaborators.RequireActiveContract(ctx, actor.UserID, now); err != nil {
		return nil, err
	}
	for _, item := range payload.Items {
		evidence := &models.VerificationEvidence{TaskID: task.ID, ObjectKey: item.ObjectKey, Note: item.Note, SubmittedBy: actor.UserID}
		if err := s.repo.AddEvidence(ctx, evidence); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence")
		}
	}
	stored, err := s.repo.ListEvidence(ctx, task.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evidence")
	}
	if len(stored) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one evidence item is required")
	}
	if err := s.repo.SubmitTask(ctx, task.ID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "task already submitted")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit task")
	}
	task.Status = models.VerificationSubmitted
	task.SubmittedAt = &now
	s.emitAudit(ctx, actor, models.AuditSubmitEvidence, task.ID, map[string]string{
		"evidenceCount": strconv.Itoa(len(stored)),
	})
	return task, nil
}

// Review records the admin verdict and triggers a trust recomputation for
// the station.
func (s *VerificationService) Review(ctx context.Context, taskID string, payload dto.ReviewPayload, actor *models.JWTClaims) (*models.VerificationTask, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	if payload.Result != models.VerificationPass && payload.Result != models.VerificationFail {
		return nil, appErrors.Clone(appErrors.ErrValidation, "result must be PASS or FAIL")
	}
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.VerificationSubmitted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only submitted tasks can be reviewed")
	}

	now := time.Now().UTC()
	if err := s.repo.Review(ctx, task.ID, payload.Result, payload.Note, actor.UserID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "task already reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review task")
	}
	task.Status = models.VerificationReviewed
	task.Result = &payload.Result
	task.ReviewNote = payload.Note
	task.ReviewedBy = &actor.UserID
	task.ReviewedAt = &now

	if s.trust != nil {
		if _, err := s.trust.Recompute(ctx, task.StationID); err != nil {
			s.logger.Warn("trust recompute failed", zap.String("station_id", task.StationID), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.RecordVerificationReview(payload.Result)
	}
	s.emitAudit(ctx, actor, models.AuditReviewEvidence, task.ID, map[string]string{
		"result": string(payload.Result),
	})
	return task, nil
}

// ListEvidence returns a task's evidence enriched with signed view URLs.
func (s *VerificationService) ListEvidence(ctx context.Context, taskID string, actor *models.JWTClaims) ([]dto.EvidenceResponse, error) {
	task, err := s.GetTask(ctx, taskID, actor)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListEvidence(ctx, task.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evidence")
	}
	responses := make([]dto.EvidenceResponse, 0, len(items))
	for _, item := range items {
		resp := dto.EvidenceResponse{VerificationEvidence: item}
		if s.signer != nil {
			token, expiresAt, err := s.signer.Generate(task.ID, item.ObjectKey)
			if err != nil {
				s.logger.Warn("evidence url signing failed", zap.String("evidence_id", item.ID), zap.Error(err))
			} else {
				resp.ViewURL = "/evidence/view?token=" + token
				resp.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
			}
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

// KPI summarizes the collaborator's reviewed tasks for the current calendar
// month. Collaborators can only read their own numbers.
func (s *VerificationService) KPI(ctx context.Context, collaboratorID string, actor *models.JWTClaims) (*models.CollaboratorKPI, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.UserID != collaboratorID {
		return nil, appErrors.ErrForbidden
	}
	now := time.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	kpi, err := s.repo.MonthlyKPI(ctx, collaboratorID, periodStart)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate kpi")
	}
	if kpi.TotalReviewed > 0 {
		rate := float64(kpi.Passed) / float64(kpi.TotalReviewed) * 100
		kpi.PassRate = math.Round(rate*100) / 100
	}
	return kpi, nil
}

// KPIPDF renders the monthly summary as a PDF report.
func (s *VerificationService) KPIPDF(ctx context.Context, collaboratorID string, actor *models.JWTClaims) ([]byte, error) {
	kpi, err := s.KPI(ctx, collaboratorID, actor)
	if err != nil {
		return nil, err
	}
	dataset := export.Dataset{
		Headers: []string{"Metric", "Value"},
		Rows: []map[string]string{
			{"Metric": "Period start", "Value": kpi.PeriodStart},
			{"Metric": "Reviewed tasks", "Value": strconv.Itoa(kpi.TotalReviewed)},
			{"Metric": "Passed", "Value": strconv.Itoa(kpi.Passed)},
			{"Metric": "Failed", "Value": strconv.Itoa(kpi.Failed)},
			{"Metric": "Pass rate (%)", "Value": strconv.FormatFloat(kpi.PassRate, 'f', 2, 64)},
		},
	}
	payload, err := s.pdf.Render(dataset, "Collaborator Monthly Report")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render kpi report")
	}
	return payload, nil
}

func (s *VerificationService) loadTask(ctx context.Context, id string) (*models.VerificationTask, error) {
	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load verification task")
	}
	return task, nil
}

func (s *VerificationService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, taskID string, metadata map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, models.AuditLog{
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "verification_task",
		EntityID:   taskID,
		Metadata:   metadata,
	})
}

func isAssignee(task *models.VerificationTask, userID string) bool {
	return task.AssigneeID != nil && *task.AssigneeID == userID
}
