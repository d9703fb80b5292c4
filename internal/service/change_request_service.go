package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	"github.com/evgrid/station-api/internal/repository"
	appErrors "github.com/evgrid/station-api/pkg/errors"
)

type changeRequestStore interface {
	Create(ctx context.Context, cr *models.ChangeRequest) error
	GetByID(ctx context.Context, id string) (*models.ChangeRequest, error)
	List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, int, error)
	Submit(ctx context.Context, id string, score int, reasons []string, submittedAt time.Time) error
	Decide(ctx context.Context, id string, to models.ChangeRequestStatus, reason *string, decidedAt time.Time) error
	SetStationID(ctx context.Context, id, stationID string) error
}

type stationStore interface {
	Create(ctx context.Context, station *models.Station) error
	GetByID(ctx context.Context, id string) (*models.Station, error)
	CreateVersion(ctx context.Context, version *models.StationVersion, services []repository.VersionServiceInput) error
	GetVersion(ctx context.Context, id string) (*models.StationVersion, error)
	GetPublishedVersion(ctx context.Context, stationID string) (*models.StationVersion, error)
	ListPorts(ctx context.Context, versionID string) ([]models.ChargingPort, error)
	UpdateVersionStatus(ctx context.Context, id string, from, to models.WorkflowStatus) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

type submissionObserver interface {
	RecordSubmission(level models.RiskLevel)
}

// ChangeRequestService owns the moderation workflow from draft to decision.
// Publishing an approved request is handled by PublishService.
type ChangeRequestService struct {
	repo     changeRequestStore
	stations stationStore
	risk     *RiskEngine
	audit    auditRecorder
	metrics  submissionObserver
	validate *validator.Validate
	logger   *zap.Logger
}

// ChangeRequestServiceOption configures the service.
type ChangeRequestServiceOption func(*ChangeRequestService)

// WithSubmissionMetrics attaches a submission counter.
func WithSubmissionMetrics(metrics submissionObserver) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		s.metrics = metrics
	}
}

// NewChangeRequestService constructs the service.
func NewChangeRequestService(repo changeRequestStore, stations stationStore, risk *RiskEngine, audit auditRecorder, logger *zap.Logger, opts ...ChangeRequestServiceOption) *ChangeRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if risk == nil {
		risk = NewRiskEngine()
	}
	svc := &ChangeRequestService{repo: repo, stations: stations, risk: risk, audit: audit, validate: validator.New(), logger: logger}
	svc.validate.RegisterValidation("request_type", func(fl validator.FieldLevel) bool {
		switch models.ChangeRequestType(fl.Field().String()) {
		case models.ChangeRequestCreateStation, models.ChangeRequestUpdateStation:
			return true
		default:
			return false
		}
	})
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create opens a draft change request with its proposed station version.
// Creation requests allocate the station identity up front so the new
// station has a stable ID before moderation completes.
func (s *ChangeRequestService) Create(ctx context.Context, payload dto.CreateChangeRequestPayload, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := validateChangeRequestPayload(payload); err != nil {
		return nil, err
	}

	var stationID string
	versionNo := 1
	switch payload.RequestType {
	case models.ChangeRequestCreateStation:
		station := &models.Station{ProviderID: actor.UserID}
		if err := s.stations.Create(ctx, station); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate station")
		}
		stationID = station.ID
	case models.ChangeRequestUpdateStation:
		stationID = *payload.StationID
		station, err := s.stations.GetByID(ctx, stationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "station not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load station")
		}
		if actor.Role != models.RoleAdmin && station.ProviderID != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
		published, err := s.stations.GetPublishedVersion(ctx, stationID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// station exists but nothing is live yet
		case err != nil:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published version")
		default:
			versionNo = published.VersionNo + 1
		}
	}

	version := &models.StationVersion{
		StationID:      stationID,
		VersionNo:      versionNo,
		WorkflowStatus: models.WorkflowStatusDraft,
		Name:           strings.TrimSpace(payload.Version.Name),
		Address:        strings.TrimSpace(payload.Version.Address),
		Lat:            payload.Version.Lat,
		Lng:            payload.Version.Lng,
		OperatingHours: payload.Version.OperatingHours,
		Parking:        payload.Version.Parking,
		Visibility:     payload.Version.Visibility,
		PublicStatus:   payload.Version.PublicStatus,
		CreatedBy:      actor.UserID,
	}
	services := buildVersionServices(payload.Version.Services)
	if err := s.stations.CreateVersion(ctx, version, services); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create station version")
	}

	cr := &models.ChangeRequest{
		RequestType:      payload.RequestType,
		Status:           models.ChangeRequestDraft,
		StationVersionID: version.ID,
		RequestedBy:      actor.UserID,
	}
	if payload.RequestType == models.ChangeRequestUpdateStation {
		cr.StationID = &stationID
	}
	if err := s.repo.Create(ctx, cr); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create change request")
	}
	if payload.RequestType == models.ChangeRequestCreateStation {
		if err := s.repo.SetStationID(ctx, cr.ID, stationID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link station")
		}
		cr.StationID = &stationID
	}
	return cr, nil
}

// Get returns a change request, restricted to its owner unless the actor is
// an admin.
func (s *ChangeRequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	cr, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && cr.RequestedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return cr, nil
}

// List returns change requests scoped by actor role.
func (s *ChangeRequestService) List(ctx context.Context, filter models.ChangeRequestFilter, actor *models.JWTClaims) ([]models.ChangeRequest, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
		// full queue access
	case models.RoleProvider:
		owner := actor.UserID
		filter.RequestedBy = &owner
	default:
		return nil, 0, appErrors.ErrForbidden
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change requests")
	}
	return items, total, nil
}

// Submit moves a draft into the moderation queue. The risk assessment is
// computed against the published snapshot and frozen on the request.
func (s *ChangeRequestService) Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	cr, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.RequestedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if cr.Status != models.ChangeRequestDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only draft change requests can be submitted")
	}

	assessment, err := s.assess(ctx, cr)
	if err != nil {
		return nil, err
	}
	reasons := make([]string, len(assessment.Reasons))
	for i, r := range assessment.Reasons {
		reasons[i] = string(r)
	}

	now := time.Now().UTC()
	if err := s.repo.Submit(ctx, cr.ID, assessment.Score, reasons, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "change request already submitted")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit change request")
	}
	if err := s.stations.UpdateVersionStatus(ctx, cr.StationVersionID, models.WorkflowStatusDraft, models.WorkflowStatusPending); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance station version")
	}

	cr.Status = models.ChangeRequestPending
	cr.RiskScore = &assessment.Score
	cr.RiskReasons = reasons
	cr.SubmittedAt = &now
	if s.metrics != nil {
		s.metrics.RecordSubmission(assessment.Level)
	}
	s.emitAudit(ctx, actor, models.AuditSubmitChangeRequest, "change_request", cr.ID, map[string]string{
		"riskScore": strconv.Itoa(assessment.Score),
		"riskLevel": string(assessment.Level),
	})
	return cr, nil
}

// Approve accepts a pending change request. Publication is a separate step.
func (s *ChangeRequestService) Approve(ctx context.Context, id string, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	return s.decide(ctx, id, actor, models.ChangeRequestApproved, nil)
}

// Reject declines a pending change request with a mandatory reason.
func (s *ChangeRequestService) Reject(ctx context.Context, id string, actor *models.JWTClaims, reason string) (*models.ChangeRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}
	return s.decide(ctx, id, actor, models.ChangeRequestRejected, &reason)
}

func (s *ChangeRequestService) decide(ctx context.Context, id string, actor *models.JWTClaims, to models.ChangeRequestStatus, reason *string) (*models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	cr, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.Status != models.ChangeRequestPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only pending change requests can be decided")
	}

	now := time.Now().UTC()
	if err := s.repo.Decide(ctx, cr.ID, to, reason, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "change request already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decide change request")
	}

	versionTo := models.WorkflowStatusApproved
	action := models.AuditApproveChangeRequest
	if to == models.ChangeRequestRejected {
		versionTo = models.WorkflowStatusRejected
		action = models.AuditRejectChangeRequest
	}
	if err := s.stations.UpdateVersionStatus(ctx, cr.StationVersionID, models.WorkflowStatusPending, versionTo); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance station version")
	}

	cr.Status = to
	cr.RejectReason = reason
	cr.DecidedAt = &now
	metadata := map[string]string{}
	if reason != nil {
		metadata["reason"] = *reason
	}
	s.emitAudit(ctx, actor, action, "change_request", cr.ID, metadata)
	return cr, nil
}

func (s *ChangeRequestService) load(ctx context.Context, id string) (*models.ChangeRequest, error) {
	cr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	return cr, nil
}

func (s *ChangeRequestService) assess(ctx context.Context, cr *models.ChangeRequest) (models.RiskAssessment, error) {
	proposed, err := s.snapshot(ctx, cr.StationVersionID)
	if err != nil {
		return models.RiskAssessment{}, err
	}

	var published *StationSnapshot
	if cr.StationID != nil {
		current, err := s.stations.GetPublishedVersion(ctx, *cr.StationID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// nothing live yet, scored as a new station
		case err != nil:
			return models.RiskAssessment{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published version")
		default:
			ports, err := s.stations.ListPorts(ctx, current.ID)
			if err != nil {
				return models.RiskAssessment{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ports")
			}
			published = &StationSnapshot{
				Lat:            current.Lat,
				Lng:            current.Lng,
				OperatingHours: current.OperatingHours,
				Visibility:     current.Visibility,
				PublicStatus:   current.PublicStatus,
				Ports:          ports,
			}
		}
	}
	return s.risk.Assess(published, proposed), nil
}

func (s *ChangeRequestService) snapshot(ctx context.Context, versionID string) (StationSnapshot, error) {
	version, err := s.stations.GetVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StationSnapshot{}, appErrors.Clone(appErrors.ErrNotFound, "station version not found")
		}
		return StationSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load station version")
	}
	ports, err := s.stations.ListPorts(ctx, versionID)
	if err != nil {
		return StationSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ports")
	}
	return StationSnapshot{
		Lat:            version.Lat,
		Lng:            version.Lng,
		OperatingHours: version.OperatingHours,
		Visibility:     version.Visibility,
		PublicStatus:   version.PublicStatus,
		Ports:          ports,
	}, nil
}

func (s *ChangeRequestService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, entityType, entityID string, metadata map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, models.AuditLog{
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
	})
}

func validateChangeRequestPayload(payload dto.CreateChangeRequestPayload) error {
	switch payload.RequestType {
	case models.ChangeRequestCreateStation:
		if payload.StationID != nil {
			return appErrors.Clone(appErrors.ErrValidation, "stationId must be empty for a creation request")
		}
	case models.ChangeRequestUpdateStation:
		if payload.StationID == nil || strings.TrimSpace(*payload.StationID) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "stationId is required for an update request")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported request type")
	}
	if strings.TrimSpace(payload.Version.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "name is required")
	}
	if (payload.Version.Lat == nil) != (payload.Version.Lng == nil) {
		return appErrors.Clone(appErrors.ErrValidation, "lat and lng must be provided together")
	}
	for _, svc := range payload.Version.Services {
		if svc.ServiceType != models.ServiceTypeCharging {
			return appErrors.Clone(appErrors.ErrValidation, "unsupported service type")
		}
		for _, port := range svc.Ports {
			switch port.PowerType {
			case models.PowerTypeDC:
				if port.PowerKw == nil || *port.PowerKw <= 0 {
					return appErrors.Clone(appErrors.ErrValidation, "DC ports require a positive powerKw")
				}
			case models.PowerTypeAC:
				// powerKw optional for AC
			default:
				return appErrors.Clone(appErrors.ErrValidation, "unsupported power type")
			}
		}
	}
	return nil
}

func buildVersionServices(payloads []dto.ServicePayload) []repository.VersionServiceInput {
	services := make([]repository.VersionServiceInput, 0, len(payloads))
	for _, svc := range payloads {
		input := repository.VersionServiceInput{
			Service: models.StationService{ServiceType: svc.ServiceType},
			Ports:   make([]models.ChargingPort, 0, len(svc.Ports)),
		}
		for _, port := range svc.Ports {
			input.Ports = append(input.Ports, models.ChargingPort{
				PowerType: port.PowerType,
				PowerKw:   port.PowerKw,
				PortCount: port.PortCount,
			})
		}
		services = append(services, input)
	}
	return services
}
