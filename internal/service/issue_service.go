package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/evgrid/station-api/internal/dto"
	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
)

type issueStore interface {
	Create(ctx context.Context, issue *models.StationIssue) error
	GetByID(ctx context.Context, id string) (*models.StationIssue, error)
	List(ctx context.Context, filter models.IssueFilter) ([]models.StationIssue, int, error)
	UpdateStatus(ctx context.Context, id string, to models.IssueStatus, from ...models.IssueStatus) error
}

type publishedStationSource interface {
	GetPublishedVersion(ctx context.Context, stationID string) (*models.StationVersion, error)
}

// IssueService handles EV-user reports and their admin triage. Every status
// change feeds back into the station's trust score.
type IssueService struct {
	repo     issueStore
	stations publishedStationSource
	trust    trustRecomputer
	logger   *zap.Logger
}

// NewIssueService constructs the service.
func NewIssueService(repo issueStore, stations publishedStationSource, trust trustRecomputer, logger *zap.Logger) *IssueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssueService{repo: repo, stations: stations, trust: trust, logger: logger}
}

// Report files an issue against a published station.
func (s *IssueService) Report(ctx context.Context, stationID string, payload dto.ReportIssuePayload, actor *models.JWTClaims) (*models.StationIssue, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch payload.Category {
	case models.IssueLocationWrong, models.IssuePriceWrong, models.IssueHoursWrong, models.IssuePortsWrong, models.IssueOther:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported issue category")
	}
	if _, err := s.stations.GetPublishedVersion(ctx, stationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "station has no published version")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load station")
	}

	issue := &models.StationIssue{
		StationID:   stationID,
		ReportedBy:  actor.UserID,
		Category:    payload.Category,
		Description: payload.Description,
		Status:      models.IssueOpen,
	}
	if err := s.repo.Create(ctx, issue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create issue")
	}
	s.recomputeTrust(ctx, stationID)
	return issue, nil
}

// Get returns one issue.
func (s *IssueService) Get(ctx context.Context, id string) (*models.StationIssue, error) {
	issue, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	return issue, nil
}

// List returns issues matching the filter.
func (s *IssueService) List(ctx context.Context, filter models.IssueFilter) ([]models.StationIssue, int, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list issues")
	}
	return items, total, nil
}

// Acknowledge marks an open issue as seen by operations.
func (s *IssueService) Acknowledge(ctx context.Context, id string, actor *models.JWTClaims) (*models.StationIssue, error) {
	return s.transition(ctx, id, actor, models.IssueAcknowledged, models.IssueOpen)
}

// Resolve closes an issue as fixed.
func (s *IssueService) Resolve(ctx context.Context, id string, actor *models.JWTClaims) (*models.StationIssue, error) {
	return s.transition(ctx, id, actor, models.IssueResolved, models.IssueOpen, models.IssueAcknowledged)
}

// Reject closes an issue as invalid.
func (s *IssueService) Reject(ctx context.Context, id string, actor *models.JWTClaims) (*models.StationIssue, error) {
	return s.transition(ctx, id, actor, models.IssueRejected, models.IssueOpen, models.IssueAcknowledged)
}

func (s *IssueService) transition(ctx context.Context, id string, actor *models.JWTClaims, to models.IssueStatus, from ...models.IssueStatus) (*models.StationIssue, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, to, from...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "issue cannot move to "+string(to))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update issue")
	}
	issue.Status = to
	s.recomputeTrust(ctx, issue.StationID)
	return issue, nil
}

func (s *IssueService) recomputeTrust(ctx context.Context, stationID string) {
	if s.trust == nil {
		return
	}
	if _, err := s.trust.Recompute(ctx, stationID); err != nil {
		s.logger.Warn("trust recompute failed", zap.String("station_id", stationID), zap.Error(err))
	}
}
