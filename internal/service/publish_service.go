package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
)

type publishChangeRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.ChangeRequest, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
}

type publishStationStore interface {
	Publish(ctx context.Context, stationID, versionID string, publishedAt time.Time) (*string, error)
}

type verificationGate interface {
	HasPassForChangeRequest(ctx context.Context, changeRequestID string) (bool, error)
}

type trustRecomputer interface {
	Recompute(ctx context.Context, stationID string) (*models.StationTrust, error)
}

type unitSyncer interface {
	SyncForVersion(ctx context.Context, stationID, versionID string) error
}

type publishObserver interface {
	RecordPublish()
}

// PublishService atomically swaps the live version of a station when an
// approved change request is published. High-risk requests additionally
// require a passed field verification.
type PublishService struct {
	changeRequests publishChangeRequestStore
	stations       publishStationStore
	verifications  verificationGate
	trust          trustRecomputer
	units          unitSyncer
	audit          auditRecorder
	metrics        publishObserver
	logger         *zap.Logger

	highRiskMin int
}

// NewPublishService constructs the service.
func NewPublishService(changeRequests publishChangeRequestStore, stations publishStationStore, verifications verificationGate, trust trustRecomputer, units unitSyncer, audit auditRecorder, metrics publishObserver, highRiskMin int, logger *zap.Logger) *PublishService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if highRiskMin <= 0 {
		highRiskMin = defaultHighRiskCutoff
	}
	return &PublishService{
		changeRequests: changeRequests,
		stations:       stations,
		verifications:  verifications,
		trust:          trust,
		units:          units,
		audit:          audit,
		metrics:        metrics,
		logger:         logger,
		highRiskMin:    highRiskMin,
	}
}

// Publish makes the approved version of a change request the station's live
// record. The previously published version, if any, is archived in the same
// transaction.
func (s *PublishService) Publish(ctx context.Context, changeRequestID string, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	cr, err := s.changeRequests.GetByID(ctx, changeRequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	if cr.Status != models.ChangeRequestApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only approved change requests can be published")
	}
	if cr.StationID == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "change request has no station")
	}

	if cr.RiskScore != nil && *cr.RiskScore >= s.highRiskMin {
		passed, err := s.verifications.HasPassForChangeRequest(ctx, cr.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check verification outcome")
		}
		if !passed {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "high risk change requires a passed field verification")
		}
	}

	now := time.Now().UTC()
	archivedID, err := s.stations.Publish(ctx, *cr.StationID, cr.StationVersionID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "station or approved version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish station version")
	}

	if err := s.changeRequests.MarkPublished(ctx, cr.ID, now); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize change request")
	}

	// Bay derivation and trust recomputation are best-effort: the version
	// is already live and both can be replayed.
	if s.units != nil {
		if err := s.units.SyncForVersion(ctx, *cr.StationID, cr.StationVersionID); err != nil {
			s.logger.Warn("charger unit sync failed",
				zap.String("station_id", *cr.StationID),
				zap.String("version_id", cr.StationVersionID),
				zap.Error(err))
		}
	}
	if s.trust != nil {
		if _, err := s.trust.Recompute(ctx, *cr.StationID); err != nil {
			s.logger.Warn("trust recompute failed", zap.String("station_id", *cr.StationID), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.RecordPublish()
	}

	if s.audit != nil {
		if archivedID != nil {
			s.audit.Record(ctx, models.AuditLog{
				ActorID:    actor.UserID,
				ActorRole:  actor.Role,
				Action:     models.AuditArchiveStationVersion,
				EntityType: "station_version",
				EntityID:   *archivedID,
				Metadata:   map[string]string{"stationId": *cr.StationID},
			})
		}
		s.audit.Record(ctx, models.AuditLog{
			ActorID:    actor.UserID,
			ActorRole:  actor.Role,
			Action:     models.AuditPublishStationVersion,
			EntityType: "station_version",
			EntityID:   cr.StationVersionID,
			Metadata:   map[string]string{"stationId": *cr.StationID, "changeRequestId": cr.ID},
		})
	}

	cr.Status = models.ChangeRequestPublished
	if cr.DecidedAt == nil {
		cr.DecidedAt = &now
	}
	return cr, nil
}
