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

type stationReadStore interface {
	GetByID(ctx context.Context, id string) (*models.Station, error)
	GetPublishedVersion(ctx context.Context, stationID string) (*models.StationVersion, error)
	GetLatestVersion(ctx context.Context, stationID string) (*models.StationVersion, error)
	ListServices(ctx context.Context, versionID string) ([]models.StationService, error)
	ListPorts(ctx context.Context, versionID string) ([]models.ChargingPort, error)
}

type unitLister interface {
	ListByStation(ctx context.Context, stationID string) ([]models.ChargerUnit, error)
}

// StationService serves the public read model: the live version of a station
// with its service layout and derived charging bays.
type StationService struct {
	repo   stationReadStore
	units  unitLister
	logger *zap.Logger
}

// NewStationService constructs the service.
func NewStationService(repo stationReadStore, units unitLister, logger *zap.Logger) *StationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StationService{repo: repo, units: units, logger: logger}
}

// Detail returns a station with its published version. Stations that never
// published are not visible to anonymous readers, but the owning provider and
// admins get a preview of the latest version in any workflow state.
func (s *StationService) Detail(ctx context.Context, stationID string, actor *models.JWTClaims) (*dto.StationDetailResponse, error) {
	station, err := s.repo.GetByID(ctx, stationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load station")
	}
	version, err := s.repo.GetPublishedVersion(ctx, stationID)
	if err != nil {
		switch {
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published version")
		case actor != nil && (actor.Role == models.RoleAdmin || station.ProviderID == actor.UserID):
			version, err = s.repo.GetLatestVersion(ctx, stationID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrNotFound, "station has no versions")
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest version")
			}
		default:
			return nil, appErrors.Clone(appErrors.ErrNotFound, "station has no published version")
		}
	}

	services, err := s.repo.ListServices(ctx, version.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load services")
	}
	ports, err := s.repo.ListPorts(ctx, version.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ports")
	}
	byService := make(map[string][]models.ChargingPort, len(services))
	for _, port := range ports {
		byService[port.StationServiceID] = append(byService[port.StationServiceID], port)
	}
	detail := &dto.StationDetailResponse{
		Station:  *station,
		Version:  version,
		Services: make([]dto.StationServiceDetail, 0, len(services)),
	}
	for _, svc := range services {
		detail.Services = append(detail.Services, dto.StationServiceDetail{
			StationService: svc,
			Ports:          byService[svc.ID],
		})
	}
	if s.units != nil {
		units, err := s.units.ListByStation(ctx, stationID)
		if err != nil {
			s.logger.Warn("failed to load charger units", zap.String("station_id", stationID), zap.Error(err))
		} else {
			detail.Units = units
		}
	}
	return detail, nil
}
