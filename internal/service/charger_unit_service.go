package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/evgrid/station-api/internal/models"
	appErrors "github.com/evgrid/station-api/pkg/errors"
)

// Default per-slot prices in VND by delivered power.
const (
	priceDCUltraFast = 30000
	priceDCFast      = 20000
	priceDCStandard  = 15000
	priceAC          = 10000
)

type chargerUnitStore interface {
	ListLabels(ctx context.Context, stationID string) ([]string, error)
	ListByStation(ctx context.Context, stationID string) ([]models.ChargerUnit, error)
	BulkInsert(ctx context.Context, units []models.ChargerUnit) error
}

type portSource interface {
	ListPorts(ctx context.Context, versionID string) ([]models.ChargingPort, error)
}

// ChargerUnitService derives physical charging bays from the port layout of
// a published version. Existing labels are never touched.
type ChargerUnitService struct {
	repo   chargerUnitStore
	ports  portSource
	logger *zap.Logger
}

// NewChargerUnitService constructs the service.
func NewChargerUnitService(repo chargerUnitStore, ports portSource, logger *zap.Logger) *ChargerUnitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChargerUnitService{repo: repo, ports: ports, logger: logger}
}

// ListByStation returns a station's charging bays.
func (s *ChargerUnitService) ListByStation(ctx context.Context, stationID string) ([]models.ChargerUnit, error) {
	units, err := s.repo.ListByStation(ctx, stationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list charger units")
	}
	return units, nil
}

// SyncForVersion materialises units for every port of the version, skipping
// labels that already exist for the station.
func (s *ChargerUnitService) SyncForVersion(ctx context.Context, stationID, versionID string) error {
	ports, err := s.ports.ListPorts(ctx, versionID)
	if err != nil {
		return fmt.Errorf("load ports: %w", err)
	}
	labels, err := s.repo.ListLabels(ctx, stationID)
	if err != nil {
		return fmt.Errorf("load labels: %w", err)
	}
	existing := make(map[string]bool, len(labels))
	for _, label := range labels {
		existing[label] = true
	}

	var units []models.ChargerUnit
	dcGroup := 0
	acIndex := 0
	for _, port := range ports {
		switch port.PowerType {
		case models.PowerTypeDC:
			dcGroup++
			for i := 1; i <= port.PortCount; i++ {
				label := fmt.Sprintf("DC%d-%02d", dcGroup, i)
				if existing[label] {
					continue
				}
				units = append(units, models.ChargerUnit{
					StationID:    stationID,
					Label:        label,
					PowerType:    port.PowerType,
					PowerKw:      port.PowerKw,
					PricePerSlot: dcPrice(port.PowerKw),
				})
			}
		case models.PowerTypeAC:
			for i := 1; i <= port.PortCount; i++ {
				acIndex++
				label := fmt.Sprintf("AC-%02d", acIndex)
				if existing[label] {
					continue
				}
				units = append(units, models.ChargerUnit{
					StationID:    stationID,
					Label:        label,
					PowerType:    port.PowerType,
					PowerKw:      port.PowerKw,
					PricePerSlot: priceAC,
				})
			}
		}
	}
	if len(units) == 0 {
		return nil
	}
	if err := s.repo.BulkInsert(ctx, units); err != nil {
		return fmt.Errorf("insert charger units: %w", err)
	}
	return nil
}

func dcPrice(powerKw *float64) int {
	if powerKw == nil {
		return priceDCStandard
	}
	switch {
	case *powerKw >= 200:
		return priceDCUltraFast
	case *powerKw >= 100:
		return priceDCFast
	default:
		return priceDCStandard
	}
}
