package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evgrid/station-api/internal/models"
)

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func baseSnapshot() StationSnapshot {
	return StationSnapshot{
		Lat:            floatPtr(10.7769),
		Lng:            floatPtr(106.7009),
		OperatingHours: strPtr("06:00-22:00"),
		Visibility:     models.VisibilityPublic,
		PublicStatus:   models.PublicStatusActive,
		Ports: []models.ChargingPort{
			{PowerType: models.PowerTypeDC, PowerKw: floatPtr(150), PortCount: 4},
			{PowerType: models.PowerTypeAC, PowerKw: floatPtr(22), PortCount: 2},
		},
	}
}

func TestRiskEngineNewStation(t *testing.T) {
	engine := NewRiskEngine()
	assessment := engine.Assess(nil, baseSnapshot())
	require.Equal(t, 10, assessment.Score)
	require.Equal(t, models.RiskLevelLow, assessment.Level)
	require.Equal(t, []models.RiskReasonCode{models.RiskNewStation}, assessment.Reasons)
}

func TestRiskEngineNoChanges(t *testing.T) {
	engine := NewRiskEngine()
	published := baseSnapshot()
	assessment := engine.Assess(&published, baseSnapshot())
	require.Equal(t, 0, assessment.Score)
	require.Equal(t, models.RiskLevelLow, assessment.Level)
	require.Empty(t, assessment.Reasons)
}

func TestRiskEngineGPSThreshold(t *testing.T) {
	engine := NewRiskEngine()
	published := baseSnapshot()

	// 0.0008 degrees of latitude is roughly 89m, inside the threshold.
	near := baseSnapshot()
	near.Lat = floatPtr(*published.Lat + 0.0008)
	require.Equal(t, 0, engine.Assess(&published, near).Score)

	// 0.001 degrees is roughly 111m, past the threshold.
	far := baseSnapshot()
	far.Lat = floatPtr(*published.Lat + 0.001)
	assessment := engine.Assess(&published, far)
	require.Equal(t, 50, assessment.Score)
	require.Equal(t, models.RiskLevelHigh, assessment.Level)
	require.Contains(t, assessment.Reasons, models.RiskGPSChanged100M)
}

func TestRiskEngineGPSMissingOnOneSide(t *testing.T) {
	engine := NewRiskEngine()
	published := baseSnapshot()

	// Dropping a published location is a relocation.
	cleared := baseSnapshot()
	cleared.Lat = nil
	cleared.Lng = nil
	assessment := engine.Assess(&published, cleared)
	require.Equal(t, 50, assessment.Score)
	require.Contains(t, assessment.Reasons, models.RiskGPSChanged100M)

	// So is adding one where none was published.
	unlocated := baseSnapshot()
	unlocated.Lat = nil
	unlocated.Lng = nil
	assessment = engine.Assess(&unlocated, baseSnapshot())
	require.Contains(t, assessment.Reasons, models.RiskGPSChanged100M)

	// Missing on both sides is no change.
	stillUnlocated := baseSnapshot()
	stillUnlocated.Lat = nil
	stillUnlocated.Lng = nil
	require.NotContains(t, engine.Assess(&unlocated, stillUnlocated).Reasons, models.RiskGPSChanged100M)
}

func TestRiskEnginePortsCompareAsSets(t *testing.T) {
	engine := NewRiskEngine()
	published := baseSnapshot()

	// Reordering the same port groups is not a change.
	reordered := baseSnapshot()
	reordered.Ports = []models.ChargingPort{reordered.Ports[1], reordered.Ports[0]}
	require.Equal(t, 0, engine.Assess(&published, reordered).Score)

	// Duplicate identical groups collapse into one signature.
	duplicated := baseSnapshot()
	duplicated.Ports = append(duplicated.Ports, duplicated.Ports[0])
	require.Equal(t, 0, engine.Assess(&published, duplicated).Score)

	changed := baseSnapshot()
	changed.Ports[0].PortCount = 6
	assessment := engine.Assess(&published, changed)
	require.Equal(t, 30, assessment.Score)
	require.Equal(t, models.RiskLevelMedium, assessment.Level)
	require.Contains(t, assessment.Reasons, models.RiskPortsChanged)
}

func TestRiskEngineHoursNormalization(t *testing.T) {
	engine := NewRiskEngine()
	published := baseSnapshot()

	cosmetic := baseSnapshot()
	cosmetic.OperatingHours = strPtr("  06:00-22:00  ")
	require.Equal(t, 0, engine.Assess(&published, cosmetic).Score)

	cleared := baseSnapshot()
	cleared.OperatingHours = nil
	assessment := engine.Assess(&published, cleared)
	require.Equal(t, 10, assessment.Score)
	require.Contains(t, assessment.Reasons, models.RiskHoursChanged)
}

func TestRiskEngineAccessChange(t *testing.T) {
	engine := NewRiskEngine()
	published := baseSnapshot()

	hidden := baseSnapshot()
	hidden.Visibility = models.VisibilityPrivate
	require.Contains(t, engine.Assess(&published, hidden).Reasons, models.RiskAccessChanged)

	maintenance := baseSnapshot()
	maintenance.PublicStatus = models.PublicStatusMaintenance
	assessment := engine.Assess(&published, maintenance)
	require.Equal(t, 10, assessment.Score)
	require.Equal(t, []models.RiskReasonCode{models.RiskAccessChanged}, assessment.Reasons)
}

func TestRiskEngineScoreCap(t *testing.T) {
	engine := NewRiskEngine()
	published := baseSnapshot()

	proposed := baseSnapshot()
	proposed.Lat = floatPtr(*published.Lat + 0.01)
	proposed.Ports[0].PortCount = 8
	proposed.OperatingHours = strPtr("24/7")
	proposed.Visibility = models.VisibilityRestricted
	assessment := engine.Assess(&published, proposed)
	require.Equal(t, 100, assessment.Score)
	require.Equal(t, models.RiskLevelHigh, assessment.Level)
	require.Len(t, assessment.Reasons, 4)
}

func TestRiskLevelBoundaries(t *testing.T) {
	require.Equal(t, models.RiskLevelLow, models.RiskLevelFromScore(29))
	require.Equal(t, models.RiskLevelMedium, models.RiskLevelFromScore(30))
	require.Equal(t, models.RiskLevelMedium, models.RiskLevelFromScore(49))
	require.Equal(t, models.RiskLevelHigh, models.RiskLevelFromScore(50))
}
