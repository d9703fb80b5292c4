package service

import (
	"strconv"
	"strings"

	"github.com/evgrid/station-api/internal/models"
	"github.com/evgrid/station-api/pkg/geo"
)

// gpsChangeThresholdMeters is the displacement beyond which a location edit
// is treated as a relocation rather than a correction.
const gpsChangeThresholdMeters = 100.0

// StationSnapshot is the comparable view of a station version used for risk
// scoring.
type StationSnapshot struct {
	Lat            *float64
	Lng            *float64
	OperatingHours *string
	Visibility     models.VisibilityType
	PublicStatus   models.PublicStatus
	Ports          []models.ChargingPort
}

// RiskEngine scores submitted changes against the currently published
// snapshot. It is stateless and deterministic.
type RiskEngine struct{}

// NewRiskEngine constructs the engine.
func NewRiskEngine() *RiskEngine {
	return &RiskEngine{}
}

// Assess compares the proposed snapshot against the published one.
// A nil published snapshot means the submission creates a new station.
func (e *RiskEngine) Assess(published *StationSnapshot, proposed StationSnapshot) models.RiskAssessment {
	var reasons []models.RiskReasonCode
	if published == nil {
		reasons = append(reasons, models.RiskNewStation)
		return models.RiskAssessmentFromReasons(reasons)
	}
	if gpsMoved(published, &proposed) {
		reasons = append(reasons, models.RiskGPSChanged100M)
	}
	if portsChanged(published.Ports, proposed.Ports) {
		reasons = append(reasons, models.RiskPortsChanged)
	}
	if hoursChanged(published.OperatingHours, proposed.OperatingHours) {
		reasons = append(reasons, models.RiskHoursChanged)
	}
	if published.Visibility != proposed.Visibility || published.PublicStatus != proposed.PublicStatus {
		reasons = append(reasons, models.RiskAccessChanged)
	}
	return models.RiskAssessmentFromReasons(reasons)
}

func gpsMoved(published, proposed *StationSnapshot) bool {
	publishedSet := published.Lat != nil && published.Lng != nil
	proposedSet := proposed.Lat != nil && proposed.Lng != nil
	if !publishedSet || !proposedSet {
		// Appearing or disappearing coordinates count as a relocation.
		return publishedSet != proposedSet
	}
	distance := geo.DistanceMeters(
		geo.Point{Lat: *published.Lat, Lng: *published.Lng},
		geo.Point{Lat: *proposed.Lat, Lng: *proposed.Lng},
	)
	return distance > gpsChangeThresholdMeters
}

// portsChanged compares port layouts as sets of normalized signatures, so
// reordering or duplicating identical port groups is not a change.
func portsChanged(published, proposed []models.ChargingPort) bool {
	a := portSignatures(published)
	b := portSignatures(proposed)
	if len(a) != len(b) {
		return true
	}
	for sig := range a {
		if !b[sig] {
			return true
		}
	}
	return false
}

func portSignatures(ports []models.ChargingPort) map[string]bool {
	signatures := make(map[string]bool, len(ports))
	for _, p := range ports {
		kw := ""
		if p.PowerKw != nil {
			kw = strconv.FormatFloat(*p.PowerKw, 'f', -1, 64)
		}
		signatures[string(p.PowerType)+"|"+kw+"|"+strconv.Itoa(p.PortCount)] = true
	}
	return signatures
}

// hoursChanged treats nil as empty and ignores case and surrounding
// whitespace.
func hoursChanged(published, proposed *string) bool {
	return normalizeHours(published) != normalizeHours(proposed)
}

func normalizeHours(hours *string) string {
	if hours == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*hours))
}
