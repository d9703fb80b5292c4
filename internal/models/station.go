package models

import "time"

// WorkflowStatus is the lifecycle state of a station version.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "DRAFT"
	WorkflowStatusPending   WorkflowStatus = "PENDING"
	WorkflowStatusApproved  WorkflowStatus = "APPROVED"
	WorkflowStatusPublished WorkflowStatus = "PUBLISHED"
	WorkflowStatusRejected  WorkflowStatus = "REJECTED"
	WorkflowStatusArchived  WorkflowStatus = "ARCHIVED"
)

// ParkingType describes parking cost at the station.
type ParkingType string

const (
	ParkingFree    ParkingType = "FREE"
	ParkingPaid    ParkingType = "PAID"
	ParkingUnknown ParkingType = "UNKNOWN"
)

// VisibilityType describes who can see the station.
type VisibilityType string

const (
	VisibilityPublic     VisibilityType = "PUBLIC"
	VisibilityPrivate    VisibilityType = "PRIVATE"
	VisibilityRestricted VisibilityType = "RESTRICTED"
)

// PublicStatus describes the operational state shown to EV users.
type PublicStatus string

const (
	PublicStatusActive      PublicStatus = "ACTIVE"
	PublicStatusInactive    PublicStatus = "INACTIVE"
	PublicStatusMaintenance PublicStatus = "MAINTENANCE"
)

// ServiceType enumerates services a station version offers.
type ServiceType string

const (
	ServiceTypeCharging ServiceType = "CHARGING"
)

// PowerType of a charging port.
type PowerType string

const (
	PowerTypeAC PowerType = "AC"
	PowerTypeDC PowerType = "DC"
)

// Station is the stable identity of a charging station. It is never edited
// directly; all attribute data lives on versions.
type Station struct {
	ID         string    `db:"id" json:"id"`
	ProviderID string    `db:"provider_id" json:"providerId"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// StationVersion is an immutable snapshot of a station's attributes tagged
// with a workflow status. At most one version per station is PUBLISHED at any
// instant, and publishedAt is non-null iff the status is PUBLISHED.
type StationVersion struct {
	ID             string         `db:"id" json:"id"`
	StationID      string         `db:"station_id" json:"stationId"`
	VersionNo      int            `db:"version_no" json:"versionNo"`
	WorkflowStatus WorkflowStatus `db:"workflow_status" json:"workflowStatus"`
	Name           string         `db:"name" json:"name"`
	Address        string         `db:"address" json:"address"`
	Lat            *float64       `db:"lat" json:"lat,omitempty"`
	Lng            *float64       `db:"lng" json:"lng,omitempty"`
	OperatingHours *string        `db:"operating_hours" json:"operatingHours,omitempty"`
	Parking        ParkingType    `db:"parking" json:"parking"`
	Visibility     VisibilityType `db:"visibility" json:"visibility"`
	PublicStatus   PublicStatus   `db:"public_status" json:"publicStatus"`
	CreatedBy      string         `db:"created_by" json:"createdBy"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	PublishedAt    *time.Time     `db:"published_at" json:"publishedAt,omitempty"`
}

// IsPublished reports whether this version is the station's live record.
func (v *StationVersion) IsPublished() bool {
	return v.WorkflowStatus == WorkflowStatusPublished
}

// HasLocation reports whether the version carries coordinates.
func (v *StationVersion) HasLocation() bool {
	return v.Lat != nil && v.Lng != nil
}

// StationService is a service row attached to a station version.
type StationService struct {
	ID               string      `db:"id" json:"id"`
	StationVersionID string      `db:"station_version_id" json:"stationVersionId"`
	ServiceType      ServiceType `db:"service_type" json:"serviceType"`
}

// ChargingPort describes a group of identical ports under a station service.
type ChargingPort struct {
	ID               string    `db:"id" json:"id"`
	StationServiceID string    `db:"station_service_id" json:"stationServiceId"`
	PowerType        PowerType `db:"power_type" json:"powerType"`
	PowerKw          *float64  `db:"power_kw" json:"powerKw,omitempty"`
	PortCount        int       `db:"port_count" json:"portCount"`
}
