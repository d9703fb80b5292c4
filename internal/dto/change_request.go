package dto

import "github.com/evgrid/station-api/internal/models"

// PortPayload describes one port group on a submitted station version.
type PortPayload struct {
	PowerType models.PowerType `json:"powerType" validate:"required"`
	PowerKw   *float64         `json:"powerKw" validate:"omitempty,gt=0"`
	PortCount int              `json:"portCount" validate:"required,min=1"`
}

// ServicePayload describes one service on a submitted station version.
type ServicePayload struct {
	ServiceType models.ServiceType `json:"serviceType" validate:"required"`
	Ports       []PortPayload      `json:"ports" validate:"required,min=1,dive"`
}

// StationVersionPayload is the full attribute set proposed by a change
// request. It maps onto a new StationVersion row.
type StationVersionPayload struct {
	Name           string                `json:"name" validate:"required"`
	Address        string                `json:"address"`
	Lat            *float64              `json:"lat" validate:"omitempty,min=-90,max=90"`
	Lng            *float64              `json:"lng" validate:"omitempty,min=-180,max=180"`
	OperatingHours *string               `json:"operatingHours"`
	Parking        models.ParkingType    `json:"parking"`
	Visibility     models.VisibilityType `json:"visibility"`
	PublicStatus   models.PublicStatus   `json:"publicStatus"`
	Services       []ServicePayload      `json:"services" validate:"required,min=1,dive"`
}

// CreateChangeRequestPayload opens a draft change request.
type CreateChangeRequestPayload struct {
	RequestType models.ChangeRequestType `json:"requestType" validate:"required,request_type"`
	StationID   *string                  `json:"stationId"`
	Version     StationVersionPayload    `json:"version"`
}

// RejectChangeRequestPayload carries the mandatory rejection reason.
type RejectChangeRequestPayload struct {
	Reason string `json:"reason" binding:"required"`
}

// ChangeRequestResponse enriches a change request with its risk bucket.
type ChangeRequestResponse struct {
	models.ChangeRequest
	RiskLevel *models.RiskLevel `json:"riskLevel,omitempty"`
}
