package dto

import "github.com/evgrid/station-api/internal/models"

// StationServiceDetail is one service with its port groups.
type StationServiceDetail struct {
	models.StationService
	Ports []models.ChargingPort `json:"ports"`
}

// StationDetailResponse is the public read model of a station: its live
// version, service layout and derived charging bays.
type StationDetailResponse struct {
	Station  models.Station         `json:"station"`
	Version  *models.StationVersion `json:"version"`
	Services []StationServiceDetail `json:"services"`
	Units    []models.ChargerUnit   `json:"units"`
}
