package dto

import "github.com/evgrid/station-api/internal/models"

// ReportIssuePayload files a report against a published station.
type ReportIssuePayload struct {
	Category    models.IssueCategory `json:"category" binding:"required"`
	Description *string              `json:"description"`
}

// CollaboratorProfilePayload creates or updates a profile.
type CollaboratorProfilePayload struct {
	FullName string   `json:"fullName" binding:"required"`
	Phone    *string  `json:"phone"`
	Region   *string  `json:"region"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

// ContractPayload opens a collaborator contract.
type ContractPayload struct {
	UserID    string `json:"userId" binding:"required"`
	StartDate string `json:"startDate" binding:"required"`
	EndDate   string `json:"endDate" binding:"required"`
}
