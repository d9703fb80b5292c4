package dto

import (
	"time"

	"github.com/evgrid/station-api/internal/models"
)

// CreateVerificationTaskPayload opens a field-verification task.
type CreateVerificationTaskPayload struct {
	StationID       string     `json:"stationId" binding:"required"`
	ChangeRequestID *string    `json:"changeRequestId"`
	Priority        *int       `json:"priority"`
	SLADueAt        *time.Time `json:"slaDueAt"`
}

// AssignVerificationTaskPayload names the collaborator to assign.
type AssignVerificationTaskPayload struct {
	AssigneeID string `json:"assigneeId" binding:"required"`
}

// CheckinPayload is the collaborator's reported position at the site.
type CheckinPayload struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	DeviceNote *string `json:"deviceNote"`
}

// EvidencePayload attaches one evidence object to a checked-in task.
type EvidencePayload struct {
	ObjectKey string  `json:"objectKey" binding:"required"`
	Note      *string `json:"note"`
}

// SubmitEvidencePayload finalizes the site visit.
type SubmitEvidencePayload struct {
	Items []EvidencePayload `json:"items"`
}

// ReviewPayload is the admin verdict on a submitted task.
type ReviewPayload struct {
	Result models.VerificationResult `json:"result" binding:"required"`
	Note   *string                   `json:"note"`
}

// EvidenceResponse enriches stored evidence with a signed view URL.
type EvidenceResponse struct {
	models.VerificationEvidence
	ViewURL   string `json:"viewUrl"`
	ExpiresAt string `json:"expiresAt"`
}
