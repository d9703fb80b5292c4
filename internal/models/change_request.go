package models

import (
	"time"

	"github.com/lib/pq"
)

// ChangeRequestType distinguishes station creation from edits.
type ChangeRequestType string

const (
	ChangeRequestCreateStation ChangeRequestType = "CREATE_STATION"
	ChangeRequestUpdateStation ChangeRequestType = "UPDATE_STATION"
)

// ChangeRequestStatus follows the moderation workflow.
type ChangeRequestStatus string

const (
	ChangeRequestDraft     ChangeRequestStatus = "DRAFT"
	ChangeRequestPending   ChangeRequestStatus = "PENDING"
	ChangeRequestApproved  ChangeRequestStatus = "APPROVED"
	ChangeRequestRejected  ChangeRequestStatus = "REJECTED"
	ChangeRequestPublished ChangeRequestStatus = "PUBLISHED"
)

// ChangeRequest ties a proposed station version to its moderation state.
// The risk score is computed once at submission and frozen thereafter.
type ChangeRequest struct {
	ID               string              `db:"id" json:"id"`
	RequestType      ChangeRequestType   `db:"request_type" json:"requestType"`
	Status           ChangeRequestStatus `db:"status" json:"status"`
	StationID        *string             `db:"station_id" json:"stationId,omitempty"`
	StationVersionID string              `db:"station_version_id" json:"stationVersionId"`
	RequestedBy      string              `db:"requested_by" json:"requestedBy"`
	RiskScore        *int                `db:"risk_score" json:"riskScore,omitempty"`
	RiskReasons      pq.StringArray      `db:"risk_reasons" json:"riskReasons,omitempty"`
	RejectReason     *string             `db:"reject_reason" json:"rejectReason,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"createdAt"`
	SubmittedAt      *time.Time          `db:"submitted_at" json:"submittedAt,omitempty"`
	DecidedAt        *time.Time          `db:"decided_at" json:"decidedAt,omitempty"`
}

// ChangeRequestFilter narrows admin queue listings.
type ChangeRequestFilter struct {
	Status      *ChangeRequestStatus
	RequestType *ChangeRequestType
	RequestedBy *string
	MinRisk     *int
	Page        int
	PageSize    int
}
