package models

import "time"

// VerificationStatus is the field-verification task lifecycle.
type VerificationStatus string

const (
	VerificationOpen      VerificationStatus = "OPEN"
	VerificationAssigned  VerificationStatus = "ASSIGNED"
	VerificationCheckedIn VerificationStatus = "CHECKED_IN"
	VerificationSubmitted VerificationStatus = "SUBMITTED"
	VerificationReviewed  VerificationStatus = "REVIEWED"
)

// VerificationResult is the admin's verdict on submitted evidence.
type VerificationResult string

const (
	VerificationPass VerificationResult = "PASS"
	VerificationFail VerificationResult = "FAIL"
)

// VerificationTask is a request for on-site confirmation of a station,
// usually raised against a high-risk change request.
type VerificationTask struct {
	ID              string             `db:"id" json:"id"`
	StationID       string             `db:"station_id" json:"stationId"`
	ChangeRequestID *string            `db:"change_request_id" json:"changeRequestId,omitempty"`
	Status          VerificationStatus `db:"status" json:"status"`
	Priority        int                `db:"priority" json:"priority"`
	SLADueAt        *time.Time         `db:"sla_due_at" json:"slaDueAt,omitempty"`
	AssigneeID      *string            `db:"assignee_id" json:"assigneeId,omitempty"`
	Result          *VerificationResult `db:"result" json:"result,omitempty"`
	ReviewNote      *string            `db:"review_note" json:"reviewNote,omitempty"`
	CreatedBy       string             `db:"created_by" json:"createdBy"`
	CreatedAt       time.Time          `db:"created_at" json:"createdAt"`
	AssignedAt      *time.Time         `db:"assigned_at" json:"assignedAt,omitempty"`
	CheckedInAt     *time.Time         `db:"checked_in_at" json:"checkedInAt,omitempty"`
	SubmittedAt     *time.Time         `db:"submitted_at" json:"submittedAt,omitempty"`
	ReviewedAt      *time.Time         `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewedBy      *string            `db:"reviewed_by" json:"reviewedBy,omitempty"`
}

// VerificationCheckin records the collaborator's arrival at the station.
type VerificationCheckin struct {
	ID             string    `db:"id" json:"id"`
	TaskID         string    `db:"task_id" json:"taskId"`
	Lat            float64   `db:"lat" json:"lat"`
	Lng            float64   `db:"lng" json:"lng"`
	DistanceMeters float64   `db:"distance_meters" json:"distanceMeters"`
	DeviceNote     *string   `db:"device_note" json:"deviceNote,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// VerificationEvidence is one photo or note attached at the site.
type VerificationEvidence struct {
	ID          string    `db:"id" json:"id"`
	TaskID      string    `db:"task_id" json:"taskId"`
	ObjectKey   string    `db:"object_key" json:"objectKey"`
	Note        *string   `db:"note" json:"note,omitempty"`
	SubmittedBy string    `db:"submitted_by" json:"submittedBy"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// VerificationTaskFilter narrows task listings.
type VerificationTaskFilter struct {
	Status     *VerificationStatus
	StationID  *string
	AssigneeID *string
	DueBefore  *time.Time
	Page       int
	PageSize   int
}

// CollaboratorKPI summarizes a collaborator's reviewed work for the
// current calendar month.
type CollaboratorKPI struct {
	CollaboratorID string  `json:"collaboratorId"`
	PeriodStart    string  `json:"periodStart"`
	TotalReviewed  int     `json:"totalReviewed"`
	Passed         int     `json:"passed"`
	Failed         int     `json:"failed"`
	PassRate       float64 `json:"passRate"`
}
