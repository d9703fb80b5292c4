package models

import "time"

// IssueStatus is the report lifecycle.
type IssueStatus string

const (
	IssueOpen         IssueStatus = "OPEN"
	IssueAcknowledged IssueStatus = "ACKNOWLEDGED"
	IssueResolved     IssueStatus = "RESOLVED"
	IssueRejected     IssueStatus = "REJECTED"
)

// Unresolved reports whether the issue still counts against trust.
func (s IssueStatus) Unresolved() bool {
	return s == IssueOpen || s == IssueAcknowledged
}

// IssueCategory classifies what the reporter believes is wrong.
type IssueCategory string

const (
	IssueLocationWrong IssueCategory = "LOCATION_WRONG"
	IssuePriceWrong    IssueCategory = "PRICE_WRONG"
	IssueHoursWrong    IssueCategory = "HOURS_WRONG"
	IssuePortsWrong    IssueCategory = "PORTS_WRONG"
	IssueOther         IssueCategory = "OTHER"
)

// StationIssue is an EV user's report against a published station.
type StationIssue struct {
	ID          string        `db:"id" json:"id"`
	StationID   string        `db:"station_id" json:"stationId"`
	ReportedBy  string        `db:"reported_by" json:"reportedBy"`
	Category    IssueCategory `db:"category" json:"category"`
	Description *string       `db:"description" json:"description,omitempty"`
	Status      IssueStatus   `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updatedAt"`
}

// IssueFilter narrows issue listings.
type IssueFilter struct {
	StationID *string
	Status    *IssueStatus
	Category  *IssueCategory
	Page      int
	PageSize  int
}
