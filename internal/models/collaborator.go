package models

import "time"

// ContractStatus of a collaborator engagement.
type ContractStatus string

const (
	ContractActive     ContractStatus = "ACTIVE"
	ContractTerminated ContractStatus = "TERMINATED"
)

// CollaboratorProfile is the field-collaborator record required before any
// verification task can be assigned.
type CollaboratorProfile struct {
	UserID    string    `db:"user_id" json:"userId"`
	FullName  string    `db:"full_name" json:"fullName"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Region    *string   `db:"region" json:"region,omitempty"`
	Lat       *float64  `db:"lat" json:"lat,omitempty"`
	Lng       *float64  `db:"lng" json:"lng,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CollaboratorContract grants field-work authorization over a date range.
// The range is inclusive on both ends.
type CollaboratorContract struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"userId"`
	Status    ContractStatus `db:"status" json:"status"`
	StartDate time.Time      `db:"start_date" json:"startDate"`
	EndDate   time.Time      `db:"end_date" json:"endDate"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// Covers reports whether the contract is active on the given date.
func (c *CollaboratorContract) Covers(at time.Time) bool {
	if c.Status != ContractActive {
		return false
	}
	day := at.Truncate(24 * time.Hour)
	return !day.Before(c.StartDate.Truncate(24*time.Hour)) &&
		!day.After(c.EndDate.Truncate(24*time.Hour))
}

// CandidateCollaborator is one row of the assignment ranking for a task.
// Coordinates are carried for distance ranking but never serialized.
type CandidateCollaborator struct {
	UserID         string   `db:"user_id" json:"userId"`
	FullName       string   `db:"full_name" json:"fullName"`
	Region         *string  `db:"region" json:"region,omitempty"`
	Lat            *float64 `db:"lat" json:"-"`
	Lng            *float64 `db:"lng" json:"-"`
	DistanceMeters *float64 `db:"-" json:"distanceMeters,omitempty"`
	ActiveTasks    int      `db:"active_tasks" json:"activeTasks"`
	CompletedTasks int      `db:"completed_tasks" json:"completedTasks"`
}
