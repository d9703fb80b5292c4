package models

import "time"

// Audit action tags. One per moderation and verification transition.
const (
	AuditSubmitChangeRequest   = "SUBMIT_CHANGE_REQUEST"
	AuditApproveChangeRequest  = "APPROVE_CHANGE_REQUEST"
	AuditRejectChangeRequest   = "REJECT_CHANGE_REQUEST"
	AuditPublishStationVersion = "PUBLISH_STATION_VERSION"
	AuditArchiveStationVersion = "ARCHIVE_STATION_VERSION"
	AuditCreateVerification    = "CREATE_VERIFICATION_TASK"
	AuditAssignVerification    = "ASSIGN_VERIFICATION_TASK"
	AuditCheckinVerification   = "CHECKIN_VERIFICATION_TASK"
	AuditSubmitEvidence        = "SUBMIT_EVIDENCE"
	AuditReviewEvidence        = "REVIEW_EVIDENCE"
)

// AuditLog is one append-only ledger entry.
type AuditLog struct {
	ID         string            `db:"id" json:"id"`
	ActorID    string            `db:"actor_id" json:"actorId"`
	ActorRole  UserRole          `db:"actor_role" json:"actorRole"`
	Action     string            `db:"action" json:"action"`
	EntityType string            `db:"entity_type" json:"entityType"`
	EntityID   string            `db:"entity_id" json:"entityId"`
	Metadata   map[string]string `db:"-" json:"metadata,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"createdAt"`
}

// AuditFilter narrows ledger listings and exports.
type AuditFilter struct {
	ActorID    *string
	Action     *string
	EntityType *string
	EntityID   *string
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}
