// internal/models/audit.go
package models

import (
	"encoding/json"
	"time"
)

// AuditEntry is an immutable, content-addressed record of a state change.
// ID is the hex SHA-256 of the entry's canonical JSON.
type AuditEntry struct {
	ID           string          `json:"id"`
	EventType    string          `json:"eventType"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	ActorID      string          `json:"actorId,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	OccurredAt   time.Time       `json:"occurredAt"`
}

// Audit event types.
const (
	AuditApplicationSubmitted = "application_submitted"
	AuditApplicationApproved  = "application_approved_by_admin"
	AuditApplicationRejected  = "application_rejected_by_admin"
	AuditVoteCast             = "vote_cast"
	AuditApplicationAccepted  = "application_approved_by_vote"
	AuditApplicationDeclined  = "application_rejected_by_vote"
	AuditMembershipCreated    = "membership_created"
	AuditAllocationReserved   = "allocation_reserved"
	AuditAllocationFinalized  = "allocation_finalized"
	AuditAllocationCompleted  = "allocation_completed"
	AuditAllocationVoided     = "allocation_voided"
)

const (
	ResourceApplication = "membership_application"
	ResourceAllocation  = "allocation"
)
