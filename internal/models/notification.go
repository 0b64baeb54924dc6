// internal/models/notification.go
package models

import "time"

type NotificationType string

const (
	NotifyApplicationSubmitted NotificationType = "application_submitted"
	NotifyVotingOpened         NotificationType = "voting_opened"
	NotifyApplicationApproved  NotificationType = "application_approved"
	NotifyApplicationRejected  NotificationType = "application_rejected"
	NotifyAllocationReserved   NotificationType = "allocation_reserved"
	NotifyAllocationFinalized  NotificationType = "allocation_finalized"
)

// Notification is a best-effort message about a domain event.
type Notification struct {
	Type         NotificationType       `json:"type"`
	GroupID      string                 `json:"groupId,omitempty"`
	RecipientIDs []string               `json:"recipientIds,omitempty"`
	ResourceID   string                 `json:"resourceId"`
	Data         map[string]interface{} `json:"data,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

type NotificationTemplate struct {
	Type     NotificationType `json:"type"`
	Subject  string           `json:"subject"`
	Body     string           `json:"body"`
	HTMLBody string           `json:"htmlBody,omitempty"`
}
