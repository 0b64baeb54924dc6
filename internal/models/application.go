// internal/models/application.go
package models

import (
	"fmt"
	"time"
)

// ApplicationStatus is the lifecycle state of a membership application.
type ApplicationStatus string

const (
	StatusPending          ApplicationStatus = "pending"
	StatusApprovedByAdmin  ApplicationStatus = "approved_by_admin"
	StatusVotingInProgress ApplicationStatus = "voting_in_progress"
	StatusApproved         ApplicationStatus = "approved"
	StatusRejectedByAdmin  ApplicationStatus = "rejected_by_admin"
	StatusRejectedByVote   ApplicationStatus = "rejected_by_vote"
)

// applicationTransitions lists every legal move out of each status.
// Terminal statuses map to an empty set.
var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusPending:          {StatusApprovedByAdmin, StatusVotingInProgress, StatusRejectedByAdmin},
	StatusApprovedByAdmin:  {StatusVotingInProgress},
	StatusVotingInProgress: {StatusApproved, StatusRejectedByVote},
	StatusApproved:         {},
	StatusRejectedByAdmin:  {},
	StatusRejectedByVote:   {},
}

// ParseApplicationStatus converts a stored string into an ApplicationStatus.
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	status := ApplicationStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown application status %q", s)
	}
	return status, nil
}

func (s ApplicationStatus) Valid() bool {
	_, ok := applicationTransitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejectedByAdmin, StatusRejectedByVote:
		return true
	case StatusPending, StatusApprovedByAdmin, StatusVotingInProgress:
		return false
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	for _, candidate := range applicationTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s ApplicationStatus) String() string { return string(s) }

// MembershipApplication is a request to join a trust group.
type MembershipApplication struct {
	ID              string            `json:"id"`
	GroupID         string            `json:"groupId"`
	ApplicantID     string            `json:"applicantId"`
	ApplicationText string            `json:"applicationText"`
	Status          ApplicationStatus `json:"status"`
	DecidedBy       string            `json:"decidedBy,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	ResolvedAt      *time.Time        `json:"resolvedAt,omitempty"`
}

// StatusTransition describes a compare-and-set status change.
type StatusTransition struct {
	From      ApplicationStatus
	To        ApplicationStatus
	At        time.Time
	DecidedBy string
}

// Validate rejects transitions the state machine does not allow.
func (t StatusTransition) Validate() error {
	if !t.From.CanTransitionTo(t.To) {
		return fmt.Errorf("illegal transition %s -> %s", t.From, t.To)
	}
	return nil
}
