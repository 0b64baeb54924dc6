package membership

import (
	"context"

	"ican-workers/internal/models"
)

// Store runs membership operations in transactions. Implementations must make
// fn all-or-nothing and must serialize GetApplication(ctx, id, true) per row.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	ListApplications(ctx context.Context, groupID string, status models.ApplicationStatus) ([]models.MembershipApplication, error)
}

// Tx is the transactional view of the membership tables.
type Tx interface {
	// GetApplication returns a NOT_FOUND error for unknown ids. forUpdate
	// takes a row lock held until the transaction ends.
	GetApplication(ctx context.Context, id string, forUpdate bool) (*models.MembershipApplication, error)
	// InsertApplication returns false when the applicant already has an open
	// application for the group.
	InsertApplication(ctx context.Context, app *models.MembershipApplication) (bool, error)
	HasOpenApplication(ctx context.Context, groupID, applicantID string) (bool, error)
	// TransitionApplication applies t only if the row is still in t.From.
	TransitionApplication(ctx context.Context, id string, t models.StatusTransition) (bool, error)

	// GetMembership returns nil, nil when memberID is not in the group.
	GetMembership(ctx context.Context, groupID, memberID string) (*models.GroupMembership, error)
	ListMembers(ctx context.Context, groupID string) ([]models.GroupMembership, error)
	CountMembers(ctx context.Context, groupID string) (int, error)
	// InsertMembership returns false when the member already belongs to the group.
	InsertMembership(ctx context.Context, m models.GroupMembership) (bool, error)

	// InsertVote returns false when the voter already voted on the application.
	InsertVote(ctx context.Context, v models.Vote) (bool, error)
	CountVotes(ctx context.Context, applicationID string) (yes, no int, err error)

	AppendAudit(ctx context.Context, entry models.AuditEntry) error
}
