// Package membership implements the trust-group application lifecycle and
// the member vote tally that resolves it.
package membership

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"ican-workers/internal/audit"
	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/metrics"
	"ican-workers/internal/models"
	"ican-workers/internal/notify"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultMaxTextLength = 5000
)

var DefaultThreshold = decimal.RequireFromString("0.60")

// Options configures a Manager. Only Store is required.
type Options struct {
	Store         Store
	Notifier      notify.Notifier
	Mirror        audit.Mirror
	Logger        logger.Logger
	Clock         func() time.Time
	Threshold     decimal.Decimal
	MaxTextLength int
	NewID         func() string
}

type deps struct {
	store     Store
	notifier  notify.Notifier
	mirror    audit.Mirror
	logger    logger.Logger
	clock     func() time.Time
	threshold decimal.Decimal
	maxText   int
	newID     func() string
}

func (d deps) now() time.Time { return d.clock().UTC() }

// Manager owns the application state machine. Votes go through its
// TallyEngine, which hands threshold outcomes back to the Manager.
type Manager struct {
	deps
	tally *TallyEngine
}

func NewManager(opts Options) *Manager {
	d := deps{
		store:     opts.Store,
		notifier:  opts.Notifier,
		mirror:    opts.Mirror,
		logger:    logger.Component(opts.Logger, "membership"),
		clock:     opts.Clock,
		threshold: opts.Threshold,
		maxText:   opts.MaxTextLength,
		newID:     opts.NewID,
	}
	if d.notifier == nil {
		d.notifier = notify.Nop{}
	}
	if d.mirror == nil {
		d.mirror = audit.NopMirror{}
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	if !d.threshold.IsPositive() {
		d.threshold = DefaultThreshold
	}
	if d.maxText <= 0 {
		d.maxText = DefaultMaxTextLength
	}
	if d.newID == nil {
		d.newID = uuid.NewString
	}

	m := &Manager{deps: d}
	m.tally = &TallyEngine{deps: d, resolve: m.resolveVoting}
	return m
}

// Tally returns the engine that records votes for this manager's applications.
func (m *Manager) Tally() *TallyEngine { return m.tally }

// CastVote records a vote and resolves the application when the threshold is
// reached or becomes unreachable.
func (m *Manager) CastVote(ctx context.Context, applicationID, voterID, choice string) (*VoteResult, error) {
	return m.tally.CastVote(ctx, applicationID, voterID, choice)
}

func (m *Manager) GetTally(ctx context.Context, applicationID string) (*models.Tally, error) {
	return m.tally.GetTally(ctx, applicationID)
}

// ====================
// Submission
// ====================

func (m *Manager) SubmitApplication(ctx context.Context, groupID, applicantID, text string) (*models.MembershipApplication, error) {
	groupID = strings.TrimSpace(groupID)
	applicantID = strings.TrimSpace(applicantID)
	text = strings.TrimSpace(text)

	switch {
	case groupID == "" || applicantID == "":
		return nil, apperrors.NewValidationError("groupId and applicantId are required")
	case text == "":
		return nil, apperrors.NewValidationError("application text must not be empty")
	case utf8.RuneCountInString(text) > m.maxText:
		return nil, apperrors.NewValidationError("application text exceeds maximum length")
	}

	var (
		rec    audit.Recorder
		app    *models.MembershipApplication
		admins []string
	)
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		existing, err := tx.GetMembership(ctx, groupID, applicantID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.NewValidationError("applicant " + applicantID + " is already a member of group " + groupID)
		}

		open, err := tx.HasOpenApplication(ctx, groupID, applicantID)
		if err != nil {
			return err
		}
		if open {
			return openApplicationError(applicantID, groupID)
		}

		now := m.now()
		app = &models.MembershipApplication{
			ID:              m.newID(),
			GroupID:         groupID,
			ApplicantID:     applicantID,
			ApplicationText: text,
			Status:          models.StatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		inserted, err := tx.InsertApplication(ctx, app)
		if err != nil {
			return err
		}
		if !inserted {
			return openApplicationError(applicantID, groupID)
		}

		if err := rec.Record(ctx, tx, models.AuditApplicationSubmitted, models.ResourceApplication, app.ID, applicantID, map[string]interface{}{
			"groupId": groupID,
		}, now); err != nil {
			return err
		}

		members, err := tx.ListMembers(ctx, groupID)
		if err != nil {
			return err
		}
		for _, mem := range members {
			if mem.IsAdmin() {
				admins = append(admins, mem.MemberID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ApplicationsSubmitted.Inc()
	rec.Flush(ctx, m.mirror)
	m.logger.Info("application submitted", map[string]interface{}{
		"applicationId": app.ID,
		"groupId":       groupID,
		"applicantId":   applicantID,
	})

	if len(admins) > 0 {
		m.notifier.Notify(ctx, models.Notification{
			Type:         models.NotifyApplicationSubmitted,
			GroupID:      groupID,
			RecipientIDs: admins,
			ResourceID:   app.ID,
			Data:         map[string]interface{}{"applicantId": applicantID},
		})
	}
	return app, nil
}

func openApplicationError(applicantID, groupID string) error {
	return apperrors.NewValidationError("applicant " + applicantID + " already has an open application for group " + groupID)
}

// ====================
// Admin decisions
// ====================

// AdminApprove opens member voting on a pending application.
func (m *Manager) AdminApprove(ctx context.Context, applicationID, adminID string) (*models.MembershipApplication, error) {
	return m.adminDecide(ctx, applicationID, adminID, models.StatusVotingInProgress)
}

// AdminReject closes a pending application.
func (m *Manager) AdminReject(ctx context.Context, applicationID, adminID string) (*models.MembershipApplication, error) {
	return m.adminDecide(ctx, applicationID, adminID, models.StatusRejectedByAdmin)
}

func (m *Manager) adminDecide(ctx context.Context, applicationID, adminID string, target models.ApplicationStatus) (*models.MembershipApplication, error) {
	applicationID = strings.TrimSpace(applicationID)
	adminID = strings.TrimSpace(adminID)
	if applicationID == "" || adminID == "" {
		return nil, apperrors.NewValidationError("applicationId and adminId are required")
	}

	var (
		rec     audit.Recorder
		app     *models.MembershipApplication
		members []models.GroupMembership
	)
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		app, err = tx.GetApplication(ctx, applicationID, true)
		if err != nil {
			return err
		}

		admin, err := tx.GetMembership(ctx, app.GroupID, adminID)
		if err != nil {
			return err
		}
		if admin == nil || !admin.IsAdmin() {
			return apperrors.NewForbiddenError("user " + adminID + " is not an admin of group " + app.GroupID)
		}

		if app.Status != models.StatusPending {
			return apperrors.NewStateError("application " + applicationID + " is " + app.Status.String() + ", expected pending")
		}

		now := m.now()
		t := models.StatusTransition{From: models.StatusPending, To: target, At: now, DecidedBy: adminID}
		if err := m.transition(ctx, tx, app, t); err != nil {
			return err
		}

		event := models.AuditApplicationApproved
		if target == models.StatusRejectedByAdmin {
			event = models.AuditApplicationRejected
		}
		if err := rec.Record(ctx, tx, event, models.ResourceApplication, app.ID, adminID, map[string]interface{}{
			"groupId": app.GroupID,
			"status":  string(target),
		}, now); err != nil {
			return err
		}

		members, err = tx.ListMembers(ctx, app.GroupID)
		return err
	})
	if err != nil {
		return nil, err
	}

	rec.Flush(ctx, m.mirror)
	m.logger.Info("application decided by admin", map[string]interface{}{
		"applicationId": app.ID,
		"adminId":       adminID,
		"status":        app.Status,
	})

	notifyType := models.NotifyVotingOpened
	recipients := append(memberIDs(members), app.ApplicantID)
	if target == models.StatusRejectedByAdmin {
		notifyType = models.NotifyApplicationRejected
		recipients = []string{app.ApplicantID}
	}
	m.notifier.Notify(ctx, models.Notification{
		Type:         notifyType,
		GroupID:      app.GroupID,
		RecipientIDs: recipients,
		ResourceID:   app.ID,
		Data:         map[string]interface{}{"status": string(app.Status)},
	})
	return app, nil
}

// transition applies t to app through a compare-and-set and updates app in place.
func (m *Manager) transition(ctx context.Context, tx Tx, app *models.MembershipApplication, t models.StatusTransition) error {
	if err := t.Validate(); err != nil {
		return apperrors.NewStateError(err.Error())
	}
	ok, err := tx.TransitionApplication(ctx, app.ID, t)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewConflictError(nil).WithMetadata("applicationId", app.ID)
	}

	app.Status = t.To
	app.UpdatedAt = t.At
	if t.DecidedBy != "" {
		app.DecidedBy = t.DecidedBy
	}
	if t.To.IsTerminal() {
		at := t.At
		app.ResolvedAt = &at
	}
	metrics.ApplicationTransitions.WithLabelValues(string(t.To)).Inc()
	return nil
}

// resolveVoting runs inside the vote transaction with the application row
// locked. It moves the application out of voting_in_progress once the tally
// decides it.
func (m *Manager) resolveVoting(ctx context.Context, tx Tx, rec *audit.Recorder, app *models.MembershipApplication, tally models.Tally) (models.ApplicationStatus, error) {
	now := m.now()

	switch {
	case tally.ThresholdReached:
		t := models.StatusTransition{From: models.StatusVotingInProgress, To: models.StatusApproved, At: now}
		if err := m.transition(ctx, tx, app, t); err != nil {
			return "", err
		}
		if _, err := tx.InsertMembership(ctx, models.GroupMembership{
			GroupID:             app.GroupID,
			MemberID:            app.ApplicantID,
			Role:                models.RoleMember,
			SourceApplicationID: app.ID,
			JoinedAt:            now,
		}); err != nil {
			return "", err
		}
		payload := tallyPayload(tally)
		if err := rec.Record(ctx, tx, models.AuditApplicationAccepted, models.ResourceApplication, app.ID, "", payload, now); err != nil {
			return "", err
		}
		if err := rec.Record(ctx, tx, models.AuditMembershipCreated, models.ResourceApplication, app.ID, app.ApplicantID, map[string]interface{}{
			"groupId":  app.GroupID,
			"memberId": app.ApplicantID,
		}, now); err != nil {
			return "", err
		}

	case tally.ThresholdUnreachable:
		t := models.StatusTransition{From: models.StatusVotingInProgress, To: models.StatusRejectedByVote, At: now}
		if err := m.transition(ctx, tx, app, t); err != nil {
			return "", err
		}
		if err := rec.Record(ctx, tx, models.AuditApplicationDeclined, models.ResourceApplication, app.ID, "", tallyPayload(tally), now); err != nil {
			return "", err
		}
	}
	return app.Status, nil
}

func tallyPayload(t models.Tally) map[string]interface{} {
	return map[string]interface{}{
		"yesVotes":     t.YesVotes,
		"noVotes":      t.NoVotes,
		"totalMembers": t.TotalMembers,
	}
}

// ====================
// Queries
// ====================

func (m *Manager) GetApplication(ctx context.Context, applicationID string) (*models.MembershipApplication, error) {
	if strings.TrimSpace(applicationID) == "" {
		return nil, apperrors.NewValidationError("applicationId is required")
	}
	var app *models.MembershipApplication
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		app, err = tx.GetApplication(ctx, applicationID, false)
		return err
	})
	return app, err
}

// ListApplications returns a group's applications, optionally filtered by
// status. An empty status matches all.
func (m *Manager) ListApplications(ctx context.Context, groupID string, status models.ApplicationStatus) ([]models.MembershipApplication, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, apperrors.NewValidationError("groupId is required")
	}
	if status != "" && !status.Valid() {
		return nil, apperrors.NewValidationError("unknown status " + string(status))
	}
	return m.store.ListApplications(ctx, groupID, status)
}

// AddMember seeds a membership directly, e.g. a group founder as admin.
func (m *Manager) AddMember(ctx context.Context, groupID, memberID string, role models.MemberRole) (*models.GroupMembership, error) {
	if strings.TrimSpace(groupID) == "" || strings.TrimSpace(memberID) == "" {
		return nil, apperrors.NewValidationError("groupId and memberId are required")
	}
	if role != models.RoleAdmin && role != models.RoleMember {
		return nil, apperrors.NewValidationError("unknown role " + string(role))
	}
	mem := models.GroupMembership{GroupID: groupID, MemberID: memberID, Role: role, JoinedAt: m.now()}
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		ok, err := tx.InsertMembership(ctx, mem)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewValidationError("member " + memberID + " already belongs to group " + groupID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &mem, nil
}
