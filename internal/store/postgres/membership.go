package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/membership"
	"ican-workers/internal/models"
)

// MembershipStore implements membership.Store.
type MembershipStore struct{ d *DB }

var _ membership.Store = (*MembershipStore)(nil)

func (s *MembershipStore) WithinTx(ctx context.Context, fn func(membership.Tx) error) error {
	return s.d.withTx(ctx, nil, func(t *tx) error { return fn(t) })
}

const applicationColumns = `id, group_id, applicant_id, application_text, status, COALESCE(decided_by, ''), created_at, updated_at, resolved_at`

func scanApplication(row scanner) (*models.MembershipApplication, error) {
	var (
		app      models.MembershipApplication
		status   string
		resolved sql.NullTime
	)
	if err := row.Scan(&app.ID, &app.GroupID, &app.ApplicantID, &app.ApplicationText, &status, &app.DecidedBy, &app.CreatedAt, &app.UpdatedAt, &resolved); err != nil {
		return nil, err
	}
	parsed, err := models.ParseApplicationStatus(status)
	if err != nil {
		return nil, err
	}
	app.Status = parsed
	if resolved.Valid {
		at := resolved.Time
		app.ResolvedAt = &at
	}
	return &app, nil
}

func (s *MembershipStore) ListApplications(ctx context.Context, groupID string, status models.ApplicationStatus) ([]models.MembershipApplication, error) {
	rows, err := s.d.db.QueryContext(ctx, `
		SELECT `+applicationColumns+`
		FROM membership_applications
		WHERE group_id = $1 AND ($2::text = '' OR status = $2)
		ORDER BY created_at, id`, groupID, string(status))
	if err != nil {
		return nil, classify("list applications", err)
	}
	defer rows.Close()

	var out []models.MembershipApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, classify("list applications", err)
		}
		out = append(out, *app)
	}
	return out, classify("list applications", rows.Err())
}

func (t *tx) GetApplication(ctx context.Context, id string, lock bool) (*models.MembershipApplication, error) {
	row := t.tx.QueryRowContext(ctx, forUpdate(`SELECT `+applicationColumns+` FROM membership_applications WHERE id = $1`, lock), id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("application", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return app, nil
}

func (t *tx) HasOpenApplication(ctx context.Context, groupID, applicantID string) (bool, error) {
	var open bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM membership_applications
			WHERE group_id = $1 AND applicant_id = $2
			  AND status IN ('pending', 'approved_by_admin', 'voting_in_progress')
		)`, groupID, applicantID).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("check open application: %w", err)
	}
	return open, nil
}

func (t *tx) InsertApplication(ctx context.Context, app *models.MembershipApplication) (bool, error) {
	ok, err := affected(t.tx.ExecContext(ctx, `
		INSERT INTO membership_applications (id, group_id, applicant_id, application_text, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING`,
		app.ID, app.GroupID, app.ApplicantID, app.ApplicationText, string(app.Status), app.CreatedAt, app.UpdatedAt,
	))
	if err != nil {
		return false, fmt.Errorf("insert application: %w", err)
	}
	return ok, nil
}

func (t *tx) TransitionApplication(ctx context.Context, id string, tr models.StatusTransition) (bool, error) {
	var resolved sql.NullTime
	if tr.To.IsTerminal() {
		resolved = sql.NullTime{Time: tr.At, Valid: true}
	}
	ok, err := affected(t.tx.ExecContext(ctx, `
		UPDATE membership_applications
		SET status = $3,
		    updated_at = $4,
		    decided_by = COALESCE($5, decided_by),
		    resolved_at = COALESCE($6, resolved_at)
		WHERE id = $1 AND status = $2`,
		id, string(tr.From), string(tr.To), tr.At, nullString(tr.DecidedBy), resolved,
	))
	if err != nil {
		return false, fmt.Errorf("transition application: %w", err)
	}
	return ok, nil
}

const membershipColumns = `group_id, member_id, role, COALESCE(source_application_id, ''), joined_at`

func scanMembership(row scanner) (*models.GroupMembership, error) {
	var (
		m    models.GroupMembership
		role string
	)
	if err := row.Scan(&m.GroupID, &m.MemberID, &role, &m.SourceApplicationID, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.Role = models.MemberRole(role)
	return &m, nil
}

func (t *tx) GetMembership(ctx context.Context, groupID, memberID string) (*models.GroupMembership, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM group_memberships WHERE group_id = $1 AND member_id = $2`, groupID, memberID)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (t *tx) ListMembers(ctx context.Context, groupID string) ([]models.GroupMembership, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+membershipColumns+` FROM group_memberships WHERE group_id = $1 ORDER BY member_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []models.GroupMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (t *tx) CountMembers(ctx context.Context, groupID string) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_memberships WHERE group_id = $1`, groupID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

func (t *tx) InsertMembership(ctx context.Context, m models.GroupMembership) (bool, error) {
	ok, err := affected(t.tx.ExecContext(ctx, `
		INSERT INTO group_memberships (group_id, member_id, role, source_application_id, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, member_id) DO NOTHING`,
		m.GroupID, m.MemberID, string(m.Role), nullString(m.SourceApplicationID), m.JoinedAt,
	))
	if err != nil {
		return false, fmt.Errorf("insert membership: %w", err)
	}
	return ok, nil
}

func (t *tx) InsertVote(ctx context.Context, v models.Vote) (bool, error) {
	ok, err := affected(t.tx.ExecContext(ctx, `
		INSERT INTO application_votes (application_id, voter_id, choice, cast_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (application_id, voter_id) DO NOTHING`,
		v.ApplicationID, v.VoterID, string(v.Choice), v.CastAt,
	))
	if err != nil {
		return false, fmt.Errorf("insert vote: %w", err)
	}
	return ok, nil
}

func (t *tx) CountVotes(ctx context.Context, applicationID string) (int, int, error) {
	var yes, no int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE choice = 'yes'),
		       COUNT(*) FILTER (WHERE choice = 'no')
		FROM application_votes
		WHERE application_id = $1`, applicationID).Scan(&yes, &no)
	if err != nil {
		return 0, 0, fmt.Errorf("count votes: %w", err)
	}
	return yes, no, nil
}
