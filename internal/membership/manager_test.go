package membership_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/membership"
	"ican-workers/internal/models"
	"ican-workers/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const group = "group-1"

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) types() []models.NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NotificationType, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}

type fixture struct {
	db       *memory.DB
	mgr      *membership.Manager
	notifier *recordingNotifier
	ids      int
	mu       sync.Mutex
}

func newFixture(t *testing.T, members int) *fixture {
	t.Helper()
	f := &fixture{db: memory.New(), notifier: &recordingNotifier{}}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.mgr = membership.NewManager(membership.Options{
		Store:    f.db.Membership(),
		Notifier: f.notifier,
		Logger:   logger.NewTestLogger(t),
		Clock:    func() time.Time { return now },
		NewID: func() string {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.ids++
			return fmt.Sprintf("app-%d", f.ids)
		},
	})

	ctx := context.Background()
	_, err := f.mgr.AddMember(ctx, group, "admin", models.RoleAdmin)
	require.NoError(t, err)
	for i := 1; i < members; i++ {
		_, err := f.mgr.AddMember(ctx, group, memberID(i), models.RoleMember)
		require.NoError(t, err)
	}
	return f
}

func memberID(i int) string { return fmt.Sprintf("member-%d", i) }

// votingApplication submits an application and opens voting on it.
func (f *fixture) votingApplication(t *testing.T, applicant string) *models.MembershipApplication {
	t.Helper()
	ctx := context.Background()
	app, err := f.mgr.SubmitApplication(ctx, group, applicant, "I would like to join the savings group.")
	require.NoError(t, err)
	app, err = f.mgr.AdminApprove(ctx, app.ID, "admin")
	require.NoError(t, err)
	require.Equal(t, models.StatusVotingInProgress, app.Status)
	return app
}

func voters(members int) []string {
	out := []string{"admin"}
	for i := 1; i < members; i++ {
		out = append(out, memberID(i))
	}
	return out
}

func TestSubmitApplication(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	app, err := f.mgr.SubmitApplication(ctx, group, "applicant", "  please let me in  ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, app.Status)
	assert.Equal(t, "please let me in", app.ApplicationText)
	assert.Nil(t, app.ResolvedAt)

	assert.Equal(t, []models.NotificationType{models.NotifyApplicationSubmitted}, f.notifier.types())

	entries := f.db.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditApplicationSubmitted, entries[0].EventType)
	assert.Equal(t, app.ID, entries[0].ResourceID)
}

func TestSubmitApplication_Validation(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	_, err := f.mgr.SubmitApplication(ctx, group, "applicant", "first")
	require.NoError(t, err)

	tests := []struct {
		name      string
		applicant string
		text      string
	}{
		{name: "empty text", applicant: "someone", text: "   "},
		{name: "text too long", applicant: "someone", text: strings.Repeat("a", membership.DefaultMaxTextLength+1)},
		{name: "missing applicant", applicant: "", text: "hello"},
		{name: "already a member", applicant: memberID(1), text: "hello"},
		{name: "open application exists", applicant: "applicant", text: "again"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mgr.SubmitApplication(ctx, group, tt.applicant, tt.text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrValidation), "got %v", err)
		})
	}
}

func TestSubmitApplication_AfterRejectionAllowed(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	app, err := f.mgr.SubmitApplication(ctx, group, "applicant", "first")
	require.NoError(t, err)
	_, err = f.mgr.AdminReject(ctx, app.ID, "admin")
	require.NoError(t, err)

	_, err = f.mgr.SubmitApplication(ctx, group, "applicant", "second try")
	assert.NoError(t, err)
}

func TestAdminDecisions(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	app, err := f.mgr.SubmitApplication(ctx, group, "applicant", "hello")
	require.NoError(t, err)

	_, err = f.mgr.AdminApprove(ctx, "missing", "admin")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = f.mgr.AdminApprove(ctx, app.ID, memberID(1))
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	_, err = f.mgr.AdminApprove(ctx, app.ID, "stranger")
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	approved, err := f.mgr.AdminApprove(ctx, app.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVotingInProgress, approved.Status)
	assert.Equal(t, "admin", approved.DecidedBy)

	_, err = f.mgr.AdminApprove(ctx, app.ID, "admin")
	assert.True(t, errors.Is(err, apperrors.ErrState))
	_, err = f.mgr.AdminReject(ctx, app.ID, "admin")
	assert.True(t, errors.Is(err, apperrors.ErrState))

	tally, err := f.mgr.GetTally(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, tally.TotalVoted)
	assert.Equal(t, 3, tally.TotalMembers)
	assert.Equal(t, 2, tally.VotesNeeded)

	var events []string
	for _, e := range f.db.AuditEntries() {
		events = append(events, e.EventType)
	}
	assert.Contains(t, events, models.AuditApplicationApproved)
}

func TestAdminReject(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	app, err := f.mgr.SubmitApplication(ctx, group, "applicant", "hello")
	require.NoError(t, err)

	rejected, err := f.mgr.AdminReject(ctx, app.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejectedByAdmin, rejected.Status)
	require.NotNil(t, rejected.ResolvedAt)

	_, err = f.mgr.CastVote(ctx, app.ID, "admin", "yes")
	assert.True(t, errors.Is(err, apperrors.ErrState))

	stored, err := f.mgr.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejectedByAdmin, stored.Status)
}

func TestCastVote_ReachesThreshold(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	app := f.votingApplication(t, "applicant")

	res, err := f.mgr.CastVote(ctx, app.ID, "admin", "yes")
	require.NoError(t, err)
	assert.False(t, res.ThresholdReached)
	assert.Equal(t, 20.0, res.YesPercentage)
	assert.Equal(t, 2, res.VotesNeeded)

	_, err = f.mgr.CastVote(ctx, app.ID, memberID(1), "YES")
	require.NoError(t, err)

	res, err = f.mgr.CastVote(ctx, app.ID, memberID(2), "yes")
	require.NoError(t, err)
	assert.True(t, res.ThresholdReached)
	assert.Equal(t, 60.0, res.YesPercentage)
	assert.Equal(t, 0, res.VotesNeeded)
	assert.Equal(t, models.StatusApproved, res.Status)

	stored, err := f.mgr.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)

	// The new member is now counted.
	_, err = f.mgr.AddMember(ctx, group, "applicant", models.RoleMember)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = f.mgr.CastVote(ctx, app.ID, memberID(3), "yes")
	assert.True(t, errors.Is(err, apperrors.ErrState))

	assert.Contains(t, f.notifier.types(), models.NotifyApplicationApproved)
}

func TestCastVote_Rejections(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	app := f.votingApplication(t, "applicant")

	_, err := f.mgr.CastVote(ctx, app.ID, "admin", "maybe")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = f.mgr.CastVote(ctx, "missing", "admin", "yes")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = f.mgr.CastVote(ctx, app.ID, "outsider", "yes")
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	_, err = f.mgr.CastVote(ctx, app.ID, "admin", "no")
	require.NoError(t, err)
	_, err = f.mgr.CastVote(ctx, app.ID, "admin", "yes")
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateVote))

	pending, err := f.mgr.SubmitApplication(ctx, group, "other", "hi")
	require.NoError(t, err)
	_, err = f.mgr.CastVote(ctx, pending.ID, "admin", "yes")
	assert.True(t, errors.Is(err, apperrors.ErrState))
}

func TestCastVote_RejectedWhenUnreachable(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	app := f.votingApplication(t, "applicant")

	res, err := f.mgr.CastVote(ctx, app.ID, "admin", "no")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVotingInProgress, res.Status)

	res, err = f.mgr.CastVote(ctx, app.ID, memberID(1), "no")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejectedByVote, res.Status)

	members, err := f.mgr.AddMember(ctx, group, "applicant", models.RoleMember)
	require.NoError(t, err, "applicant must not have been admitted")
	assert.Equal(t, "applicant", members.MemberID)
}

func TestCastVote_ConcurrentApprovesOnce(t *testing.T) {
	const size = 10
	f := newFixture(t, size)
	ctx := context.Background()
	app := f.votingApplication(t, "applicant")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
		approved int
	)
	for _, voter := range voters(size) {
		wg.Add(1)
		go func(voter string) {
			defer wg.Done()
			res, err := f.mgr.CastVote(ctx, app.ID, voter, "yes")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
				if res.Status == models.StatusApproved {
					approved++
				}
			case errors.Is(err, apperrors.ErrState):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(voter)
	}
	wg.Wait()

	assert.Equal(t, 6, ok)
	assert.Equal(t, 4, rejected)
	assert.Equal(t, 1, approved)

	var created int
	for _, e := range f.db.AuditEntries() {
		if e.EventType == models.AuditMembershipCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestCastVote_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	app := f.votingApplication(t, "applicant")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		dups int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.mgr.CastVote(ctx, app.ID, memberID(1), "no")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, apperrors.ErrDuplicateVote) {
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, dups)

	tally, err := f.mgr.GetTally(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.NoVotes)
}

func TestListApplications(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	_, err := f.mgr.SubmitApplication(ctx, group, "a", "hi")
	require.NoError(t, err)
	f.votingApplication(t, "b")

	all, err := f.mgr.ListApplications(ctx, group, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	voting, err := f.mgr.ListApplications(ctx, group, models.StatusVotingInProgress)
	require.NoError(t, err)
	require.Len(t, voting, 1)
	assert.Equal(t, "b", voting[0].ApplicantID)

	_, err = f.mgr.ListApplications(ctx, group, "bogus")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}
