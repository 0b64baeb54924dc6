package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ican-workers/internal/common/logger"
	"ican-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	attrs    []map[string]string
	err      error
}

func (f *fakePublisher) PublishEvent(ctx context.Context, subject, message string, attributes map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.attrs = append(f.attrs, attributes)
	return "msg-1", f.err
}

type fakeEmail struct {
	mu     sync.Mutex
	to     [][]string
	bodies []string
}

func (f *fakeEmail) SendEmail(ctx context.Context, to []string, subject, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
	f.bodies = append(f.bodies, body)
	return "email-1", nil
}

type fakeContacts map[string]models.Contact

func (f fakeContacts) Contacts(ctx context.Context, ids []string) ([]models.Contact, error) {
	var out []models.Contact
	for _, id := range ids {
		if c, ok := f[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

// ==========================
// Dispatcher Tests
// ==========================

func TestDispatcher_PublishesAndEmails(t *testing.T) {
	pub := &fakePublisher{}
	mail := &fakeEmail{}
	d, err := NewDispatcher(Options{
		Publisher: pub,
		Email:     mail,
		Contacts: fakeContacts{
			"admin-1": {UserID: "admin-1", Email: "admin@example.com"},
			"admin-2": {UserID: "admin-2"},
		},
		Logger: logger.NewTestLogger(t),
	})
	require.NoError(t, err)

	d.Notify(context.Background(), models.Notification{
		Type:         models.NotifyApplicationSubmitted,
		GroupID:      "group-1",
		RecipientIDs: []string{"admin-1", "admin-2"},
		ResourceID:   "app-1",
	})
	closeDispatcher(t, d)

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "New membership application", pub.subjects[0])
	assert.Equal(t, "application_submitted", pub.attrs[0]["eventType"])
	assert.Equal(t, "group-1", pub.attrs[0]["groupId"])

	require.Len(t, mail.to, 1)
	assert.Equal(t, []string{"admin@example.com"}, mail.to[0])
	assert.Contains(t, mail.bodies[0], "app-1")
	assert.Contains(t, mail.bodies[0], "group-1")
}

func TestDispatcher_PublishFailureDoesNotStopEmail(t *testing.T) {
	pub := &fakePublisher{err: errors.New("sns down")}
	mail := &fakeEmail{}
	d, err := NewDispatcher(Options{
		Publisher: pub,
		Email:     mail,
		Contacts:  fakeContacts{"inv-1": {UserID: "inv-1", Email: "inv@example.com"}},
		Logger:    logger.NewNoOpLogger(),
	})
	require.NoError(t, err)

	d.Notify(context.Background(), models.Notification{
		Type:         models.NotifyAllocationReserved,
		RecipientIDs: []string{"inv-1"},
		ResourceID:   "alloc-1",
		Data:         map[string]interface{}{"icanAmount": "20"},
	})
	closeDispatcher(t, d)

	assert.Len(t, pub.subjects, 1)
	require.Len(t, mail.bodies, 1)
	assert.Contains(t, mail.bodies[0], "20 ICAN")
}

func TestDispatcher_NotifyAfterCloseIsDropped(t *testing.T) {
	pub := &fakePublisher{}
	d, err := NewDispatcher(Options{Publisher: pub, Logger: logger.NewNoOpLogger()})
	require.NoError(t, err)
	closeDispatcher(t, d)

	assert.NotPanics(t, func() {
		d.Notify(context.Background(), models.Notification{Type: models.NotifyVotingOpened})
	})
	assert.Empty(t, pub.subjects)
}

func TestDispatcher_RejectsBadTemplate(t *testing.T) {
	_, err := NewDispatcher(Options{Templates: []models.NotificationTemplate{
		{Type: "broken", Subject: "{{.Unclosed", Body: ""},
	}})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NotPanics(t, func() { n.Notify(context.Background(), models.Notification{}) })
}

// ==========================
// Contacts Tests
// ==========================

func TestPostgresContacts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, email, COALESCE\(display_name, ''\)\s+FROM users`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name"}).
			AddRow("admin-1", "admin@example.com", "Ada"))

	contacts, err := NewPostgresContacts(db).Contacts(context.Background(), []string{"admin-1", "ghost"})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Ada", contacts[0].DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresContacts_Empty(t *testing.T) {
	contacts, err := NewPostgresContacts(nil).Contacts(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, contacts)
}
