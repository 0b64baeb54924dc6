// Package notify dispatches best-effort notifications about domain events
// over SNS and SES.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"text/template"
	"time"

	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/metrics"
	"ican-workers/internal/models"
)

// Notifier accepts notifications without blocking or failing the caller.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, models.Notification) {}

type EventPublisher interface {
	PublishEvent(ctx context.Context, subject, message string, attributes map[string]string) (string, error)
}

type EmailSender interface {
	SendEmail(ctx context.Context, to []string, subject, body string) (string, error)
}

type ContactDirectory interface {
	Contacts(ctx context.Context, userIDs []string) ([]models.Contact, error)
}

type Options struct {
	Publisher EventPublisher
	Email     EmailSender
	Contacts  ContactDirectory
	Templates []models.NotificationTemplate
	Timeout   time.Duration
	QueueSize int
	Logger    logger.Logger
}

// Dispatcher delivers notifications from a bounded queue on its own goroutine.
// When the queue is full new notifications are dropped and counted.
type Dispatcher struct {
	publisher EventPublisher
	email     EmailSender
	contacts  ContactDirectory
	templates map[models.NotificationType]*compiledTemplate
	timeout   time.Duration
	logger    logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan models.Notification
	done   chan struct{}
}

type compiledTemplate struct {
	subject *template.Template
	body    *template.Template
}

func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Templates == nil {
		opts.Templates = DefaultTemplates()
	}

	templates := make(map[models.NotificationType]*compiledTemplate, len(opts.Templates))
	for _, t := range opts.Templates {
		subject, err := template.New(string(t.Type) + ".subject").Option("missingkey=zero").Parse(t.Subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject template %s: %w", t.Type, err)
		}
		body, err := template.New(string(t.Type) + ".body").Option("missingkey=zero").Parse(t.Body)
		if err != nil {
			return nil, fmt.Errorf("parse body template %s: %w", t.Type, err)
		}
		templates[t.Type] = &compiledTemplate{subject: subject, body: body}
	}

	d := &Dispatcher{
		publisher: opts.Publisher,
		email:     opts.Email,
		contacts:  opts.Contacts,
		templates: templates,
		timeout:   opts.Timeout,
		logger:    logger.Component(opts.Logger, "notifier"),
		queue:     make(chan models.Notification, opts.QueueSize),
		done:      make(chan struct{}),
	}
	go d.run()
	return d, nil
}

// Notify enqueues n. It never blocks.
func (d *Dispatcher) Notify(_ context.Context, n models.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.NotificationsSent.WithLabelValues("queue", "dropped").Inc()
		return
	}

	select {
	case d.queue <- n:
	default:
		metrics.NotificationsSent.WithLabelValues("queue", "dropped").Inc()
		d.logger.Warn("notification queue full, dropping", map[string]interface{}{
			"type":       n.Type,
			"resourceId": n.ResourceID,
		})
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		d.deliver(ctx, n)
		cancel()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n models.Notification) {
	subject, body, err := d.render(n)
	if err != nil {
		d.logger.Error("notification render failed", map[string]interface{}{"type": n.Type, "error": err})
		return
	}

	if d.publisher != nil {
		d.publish(ctx, n, subject)
	}
	if d.email != nil && d.contacts != nil && len(n.RecipientIDs) > 0 {
		d.sendEmail(ctx, n, subject, body)
	}
}

func (d *Dispatcher) publish(ctx context.Context, n models.Notification, subject string) {
	message, err := json.Marshal(n)
	if err != nil {
		d.logger.Error("notification marshal failed", map[string]interface{}{"type": n.Type, "error": err})
		return
	}

	attrs := map[string]string{"eventType": string(n.Type)}
	if n.GroupID != "" {
		attrs["groupId"] = n.GroupID
	}

	if _, err := d.publisher.PublishEvent(ctx, subject, string(message), attrs); err != nil {
		metrics.NotificationsSent.WithLabelValues("sns", "failed").Inc()
		d.logger.Warn("notification publish failed", map[string]interface{}{
			"type":       n.Type,
			"resourceId": n.ResourceID,
			"error":      err,
		})
		return
	}
	metrics.NotificationsSent.WithLabelValues("sns", "sent").Inc()
}

func (d *Dispatcher) sendEmail(ctx context.Context, n models.Notification, subject, body string) {
	contacts, err := d.contacts.Contacts(ctx, n.RecipientIDs)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("email", "failed").Inc()
		d.logger.Warn("contact lookup failed", map[string]interface{}{"type": n.Type, "error": err})
		return
	}

	to := make([]string, 0, len(contacts))
	for _, c := range contacts {
		if c.Email != "" {
			to = append(to, c.Email)
		}
	}
	if len(to) == 0 {
		return
	}

	if _, err := d.email.SendEmail(ctx, to, subject, body); err != nil {
		metrics.NotificationsSent.WithLabelValues("email", "failed").Inc()
		d.logger.Warn("notification email failed", map[string]interface{}{
			"type":       n.Type,
			"recipients": len(to),
			"error":      err,
		})
		return
	}
	metrics.NotificationsSent.WithLabelValues("email", "sent").Inc()
}

func (d *Dispatcher) render(n models.Notification) (string, string, error) {
	tmpl, ok := d.templates[n.Type]
	if !ok {
		return string(n.Type), "", nil
	}

	data := map[string]interface{}{
		"Type":       n.Type,
		"GroupID":    n.GroupID,
		"ResourceID": n.ResourceID,
		"Data":       n.Data,
	}

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return "", "", err
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}

// DefaultTemplates covers every notification the engines emit.
func DefaultTemplates() []models.NotificationTemplate {
	return []models.NotificationTemplate{
		{
			Type:    models.NotifyApplicationSubmitted,
			Subject: "New membership application",
			Body:    "A new application ({{.ResourceID}}) was submitted to group {{.GroupID}} and awaits admin review.",
		},
		{
			Type:    models.NotifyVotingOpened,
			Subject: "Voting opened on a membership application",
			Body:    "Application {{.ResourceID}} in group {{.GroupID}} is open for voting.",
		},
		{
			Type:    models.NotifyApplicationApproved,
			Subject: "Membership application approved",
			Body:    "Application {{.ResourceID}} was approved. Welcome to group {{.GroupID}}.",
		},
		{
			Type:    models.NotifyApplicationRejected,
			Subject: "Membership application not approved",
			Body:    "Application {{.ResourceID}} for group {{.GroupID}} was not approved ({{index .Data \"status\"}}).",
		},
		{
			Type:    models.NotifyAllocationReserved,
			Subject: "Allocation reserved",
			Body:    "Your allocation {{.ResourceID}} of {{index .Data \"icanAmount\"}} ICAN is reserved.",
		},
		{
			Type:    models.NotifyAllocationFinalized,
			Subject: "Allocation finalized",
			Body:    "Allocation {{.ResourceID}} was converted at rate {{index .Data \"lockedRate\"}}.",
		},
	}
}
