// Package audit builds content-addressed audit entries and mirrors them to a
// search index.
package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"ican-workers/internal/models"
)

type canonicalEntry struct {
	EventType    string          `json:"eventType"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	ActorID      string          `json:"actorId"`
	Payload      json.RawMessage `json:"payload"`
	OccurredAt   string          `json:"occurredAt"`
}

// NewEntry builds an entry whose ID is the SHA-256 of its canonical JSON.
// occurredAt is truncated to microseconds to survive a database round trip.
func NewEntry(eventType, resourceType, resourceID, actorID string, payload interface{}, occurredAt time.Time) (models.AuditEntry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.AuditEntry{}, fmt.Errorf("marshal audit payload: %w", err)
	}
	canon, err := canonicalJSON(raw)
	if err != nil {
		return models.AuditEntry{}, err
	}

	entry := models.AuditEntry{
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ActorID:      actorID,
		Payload:      canon,
		OccurredAt:   occurredAt.UTC().Truncate(time.Microsecond),
	}
	id, err := Hash(entry)
	if err != nil {
		return models.AuditEntry{}, err
	}
	entry.ID = id
	return entry, nil
}

// Hash returns the content address of e, ignoring e.ID.
func Hash(e models.AuditEntry) (string, error) {
	payload, err := canonicalJSON(e.Payload)
	if err != nil {
		return "", err
	}
	doc, err := json.Marshal(canonicalEntry{
		EventType:    e.EventType,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		ActorID:      e.ActorID,
		Payload:      payload,
		OccurredAt:   e.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("marshal audit entry: %w", err)
	}
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether e.ID matches its content.
func Verify(e models.AuditEntry) bool {
	id, err := Hash(e)
	return err == nil && id == e.ID
}

// canonicalJSON re-encodes raw with sorted object keys and no insignificant
// whitespace. Numbers keep their literal form.
func canonicalJSON(raw []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode audit payload: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode audit payload: %w", err)
	}
	return out, nil
}

// Mirror receives committed audit entries for secondary indexing. It must not
// block or fail the caller.
type Mirror interface {
	Mirror(ctx context.Context, entries ...models.AuditEntry)
}

type NopMirror struct{}

func (NopMirror) Mirror(context.Context, ...models.AuditEntry) {}

// Recorder collects the entries written during one transaction so they can be
// mirrored after commit.
type Recorder struct {
	entries []models.AuditEntry
}

// Appender is the transactional write side of the audit log.
type Appender interface {
	AppendAudit(ctx context.Context, entry models.AuditEntry) error
}

// Record builds an entry, appends it through tx and remembers it.
func (r *Recorder) Record(ctx context.Context, tx Appender, eventType, resourceType, resourceID, actorID string, payload interface{}, at time.Time) error {
	entry, err := NewEntry(eventType, resourceType, resourceID, actorID, payload, at)
	if err != nil {
		return err
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *Recorder) Entries() []models.AuditEntry { return r.entries }

// Flush hands the collected entries to m.
func (r *Recorder) Flush(ctx context.Context, m Mirror) {
	if m == nil || len(r.entries) == 0 {
		return
	}
	m.Mirror(ctx, r.entries...)
}
