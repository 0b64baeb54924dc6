// Package memory is a transactional in-process store with the same
// semantics as the Postgres store. Transactions are serialized by a single
// mutex and work on a copy of the state that replaces the original on commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ican-workers/internal/allocation"
	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/membership"
	"ican-workers/internal/models"
	"ican-workers/internal/ratelock"

	"github.com/shopspring/decimal"
)

type voteKey struct{ applicationID, voterID string }
type memberKey struct{ groupID, memberID string }

type state struct {
	applications map[string]models.MembershipApplication
	votes        map[voteKey]models.Vote
	members      map[memberKey]models.GroupMembership
	pitches      map[string]models.Pitch
	allocations  map[string]models.AllocationRecord
	locks        map[string]models.ExchangeRateLock
	audit        []models.AuditEntry
	auditIDs     map[string]struct{}
}

func newState() state {
	return state{
		applications: map[string]models.MembershipApplication{},
		votes:        map[voteKey]models.Vote{},
		members:      map[memberKey]models.GroupMembership{},
		pitches:      map[string]models.Pitch{},
		allocations:  map[string]models.AllocationRecord{},
		locks:        map[string]models.ExchangeRateLock{},
		auditIDs:     map[string]struct{}{},
	}
}

// clone copies every map. Records are replaced rather than mutated, so
// pointer fields inside them can be shared.
func (s state) clone() state {
	c := newState()
	for k, v := range s.applications {
		c.applications[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.pitches {
		c.pitches[k] = v
	}
	for k, v := range s.allocations {
		c.allocations[k] = v
	}
	for k, v := range s.locks {
		c.locks[k] = v
	}
	c.audit = append([]models.AuditEntry(nil), s.audit...)
	for k := range s.auditIDs {
		c.auditIDs[k] = struct{}{}
	}
	return c
}

// DB holds the shared state behind the per-domain stores.
type DB struct {
	mu    sync.Mutex
	state state
}

func New() *DB {
	return &DB{state: newState()}
}

func (db *DB) run(fn func(t *tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t := &tx{state: db.state.clone()}
	if err := fn(t); err != nil {
		return err
	}
	db.state = t.state
	return nil
}

// PutPitch registers or replaces a pitch.
func (db *DB) PutPitch(p models.Pitch) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.pitches[p.ID] = p
}

// AuditEntries returns committed audit entries in append order.
func (db *DB) AuditEntries() []models.AuditEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]models.AuditEntry(nil), db.state.audit...)
}

// MembershipStore adapts DB to membership.Store.
type MembershipStore struct{ db *DB }

func (db *DB) Membership() *MembershipStore { return &MembershipStore{db: db} }

func (s *MembershipStore) WithinTx(ctx context.Context, fn func(membership.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.run(func(t *tx) error { return fn(t) })
}

func (s *MembershipStore) ListApplications(ctx context.Context, groupID string, status models.ApplicationStatus) ([]models.MembershipApplication, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []models.MembershipApplication
	for _, app := range s.db.state.applications {
		if app.GroupID != groupID || (status != "" && app.Status != status) {
			continue
		}
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AllocationStore adapts DB to allocation.Store. The DB mutex already
// serializes every transaction, so the per-investor lock is implicit.
type AllocationStore struct{ db *DB }

func (db *DB) Allocation() *AllocationStore { return &AllocationStore{db: db} }

func (s *AllocationStore) WithinInvestorLock(ctx context.Context, _, _ string, fn func(allocation.Tx) error) error {
	return s.WithinTx(ctx, fn)
}

func (s *AllocationStore) WithinTx(ctx context.Context, fn func(allocation.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.run(func(t *tx) error { return fn(t) })
}

// RateLockStore adapts DB to ratelock.Store.
type RateLockStore struct{ db *DB }

func (db *DB) RateLock() *RateLockStore { return &RateLockStore{db: db} }

func (s *RateLockStore) WithinTx(ctx context.Context, fn func(ratelock.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.run(func(t *tx) error { return fn(t) })
}

// tx implements membership.Tx, allocation.Tx and ratelock.Tx.
type tx struct {
	state state
}

var (
	_ membership.Tx = (*tx)(nil)
	_ allocation.Tx = (*tx)(nil)
	_ ratelock.Tx   = (*tx)(nil)
)

func (t *tx) AppendAudit(_ context.Context, entry models.AuditEntry) error {
	if _, dup := t.state.auditIDs[entry.ID]; dup {
		return nil
	}
	t.state.auditIDs[entry.ID] = struct{}{}
	t.state.audit = append(t.state.audit, entry)
	return nil
}

// ====================
// Membership
// ====================

func (t *tx) GetApplication(_ context.Context, id string, _ bool) (*models.MembershipApplication, error) {
	app, ok := t.state.applications[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("application", id)
	}
	return &app, nil
}

func (t *tx) HasOpenApplication(_ context.Context, groupID, applicantID string) (bool, error) {
	for _, app := range t.state.applications {
		if app.GroupID == groupID && app.ApplicantID == applicantID && !app.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertApplication(ctx context.Context, app *models.MembershipApplication) (bool, error) {
	open, _ := t.HasOpenApplication(ctx, app.GroupID, app.ApplicantID)
	if open {
		return false, nil
	}
	t.state.applications[app.ID] = *app
	return true, nil
}

func (t *tx) TransitionApplication(_ context.Context, id string, tr models.StatusTransition) (bool, error) {
	app, ok := t.state.applications[id]
	if !ok || app.Status != tr.From {
		return false, nil
	}
	app.Status = tr.To
	app.UpdatedAt = tr.At
	if tr.DecidedBy != "" {
		app.DecidedBy = tr.DecidedBy
	}
	if tr.To.IsTerminal() {
		at := tr.At
		app.ResolvedAt = &at
	}
	t.state.applications[id] = app
	return true, nil
}

func (t *tx) GetMembership(_ context.Context, groupID, memberID string) (*models.GroupMembership, error) {
	m, ok := t.state.members[memberKey{groupID, memberID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (t *tx) ListMembers(_ context.Context, groupID string) ([]models.GroupMembership, error) {
	var out []models.GroupMembership
	for k, m := range t.state.members {
		if k.groupID == groupID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (t *tx) CountMembers(_ context.Context, groupID string) (int, error) {
	n := 0
	for k := range t.state.members {
		if k.groupID == groupID {
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertMembership(_ context.Context, m models.GroupMembership) (bool, error) {
	key := memberKey{m.GroupID, m.MemberID}
	if _, exists := t.state.members[key]; exists {
		return false, nil
	}
	t.state.members[key] = m
	return true, nil
}

func (t *tx) InsertVote(_ context.Context, v models.Vote) (bool, error) {
	key := voteKey{v.ApplicationID, v.VoterID}
	if _, exists := t.state.votes[key]; exists {
		return false, nil
	}
	t.state.votes[key] = v
	return true, nil
}

func (t *tx) CountVotes(_ context.Context, applicationID string) (int, int, error) {
	var yes, no int
	for k, v := range t.state.votes {
		if k.applicationID != applicationID {
			continue
		}
		if v.Choice == models.VoteYes {
			yes++
		} else {
			no++
		}
	}
	return yes, no, nil
}

// ====================
// Allocation
// ====================

func (t *tx) GetPitch(_ context.Context, pitchID string) (*models.Pitch, error) {
	p, ok := t.state.pitches[pitchID]
	if !ok {
		return nil, apperrors.NewNotFoundError("pitch", pitchID)
	}
	return &p, nil
}

func (t *tx) SumAllocations(_ context.Context, investorID, businessID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, a := range t.state.allocations {
		if a.InvestorID == investorID && a.BusinessID == businessID && a.Status.CountsTowardCap() {
			total = total.Add(a.ICANAmount)
		}
	}
	return total, nil
}

func (t *tx) InsertAllocation(_ context.Context, rec *models.AllocationRecord) error {
	if _, exists := t.state.allocations[rec.ID]; exists {
		return apperrors.NewConflictError(nil).WithMetadata("allocationId", rec.ID)
	}
	t.state.allocations[rec.ID] = *rec
	return nil
}

func (t *tx) GetAllocation(_ context.Context, id string, _ bool) (*models.AllocationRecord, error) {
	a, ok := t.state.allocations[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("allocation", id)
	}
	return &a, nil
}

func (t *tx) TransitionAllocation(_ context.Context, id string, from, to models.AllocationStatus, at time.Time) (bool, error) {
	a, ok := t.state.allocations[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = at
	t.state.allocations[id] = a
	return true, nil
}

func (t *tx) AttachConversion(_ context.Context, id, rateLockID string, conv *models.ConversionBreakdown, at time.Time) (bool, error) {
	a, ok := t.state.allocations[id]
	if !ok || a.Status != models.AllocationReserved || a.RateLockID != "" {
		return false, nil
	}
	c := *conv
	a.RateLockID = rateLockID
	a.Conversion = &c
	a.UpdatedAt = at
	t.state.allocations[id] = a
	return true, nil
}

// ====================
// Rate locks
// ====================

func (t *tx) GetLock(_ context.Context, id string, _ bool) (*models.ExchangeRateLock, error) {
	l, ok := t.state.locks[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("rate lock", id)
	}
	return &l, nil
}

func (t *tx) ActiveLockForTx(_ context.Context, txID string) (*models.ExchangeRateLock, error) {
	for _, l := range t.state.locks {
		if l.TxID == txID && l.Status == models.RateLockActive {
			return &l, nil
		}
	}
	return nil, nil
}

func (t *tx) InsertLock(ctx context.Context, lock *models.ExchangeRateLock) (bool, error) {
	if active, _ := t.ActiveLockForTx(ctx, lock.TxID); active != nil {
		return false, nil
	}
	t.state.locks[lock.ID] = *lock
	return true, nil
}

func (t *tx) UpdateLockStatus(_ context.Context, id string, from, to models.RateLockStatus, at time.Time) (bool, error) {
	l, ok := t.state.locks[id]
	if !ok || l.Status != from {
		return false, nil
	}
	l.Status = to
	if to == models.RateLockConsumed {
		consumed := at
		l.ConsumedAt = &consumed
	}
	t.state.locks[id] = l
	return true, nil
}

func (t *tx) ExpireActiveBefore(_ context.Context, now time.Time) (int, error) {
	n := 0
	for id, l := range t.state.locks {
		if l.Status == models.RateLockActive && l.ExpiredAt(now) {
			l.Status = models.RateLockExpired
			t.state.locks[id] = l
			n++
		}
	}
	return n, nil
}
