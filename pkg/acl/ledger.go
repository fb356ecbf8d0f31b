// Package acl maintains the per-record direct access ledger: the
// set of principals with unconditional, non-expiring access to a
// record. Membership mutation is O(1) via an index-tracked
// swap-remove list.
package acl

import (
	"errors"
	"sync"

	"github.com/privacychain/accessledger/pkg/ident"
)

var (
	// ErrAlreadyHasAccess is returned when granting access to a
	// principal that is already on the record's list.
	ErrAlreadyHasAccess = errors.New("principal already has access")
	// ErrNotFound is returned when revoking access from a
	// principal that is not on the record's list.
	ErrNotFound = errors.New("principal has no access")
	// ErrInvalidPrincipal is returned for a zero principal.
	ErrInvalidPrincipal = errors.New("invalid principal")
)

// recordACL holds one record's accessor list plus the reverse
// index mapping each principal to its current list position. The
// index is kept consistent with list positions at all times; the
// list holds no duplicates.
type recordACL struct {
	accessors []ident.Principal
	positions map[ident.Principal]int
}

// Ledger is the direct access ledger across all records.
type Ledger struct {
	mu      sync.RWMutex
	records map[ident.DataID]*recordACL
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[ident.DataID]*recordACL),
	}
}

// Grant appends user to the record's accessor list. Fails with
// ErrAlreadyHasAccess if user is already present. Grant is not
// idempotent.
func (l *Ledger) Grant(
	dataID ident.DataID,
	user ident.Principal,
) error {
	if user.IsZero() {
		return ErrInvalidPrincipal
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.records[dataID]
	if rec == nil {
		rec = &recordACL{
			positions: make(map[ident.Principal]int),
		}
		l.records[dataID] = rec
	}

	if _, has := rec.positions[user]; has {
		return ErrAlreadyHasAccess
	}
	rec.positions[user] = len(rec.accessors)
	rec.accessors = append(rec.accessors, user)
	return nil
}

// Revoke removes user from the record's accessor list in O(1) by
// swap-remove: the last element overwrites the vacated slot and
// has its index entry updated, then the list shrinks by one.
// Enumeration order is therefore not grant order. Fails with
// ErrNotFound if user has no access.
func (l *Ledger) Revoke(
	dataID ident.DataID,
	user ident.Principal,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.records[dataID]
	if rec == nil {
		return ErrNotFound
	}
	pos, has := rec.positions[user]
	if !has {
		return ErrNotFound
	}

	last := len(rec.accessors) - 1
	if pos != last {
		moved := rec.accessors[last]
		rec.accessors[pos] = moved
		rec.positions[moved] = pos
	}
	rec.accessors = rec.accessors[:last]
	delete(rec.positions, user)
	return nil
}

// HasAccess reports whether user is on the record's list.
func (l *Ledger) HasAccess(
	dataID ident.DataID,
	user ident.Principal,
) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec := l.records[dataID]
	if rec == nil {
		return false
	}
	_, has := rec.positions[user]
	return has
}

// Accessors returns a copy of the record's accessor list. Order
// is arbitrary and callers must not read grant history into it.
func (l *Ledger) Accessors(
	dataID ident.DataID,
) []ident.Principal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec := l.records[dataID]
	if rec == nil {
		return nil
	}
	out := make([]ident.Principal, len(rec.accessors))
	copy(out, rec.accessors)
	return out
}

// AccessorCount returns the number of principals with direct
// access to the record.
func (l *Ledger) AccessorCount(dataID ident.DataID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec := l.records[dataID]
	if rec == nil {
		return 0
	}
	return len(rec.accessors)
}

// Snapshot returns a copy of every record's accessor list, used
// by the persistence layer.
func (l *Ledger) Snapshot() map[ident.DataID][]ident.Principal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[ident.DataID][]ident.Principal, len(l.records))
	for id, rec := range l.records {
		accessors := make([]ident.Principal, len(rec.accessors))
		copy(accessors, rec.accessors)
		out[id] = accessors
	}
	return out
}
