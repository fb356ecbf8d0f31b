// Package proxykey stores delegated-access tokens ("proxy keys")
// per data record: issuance, validity evaluation against an
// injected clock, manual revocation, and the bulk revocation used
// when record ownership is transferred. Keys are never physically
// deleted; they are retired by the revocation flag or by the
// passage of time past their expiry.
package proxykey

import (
	"errors"
	"sync"
	"time"

	"github.com/privacychain/accessledger/pkg/ident"
)

var (
	// ErrExists is returned when a proxy key identifier is
	// already in use. The namespace is global, not per-record.
	ErrExists = errors.New("proxy key already exists")
	// ErrNotFound is returned for an unknown proxy key
	// identifier on a mutating call.
	ErrNotFound = errors.New("proxy key not found")
	// ErrAlreadyRevoked is returned when revoking a key whose
	// revocation flag is already set.
	ErrAlreadyRevoked = errors.New("proxy key already revoked")
	// ErrInvalidRecipient is returned for a zero recipient or a
	// recipient equal to the data owner.
	ErrInvalidRecipient = errors.New("invalid proxy key recipient")
	// ErrInvalidProxyID is returned for an empty identifier.
	ErrInvalidProxyID = errors.New("invalid proxy key identifier")
	// ErrInvalidExpiration is returned when the expiry is not
	// strictly in the future.
	ErrInvalidExpiration = errors.New("expiration must be in the future")
)

// IssueParams holds the inputs for issuing a proxy key. DataOwner
// is the record's current owner as resolved by the caller; the
// store snapshots it into the key.
type IssueParams struct {
	ProxyID   ident.ProxyID
	DataID    ident.DataID
	DataOwner ident.Principal
	Recipient ident.Principal
	KeyHash   string
	ExpiresAt time.Time
}

// Store holds all issued proxy keys plus three append-only
// secondary indices: by record, by issuing owner, and by
// recipient. The indices keep expired and revoked keys, so they
// double as issuance history.
type Store struct {
	mu          sync.RWMutex
	keys        map[ident.ProxyID]*Key
	byData      map[ident.DataID][]ident.ProxyID
	byOwner     map[ident.Principal][]ident.ProxyID
	byRecipient map[ident.Principal][]ident.ProxyID
}

// NewStore creates an empty proxy key store.
func NewStore() *Store {
	return &Store{
		keys:        make(map[ident.ProxyID]*Key),
		byData:      make(map[ident.DataID][]ident.ProxyID),
		byOwner:     make(map[ident.Principal][]ident.ProxyID),
		byRecipient: make(map[ident.Principal][]ident.ProxyID),
	}
}

// Issue validates params against the given time and stores a new
// key. All validation happens before any state is touched.
func (s *Store) Issue(params IssueParams, now time.Time) error {
	if params.ProxyID.IsZero() {
		return ErrInvalidProxyID
	}
	if params.Recipient.IsZero() {
		return ErrInvalidRecipient
	}
	if params.Recipient.Equal(params.DataOwner) {
		return ErrInvalidRecipient
	}
	if !params.ExpiresAt.After(now) {
		return ErrInvalidExpiration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[params.ProxyID]; exists {
		return ErrExists
	}

	key := &Key{
		ProxyID:   params.ProxyID,
		DataID:    params.DataID,
		DataOwner: params.DataOwner,
		Recipient: params.Recipient,
		KeyHash:   params.KeyHash,
		CreatedAt: now,
		ExpiresAt: params.ExpiresAt,
	}
	s.insertLocked(key)
	return nil
}

// insertLocked stores the key and appends it to the secondary
// indices. Must be called with mu held.
func (s *Store) insertLocked(key *Key) {
	s.keys[key.ProxyID] = key
	s.byData[key.DataID] = append(s.byData[key.DataID], key.ProxyID)
	s.byOwner[key.DataOwner] = append(s.byOwner[key.DataOwner], key.ProxyID)
	s.byRecipient[key.Recipient] = append(s.byRecipient[key.Recipient], key.ProxyID)
}

// Restore inserts a previously persisted key verbatim, including
// its revocation state. Used when rebuilding the store from the
// durable log at startup.
func (s *Store) Restore(key Key) error {
	if key.ProxyID.IsZero() {
		return ErrInvalidProxyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.ProxyID]; exists {
		return ErrExists
	}
	k := key
	s.insertLocked(&k)
	return nil
}

// Revoke sets the revocation flag on the key and stamps
// RevokedAt. The flag never reverts. Authority against the
// issuance-time owner is the caller's responsibility (see Get).
func (s *Store) Revoke(id ident.ProxyID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, exists := s.keys[id]
	if !exists {
		return ErrNotFound
	}
	if key.Revoked {
		return ErrAlreadyRevoked
	}
	key.Revoked = true
	key.RevokedAt = now
	return nil
}

// RevokeAll revokes every not-yet-revoked key issued for the
// record and returns the identifiers it actually revoked, in
// issuance order. Already-revoked keys are silently skipped; the
// call never fails due to an individual key's state.
func (s *Store) RevokeAll(
	dataID ident.DataID,
	now time.Time,
) []ident.ProxyID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked []ident.ProxyID
	for _, id := range s.byData[dataID] {
		key := s.keys[id]
		if key.Revoked {
			continue
		}
		key.Revoked = true
		key.RevokedAt = now
		revoked = append(revoked, id)
	}
	return revoked
}

// Get returns a snapshot of the key, or false if no key with the
// identifier was ever issued.
func (s *Store) Get(id ident.ProxyID) (Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, exists := s.keys[id]
	if !exists {
		return Key{}, false
	}
	return *key, true
}

// IsValid reports whether the key exists, is not revoked, and has
// not passed its expiry. Unknown identifiers are false, never an
// error.
func (s *Store) IsValid(id ident.ProxyID, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, exists := s.keys[id]
	return exists && key.ValidAt(now)
}

// HasProxyAccess reports whether some currently valid key for the
// record targets the recipient.
func (s *Store) HasProxyAccess(
	recipient ident.Principal,
	dataID ident.DataID,
	now time.Time,
) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.byData[dataID] {
		key := s.keys[id]
		if key.Recipient.Equal(recipient) && key.ValidAt(now) {
			return true
		}
	}
	return false
}

// IssuedKeys returns the full issuance history for the record,
// including expired and revoked keys, in issuance order.
func (s *Store) IssuedKeys(dataID ident.DataID) []ident.ProxyID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]ident.ProxyID(nil), s.byData[dataID]...)
}

// ActiveKeys returns the identifiers of the record's currently
// valid keys.
func (s *Store) ActiveKeys(
	dataID ident.DataID,
	now time.Time,
) []ident.ProxyID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []ident.ProxyID
	for _, id := range s.byData[dataID] {
		if s.keys[id].ValidAt(now) {
			active = append(active, id)
		}
	}
	return active
}

// ActiveCount returns the number of currently valid keys for the
// record.
func (s *Store) ActiveCount(
	dataID ident.DataID,
	now time.Time,
) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range s.byData[dataID] {
		if s.keys[id].ValidAt(now) {
			count++
		}
	}
	return count
}

// Expired returns the identifiers of keys for the record that
// have passed expiry without being revoked. It mutates nothing:
// the revocation flag is deliberately left untouched so audit
// consumers can tell stale keys from revoked ones.
func (s *Store) Expired(
	dataID ident.DataID,
	now time.Time,
) []ident.ProxyID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []ident.ProxyID
	for _, id := range s.byData[dataID] {
		key := s.keys[id]
		if !key.Revoked && key.ExpiredAt(now) {
			expired = append(expired, id)
		}
	}
	return expired
}

// KeysByOwner returns the issuance history for keys issued while
// owner held the record, across all records.
func (s *Store) KeysByOwner(
	owner ident.Principal,
) []ident.ProxyID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]ident.ProxyID(nil), s.byOwner[owner]...)
}

// KeysByRecipient returns the issuance history for keys targeting
// the recipient, across all records.
func (s *Store) KeysByRecipient(
	recipient ident.Principal,
) []ident.ProxyID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]ident.ProxyID(nil), s.byRecipient[recipient]...)
}

// Snapshot returns a copy of every issued key, used by the
// persistence layer.
func (s *Store) Snapshot() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Key, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, *key)
	}
	return out
}
