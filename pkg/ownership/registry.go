// Package ownership tracks which principal owns each data record.
// It is the root of authority for every other mutation in the
// access ledger: grants, revocations, and proxy key issuance all
// resolve the caller against this registry first.
package ownership

import (
	"errors"
	"sync"

	"github.com/privacychain/accessledger/pkg/ident"
)

var (
	// ErrAlreadyRegistered is returned when a record identifier
	// already has an owner. Registration is deliberately not
	// idempotent: re-registering is an error, not a no-op.
	ErrAlreadyRegistered = errors.New("data record already registered")
	// ErrNotRegistered is returned when rebinding a record that
	// was never registered.
	ErrNotRegistered = errors.New("data record not registered")
	// ErrInvalidPrincipal is returned when the owner principal
	// is the zero sentinel.
	ErrInvalidPrincipal = errors.New("invalid principal")
)

// Registry maps record identifiers to their owning principal.
// A record has at most one owner, bound exactly once at
// registration and rebound only through an ownership transfer.
// Records are never deleted.
type Registry struct {
	mu     sync.RWMutex
	owners map[ident.DataID]ident.Principal
}

// NewRegistry creates an empty ownership registry.
func NewRegistry() *Registry {
	return &Registry{
		owners: make(map[ident.DataID]ident.Principal),
	}
}

// Register binds owner to dataID. Fails with
// ErrAlreadyRegistered if the record already has an owner and
// ErrInvalidPrincipal if owner is zero.
func (r *Registry) Register(
	dataID ident.DataID,
	owner ident.Principal,
) error {
	if owner.IsZero() {
		return ErrInvalidPrincipal
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.owners[dataID]; exists {
		return ErrAlreadyRegistered
	}
	r.owners[dataID] = owner
	return nil
}

// OwnerOf looks up the owner of dataID. The second return is
// false for unregistered records.
func (r *Registry) OwnerOf(
	dataID ident.DataID,
) (ident.Principal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.owners[dataID]
	return owner, ok
}

// IsOwner reports whether caller currently owns dataID.
// Unregistered records have no owner, so no caller matches.
func (r *Registry) IsOwner(
	dataID ident.DataID,
	caller ident.Principal,
) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.owners[dataID]
	return ok && owner.Equal(caller)
}

// Rebind replaces the owner of an already-registered record and
// returns the previous owner. Authority checks and the proxy key
// cascade belong to the caller; Rebind is the bare state
// transition. Fails with ErrInvalidPrincipal on a zero newOwner.
func (r *Registry) Rebind(
	dataID ident.DataID,
	newOwner ident.Principal,
) (ident.Principal, error) {
	if newOwner.IsZero() {
		return ident.Principal{}, ErrInvalidPrincipal
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous, ok := r.owners[dataID]
	if !ok {
		return ident.Principal{}, ErrNotRegistered
	}
	r.owners[dataID] = newOwner
	return previous, nil
}

// Snapshot returns a copy of the full owner map, used by the
// persistence layer when writing state through to the store.
func (r *Registry) Snapshot() map[ident.DataID]ident.Principal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[ident.DataID]ident.Principal, len(r.owners))
	for id, owner := range r.owners {
		out[id] = owner
	}
	return out
}
