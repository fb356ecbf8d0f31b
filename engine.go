package accessledger

import (
	"context"
	"fmt"
	"time"

	"github.com/privacychain/accessledger/pkg/audit"
	"github.com/privacychain/accessledger/pkg/ident"
	"github.com/privacychain/accessledger/pkg/proxykey"
)

// GenerateProxyKeyParams holds the inputs for issuing a proxy
// key. KeyHash is the opaque digest of re-encryption material
// produced by the external cryptographic step.
type GenerateProxyKeyParams struct {
	ProxyID   ident.ProxyID
	DataID    ident.DataID
	Recipient ident.Principal
	KeyHash   string
	ExpiresAt time.Time
	Caller    ident.Principal
}

// RegisterData binds caller as the owner of dataID and emits
// DataRegistered. Re-registration is an error, never a no-op.
func (e *Engine) RegisterData(
	ctx context.Context,
	dataID ident.DataID,
	caller ident.Principal,
) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller.IsZero() {
		return ErrInvalidPrincipal
	}

	mu := e.stripeFor(dataID)
	mu.Lock()
	defer mu.Unlock()

	if err := e.registry.Register(dataID, caller); err != nil {
		return err
	}
	if err := e.persistOwner(dataID, caller); err != nil {
		return err
	}
	return e.emit(ctx, audit.DataRegistered{
		DataID: dataID,
		Owner:  caller,
	})
}

// TransferOwnership rebinds the record to newOwner. Every still
// valid proxy key for the record is revoked first; the cascade
// and the rebind are one atomic unit with respect to concurrent
// readers, so no reader observes the new owner alongside old
// proxy keys still valid.
func (e *Engine) TransferOwnership(
	ctx context.Context,
	dataID ident.DataID,
	newOwner ident.Principal,
	caller ident.Principal,
) error {
	if err := e.ready(); err != nil {
		return err
	}

	mu := e.stripeFor(dataID)
	mu.Lock()
	defer mu.Unlock()

	if !e.registry.IsOwner(dataID, caller) {
		return ErrUnauthorized
	}
	if newOwner.IsZero() {
		return ErrInvalidPrincipal
	}

	revoked := e.proxyKeys.RevokeAll(dataID, e.clock.Now())
	previous, err := e.registry.Rebind(dataID, newOwner)
	if err != nil {
		return err
	}

	if err := e.persistProxyKeys(revoked); err != nil {
		return err
	}
	if err := e.persistOwner(dataID, newOwner); err != nil {
		return err
	}

	for _, proxyID := range revoked {
		if err := e.emit(ctx, audit.ProxyKeyRevoked{
			ProxyID: proxyID,
			DataID:  dataID,
			Revoker: caller,
		}); err != nil {
			return err
		}
	}
	return e.emit(ctx, audit.OwnershipTransferred{
		DataID:        dataID,
		PreviousOwner: previous,
		NewOwner:      newOwner,
	})
}

// GrantAccess puts user on the record's direct access list.
// Owner-only; not idempotent.
func (e *Engine) GrantAccess(
	ctx context.Context,
	dataID ident.DataID,
	user ident.Principal,
	caller ident.Principal,
) error {
	if err := e.ready(); err != nil {
		return err
	}

	mu := e.stripeFor(dataID)
	mu.Lock()
	defer mu.Unlock()

	if !e.registry.IsOwner(dataID, caller) {
		return ErrUnauthorized
	}
	if user.IsZero() {
		return ErrInvalidPrincipal
	}

	if err := e.accessors.Grant(dataID, user); err != nil {
		return err
	}
	if err := e.persistAccessors(dataID); err != nil {
		return err
	}
	return e.emit(ctx, audit.AccessGranted{
		DataID:  dataID,
		User:    user,
		Granter: caller,
	})
}

// RevokeAccess removes user from the record's direct access
// list. Owner-only; fails if user has no access.
func (e *Engine) RevokeAccess(
	ctx context.Context,
	dataID ident.DataID,
	user ident.Principal,
	caller ident.Principal,
) error {
	if err := e.ready(); err != nil {
		return err
	}

	mu := e.stripeFor(dataID)
	mu.Lock()
	defer mu.Unlock()

	if !e.registry.IsOwner(dataID, caller) {
		return ErrUnauthorized
	}

	if err := e.accessors.Revoke(dataID, user); err != nil {
		return err
	}
	if err := e.persistAccessors(dataID); err != nil {
		return err
	}
	return e.emit(ctx, audit.AccessRevoked{
		DataID:  dataID,
		User:    user,
		Revoker: caller,
	})
}

// LogAccess records that user exercised direct access to the
// record. It verifies the user is the owner or a direct accessor
// and emits AccessLogged; no state changes.
func (e *Engine) LogAccess(
	ctx context.Context,
	dataID ident.DataID,
	user ident.Principal,
) error {
	if err := e.ready(); err != nil {
		return err
	}

	mu := e.stripeFor(dataID)
	mu.RLock()
	defer mu.RUnlock()

	if !e.registry.IsOwner(dataID, user) &&
		!e.accessors.HasAccess(dataID, user) {
		return ErrUnauthorized
	}
	return e.emit(ctx, audit.AccessLogged{
		DataID:    dataID,
		User:      user,
		Timestamp: e.clock.Now(),
	})
}

// GenerateProxyKey issues a delegation token for the record.
// Owner-only; the recipient must be a third party and the expiry
// strictly in the future. The proxy key identifier namespace is
// global.
func (e *Engine) GenerateProxyKey(
	ctx context.Context,
	params GenerateProxyKeyParams,
) error {
	if err := e.ready(); err != nil {
		return err
	}

	mu := e.stripeFor(params.DataID)
	mu.Lock()
	defer mu.Unlock()

	if !e.registry.IsOwner(params.DataID, params.Caller) {
		return ErrUnauthorized
	}
	if params.Recipient.IsZero() || params.Recipient.Equal(params.Caller) {
		return ErrInvalidPrincipal
	}

	err := e.proxyKeys.Issue(proxykey.IssueParams{
		ProxyID:   params.ProxyID,
		DataID:    params.DataID,
		DataOwner: params.Caller,
		Recipient: params.Recipient,
		KeyHash:   params.KeyHash,
		ExpiresAt: params.ExpiresAt,
	}, e.clock.Now())
	if err != nil {
		return err
	}

	if err := e.persistProxyKey(params.ProxyID); err != nil {
		return err
	}
	return e.emit(ctx, audit.ProxyKeyGenerated{
		ProxyID:   params.ProxyID,
		DataID:    params.DataID,
		Recipient: params.Recipient,
		ExpiresAt: params.ExpiresAt,
	})
}

// RevokeProxyKey sets the revocation flag on the key. Only the
// owner snapshotted at issuance may revoke; the flag never
// reverts.
func (e *Engine) RevokeProxyKey(
	ctx context.Context,
	proxyID ident.ProxyID,
	caller ident.Principal,
) error {
	if err := e.ready(); err != nil {
		return err
	}

	key, ok := e.proxyKeys.Get(proxyID)
	if !ok {
		return ErrProxyKeyNotFound
	}

	mu := e.stripeFor(key.DataID)
	mu.Lock()
	defer mu.Unlock()

	if !caller.Equal(key.DataOwner) {
		return ErrUnauthorized
	}

	if err := e.proxyKeys.Revoke(proxyID, e.clock.Now()); err != nil {
		return err
	}
	if err := e.persistProxyKey(proxyID); err != nil {
		return err
	}
	return e.emit(ctx, audit.ProxyKeyRevoked{
		ProxyID: proxyID,
		DataID:  key.DataID,
		Revoker: caller,
	})
}

// RevokeAllProxyKeys revokes every not-yet-revoked proxy key for
// the record, emitting one ProxyKeyRevoked per key actually
// revoked. Already-revoked keys are skipped silently; calling
// twice succeeds and the second call revokes nothing.
func (e *Engine) RevokeAllProxyKeys(
	ctx context.Context,
	dataID ident.DataID,
	caller ident.Principal,
) error {
	if err := e.ready(); err != nil {
		return err
	}

	mu := e.stripeFor(dataID)
	mu.Lock()
	defer mu.Unlock()

	if !e.registry.IsOwner(dataID, caller) {
		return ErrUnauthorized
	}

	revoked := e.proxyKeys.RevokeAll(dataID, e.clock.Now())
	if err := e.persistProxyKeys(revoked); err != nil {
		return err
	}
	for _, proxyID := range revoked {
		if err := e.emit(ctx, audit.ProxyKeyRevoked{
			ProxyID: proxyID,
			DataID:  dataID,
			Revoker: caller,
		}); err != nil {
			return err
		}
	}
	return nil
}

// LogProxyAccess records that caller exercised a valid proxy key.
// The key must be valid and caller must be its recipient; no
// state changes.
func (e *Engine) LogProxyAccess(
	ctx context.Context,
	proxyID ident.ProxyID,
	caller ident.Principal,
) error {
	if err := e.ready(); err != nil {
		return err
	}

	key, ok := e.proxyKeys.Get(proxyID)
	if !ok {
		return ErrProxyKeyNotFound
	}

	mu := e.stripeFor(key.DataID)
	mu.RLock()
	defer mu.RUnlock()

	// Re-read under the stripe lock; the key may have been
	// revoked between the lookup and here.
	key, ok = e.proxyKeys.Get(proxyID)
	if !ok {
		return ErrProxyKeyNotFound
	}
	now := e.clock.Now()
	if key.Revoked {
		return ErrAlreadyRevoked
	}
	if key.ExpiredAt(now) {
		return ErrProxyKeyExpired
	}
	if !caller.Equal(key.Recipient) {
		return ErrUnauthorized
	}
	return e.emit(ctx, audit.ProxyAccessLogged{
		ProxyID:   proxyID,
		DataID:    key.DataID,
		Recipient: caller,
		Timestamp: now,
	})
}

// CleanupExpired emits one ProxyKeyExpired event for every key
// of the record that passed expiry without being revoked. It is a
// notification pass only: the revocation flag is left untouched,
// so manual revocation stays distinguishable from staleness.
func (e *Engine) CleanupExpired(
	ctx context.Context,
	dataID ident.DataID,
) error {
	if err := e.ready(); err != nil {
		return err
	}

	mu := e.stripeFor(dataID)
	mu.RLock()
	defer mu.RUnlock()

	for _, proxyID := range e.proxyKeys.Expired(dataID, e.clock.Now()) {
		if err := e.emit(ctx, audit.ProxyKeyExpired{
			ProxyID: proxyID,
			DataID:  dataID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// emit records the event on the trail and appends it to the
// persisted audit stream. A persistence failure surfaces to the
// caller but does not roll back the committed mutation; the
// store owns durability, not the engine.
func (e *Engine) emit(ctx context.Context, event audit.Event) error {
	e.trail.Record(ctx, event)
	if e.store == nil {
		return nil
	}
	entry := audit.Entry{
		Timestamp: e.clock.Now(),
		Kind:      event.Kind(),
		Event:     event,
	}
	if err := e.store.AppendAudit(entry); err != nil {
		return fmt.Errorf("persist audit event %s: %w", event.Kind(), err)
	}
	return nil
}

func (e *Engine) persistOwner(
	dataID ident.DataID,
	owner ident.Principal,
) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.PutOwner(dataID, owner); err != nil {
		return fmt.Errorf("persist owner of %s: %w", dataID, err)
	}
	return nil
}

func (e *Engine) persistAccessors(dataID ident.DataID) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.PutAccessors(dataID, e.accessors.Accessors(dataID)); err != nil {
		return fmt.Errorf("persist access list of %s: %w", dataID, err)
	}
	return nil
}

func (e *Engine) persistProxyKey(proxyID ident.ProxyID) error {
	if e.store == nil {
		return nil
	}
	key, ok := e.proxyKeys.Get(proxyID)
	if !ok {
		return fmt.Errorf("persist proxy key %s: %w", proxyID, ErrProxyKeyNotFound)
	}
	if err := e.store.PutProxyKey(key); err != nil {
		return fmt.Errorf("persist proxy key %s: %w", proxyID, err)
	}
	return nil
}

func (e *Engine) persistProxyKeys(ids []ident.ProxyID) error {
	for _, id := range ids {
		if err := e.persistProxyKey(id); err != nil {
			return err
		}
	}
	return nil
}
