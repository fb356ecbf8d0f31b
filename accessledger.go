// Package accessledger is an authorization engine for opaque
// data records. It tracks record ownership, maintains a direct
// access ledger per record, and manages the lifecycle of
// time-bounded, revocable proxy keys that delegate re-encrypted
// access to third parties. Every successful mutation emits
// exactly one audit event; tamper-evident persistence, the
// re-encryption cryptography itself, and network transport are
// collaborators outside this module.
package accessledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/privacychain/accessledger/internal/keyValStore"
	"github.com/privacychain/accessledger/pkg/acl"
	"github.com/privacychain/accessledger/pkg/audit"
	"github.com/privacychain/accessledger/pkg/ident"
	"github.com/privacychain/accessledger/pkg/ownership"
	"github.com/privacychain/accessledger/pkg/proxykey"
)

// lockStripes is the number of per-record mutex stripes. Records
// map onto stripes by the leading bytes of their identifier, so
// mutations on distinct records rarely contend while mutations on
// the same record always serialize.
const lockStripes = 64

// Engine is the authorization engine handle. It composes the
// ownership registry, the direct access ledger, the proxy key
// store, the audit trail, and the optional durable store.
type Engine struct {
	log    *slog.Logger
	config Config
	clock  ident.Clock

	registry  *ownership.Registry
	accessors *acl.Ledger
	proxyKeys *proxykey.Store
	trail     *audit.Trail
	store     *keyValStore.LedgerStore

	stripes [lockStripes]sync.RWMutex

	started   atomic.Bool
	closed    atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New constructs an engine handle. New does no I/O; call Start to
// open the durable store and replay persisted state.
func New(conf Config) (*Engine, error) {
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	if conf.Clock == nil {
		conf.Clock = ident.SystemClock{}
	}
	return &Engine{
		log:       conf.Logger,
		config:    conf,
		clock:     conf.Clock,
		registry:  ownership.NewRegistry(),
		accessors: acl.NewLedger(),
		proxyKeys: proxykey.NewStore(),
	}, nil
}

// Start opens the durable store (when Paths is set), replays its
// state into the in-memory components, and starts the audit
// trail. Start is safe to call multiple times; only the first
// call has effect.
func (e *Engine) Start(ctx context.Context) error {
	var startErr error
	e.startOnce.Do(func() {
		e.trail = audit.NewTrail(e.log, e.clock, e.config.AuditRetention)

		if len(e.config.Paths) > 0 {
			if err := e.openStore(); err != nil {
				startErr = err
				return
			}
			if err := e.replay(); err != nil {
				startErr = fmt.Errorf("replay persisted state: %w", err)
				return
			}
		}

		e.started.Store(true)
		e.log.InfoContext(ctx, "access ledger started",
			"persistent", e.store != nil)
	})
	return startErr
}

// Close stops the audit trail and closes the durable store.
// Operations after Close fail with ErrClosed.
func (e *Engine) Close() error {
	var closeErr error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.trail != nil {
			e.trail.Stop()
		}
		if e.store != nil {
			closeErr = e.store.Close()
		}
		e.log.Info("access ledger closed")
	})
	return closeErr
}

func (e *Engine) openStore() error {
	dataRoot := e.config.Paths[0]
	if err := os.MkdirAll(dataRoot, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dataRoot, err)
	}

	storeLog := logrus.New()
	storeLog.SetLevel(logrus.WarnLevel)

	store, err := keyValStore.NewLedgerStore(keyValStore.StoreConfig{
		Paths:            []string{dataRoot},
		MinimumFreeSpace: int(e.config.MinimumFreeGB),
		Logger:           storeLog,
	})
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	e.store = store
	return nil
}

// replay rebuilds the in-memory components from the durable
// store. Invalid persisted records abort the start; a corrupt
// store must not silently drop authorization state.
func (e *Engine) replay() error {
	state, err := e.store.Load()
	if err != nil {
		return err
	}

	for dataID, owner := range state.Owners {
		if err := e.registry.Register(dataID, owner); err != nil {
			return fmt.Errorf("restore owner of %s: %w", dataID, err)
		}
	}
	for dataID, users := range state.Accessors {
		for _, user := range users {
			if err := e.accessors.Grant(dataID, user); err != nil {
				return fmt.Errorf("restore access list of %s: %w", dataID, err)
			}
		}
	}
	for _, key := range state.ProxyKeys {
		if err := e.proxyKeys.Restore(key); err != nil {
			return fmt.Errorf("restore proxy key %s: %w", key.ProxyID, err)
		}
	}

	e.log.Info("persisted state replayed",
		"records", len(state.Owners),
		"proxyKeys", len(state.ProxyKeys))
	return nil
}

// Trail exposes the audit trail for subscription and history
// queries.
func (e *Engine) Trail() *audit.Trail {
	return e.trail
}

func (e *Engine) ready() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// stripeFor maps a record identifier onto its mutex stripe.
func (e *Engine) stripeFor(dataID ident.DataID) *sync.RWMutex {
	idx := binary.BigEndian.Uint64(dataID[:8]) % lockStripes
	return &e.stripes[idx]
}

// OwnerOf returns the current owner of the record, or false for
// an unregistered identifier. It takes the record's stripe
// read-side so an in-flight ownership transfer is observed as a
// whole: never the old owner after its keys were cascaded away,
// nor the new owner before.
func (e *Engine) OwnerOf(dataID ident.DataID) (ident.Principal, bool) {
	mu := e.stripeFor(dataID)
	mu.RLock()
	defer mu.RUnlock()
	return e.registry.OwnerOf(dataID)
}

// HasAccess reports whether user holds direct access to the
// record. Unauthenticated view operation.
func (e *Engine) HasAccess(dataID ident.DataID, user ident.Principal) bool {
	mu := e.stripeFor(dataID)
	mu.RLock()
	defer mu.RUnlock()
	return e.accessors.HasAccess(dataID, user)
}

// Accessors returns the record's direct accessors in arbitrary
// order.
func (e *Engine) Accessors(dataID ident.DataID) []ident.Principal {
	mu := e.stripeFor(dataID)
	mu.RLock()
	defer mu.RUnlock()
	return e.accessors.Accessors(dataID)
}

// AccessorCount returns the number of direct accessors.
func (e *Engine) AccessorCount(dataID ident.DataID) int {
	mu := e.stripeFor(dataID)
	mu.RLock()
	defer mu.RUnlock()
	return e.accessors.AccessorCount(dataID)
}

// IsProxyKeyValid reports whether the proxy key exists, is not
// revoked, and has not expired at the engine clock's current
// reading. Unknown identifiers are false, never an error.
func (e *Engine) IsProxyKeyValid(proxyID ident.ProxyID) bool {
	key, ok := e.proxyKeys.Get(proxyID)
	if !ok {
		return false
	}
	mu := e.stripeFor(key.DataID)
	mu.RLock()
	defer mu.RUnlock()
	return e.proxyKeys.IsValid(proxyID, e.clock.Now())
}

// HasProxyAccess reports whether some currently valid proxy key
// for the record targets recipient.
func (e *Engine) HasProxyAccess(
	recipient ident.Principal,
	dataID ident.DataID,
) bool {
	mu := e.stripeFor(dataID)
	mu.RLock()
	defer mu.RUnlock()
	return e.proxyKeys.HasProxyAccess(recipient, dataID, e.clock.Now())
}

// GetProxyKey returns a snapshot of the proxy key, or false if it
// was never issued.
func (e *Engine) GetProxyKey(proxyID ident.ProxyID) (proxykey.Key, bool) {
	return e.proxyKeys.Get(proxyID)
}

// IssuedProxyKeys returns the record's full issuance history,
// including revoked and expired keys.
func (e *Engine) IssuedProxyKeys(dataID ident.DataID) []ident.ProxyID {
	return e.proxyKeys.IssuedKeys(dataID)
}

// ActiveProxyKeys returns the record's currently valid proxy
// keys.
func (e *Engine) ActiveProxyKeys(dataID ident.DataID) []ident.ProxyID {
	mu := e.stripeFor(dataID)
	mu.RLock()
	defer mu.RUnlock()
	return e.proxyKeys.ActiveKeys(dataID, e.clock.Now())
}

// ActiveProxyKeyCount returns the number of currently valid proxy
// keys for the record.
func (e *Engine) ActiveProxyKeyCount(dataID ident.DataID) int {
	mu := e.stripeFor(dataID)
	mu.RLock()
	defer mu.RUnlock()
	return e.proxyKeys.ActiveCount(dataID, e.clock.Now())
}

// ProxyKeysByOwner returns every proxy key issued while owner
// held the issuing record.
func (e *Engine) ProxyKeysByOwner(owner ident.Principal) []ident.ProxyID {
	return e.proxyKeys.KeysByOwner(owner)
}

// ProxyKeysByRecipient returns every proxy key issued to
// recipient, across all records.
func (e *Engine) ProxyKeysByRecipient(recipient ident.Principal) []ident.ProxyID {
	return e.proxyKeys.KeysByRecipient(recipient)
}
