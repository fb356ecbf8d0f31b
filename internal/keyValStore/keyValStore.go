// Package keyValStore persists the access ledger's state in a
// badger key-value store: record ownership, direct-access lists,
// proxy keys, and the audit stream. The engine writes through
// after each committed mutation and replays the stored state at
// startup. Durability semantics are badger's; this layer only
// shapes keys and values.
package keyValStore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/privacychain/accessledger/pkg/audit"
	"github.com/privacychain/accessledger/pkg/ident"
	"github.com/privacychain/accessledger/pkg/proxykey"
)

var log *logrus.Logger

const (
	ownerPrefix = "owner:"
	aclPrefix   = "acl:"
	proxyPrefix = "proxy:"
	auditPrefix = "audit:"
)

type StoreConfig struct {
	Paths            []string // absolute path at the moment only first path is supported
	MinimumFreeSpace int      // in GB
	Logger           *logrus.Logger
}

// LedgerStore is the badger-backed persistence adapter.
type LedgerStore struct {
	config       StoreConfig
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
	auditSeq     uint64
	zstdEncoder  *zstd.Encoder
	zstdDecoder  *zstd.Decoder
}

// State is the full persisted ledger state, as replayed at
// startup.
type State struct {
	Owners    map[ident.DataID]ident.Principal
	Accessors map[ident.DataID][]ident.Principal
	ProxyKeys []proxykey.Key
}

func NewLedgerStore(config StoreConfig) (*LedgerStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	log = config.Logger

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for LedgerStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger store: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating zstd decoder: %w", err)
	}

	s := &LedgerStore{
		config:      config,
		badgerDB:    db,
		zstdEncoder: encoder,
		zstdDecoder: decoder,
	}

	seq, err := s.lastAuditSeq()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("error reading audit sequence: %w", err)
	}
	s.auditSeq = seq

	return s, nil
}

// Close flushes and closes the underlying badger store.
func (s *LedgerStore) Close() error {
	s.zstdEncoder.Close()
	s.zstdDecoder.Close()
	return s.badgerDB.Close()
}

// PutOwner persists the owner binding for a record.
func (s *LedgerStore) PutOwner(
	dataID ident.DataID,
	owner ident.Principal,
) error {
	return s.write(ownerKey(dataID), []byte(owner.String()))
}

// PutAccessors persists a record's full accessor list. The list
// is small and rewritten whole on every grant or revoke, which
// keeps the stored shape independent of the in-memory swap order.
func (s *LedgerStore) PutAccessors(
	dataID ident.DataID,
	accessors []ident.Principal,
) error {
	value, err := json.Marshal(accessors)
	if err != nil {
		return fmt.Errorf("marshal accessors: %w", err)
	}
	return s.write(aclKey(dataID), value)
}

// PutProxyKey persists one proxy key, overwriting any prior
// version (issuance and revocation both land here).
func (s *LedgerStore) PutProxyKey(key proxykey.Key) error {
	value, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("marshal proxy key: %w", err)
	}
	return s.write(proxyKeyKey(key.ProxyID), value)
}

// AppendAudit persists one audit entry under a monotonically
// increasing sequence number. Entries are zstd-compressed; the
// stream is append-only.
func (s *LedgerStore) AppendAudit(entry audit.Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	compressed := s.zstdEncoder.EncodeAll(value, nil)

	seq := atomic.AddUint64(&s.auditSeq, 1)
	return s.write(auditKey(seq), compressed)
}

// Load replays the full persisted ledger state.
func (s *LedgerStore) Load() (State, error) {
	state := State{
		Owners:    make(map[ident.DataID]ident.Principal),
		Accessors: make(map[ident.DataID][]ident.Principal),
	}

	err := s.badgerDB.View(func(txn *badger.Txn) error {
		if err := s.loadOwners(txn, &state); err != nil {
			return err
		}
		if err := s.loadAccessors(txn, &state); err != nil {
			return err
		}
		return s.loadProxyKeys(txn, &state)
	})
	if err != nil {
		return State{}, err
	}
	return state, nil
}

// LoadAudit replays the persisted audit stream in append order.
func (s *LedgerStore) LoadAudit() ([]audit.Entry, error) {
	var entries []audit.Entry

	err := s.badgerDB.View(func(txn *badger.Txn) error {
		return s.scanPrefix(txn, auditPrefix, func(_, value []byte) error {
			decompressed, err := s.zstdDecoder.DecodeAll(value, nil)
			if err != nil {
				return fmt.Errorf("decompress audit entry: %w", err)
			}
			var entry audit.Entry
			if err := json.Unmarshal(decompressed, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadCount returns the number of read operations performed.
func (s *LedgerStore) ReadCount() uint64 {
	return atomic.LoadUint64(&s.readCounter)
}

// WriteCount returns the number of write operations performed.
func (s *LedgerStore) WriteCount() uint64 {
	return atomic.LoadUint64(&s.writeCounter)
}

func (s *LedgerStore) write(key, value []byte) error {
	atomic.AddUint64(&s.writeCounter, 1)

	err := s.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		log.WithFields(logrus.Fields{
			"key": string(key),
		}).Errorf("Error writing to store: %v", err)
		return err
	}
	return nil
}

func (s *LedgerStore) loadOwners(txn *badger.Txn, state *State) error {
	return s.scanPrefix(txn, ownerPrefix, func(key, value []byte) error {
		dataID, err := ident.DataIDFromHex(string(key[len(ownerPrefix):]))
		if err != nil {
			return fmt.Errorf("decode owner key: %w", err)
		}
		owner, err := ident.PrincipalFromHex(string(value))
		if err != nil {
			return fmt.Errorf("decode owner value: %w", err)
		}
		state.Owners[dataID] = owner
		return nil
	})
}

func (s *LedgerStore) loadAccessors(txn *badger.Txn, state *State) error {
	return s.scanPrefix(txn, aclPrefix, func(key, value []byte) error {
		dataID, err := ident.DataIDFromHex(string(key[len(aclPrefix):]))
		if err != nil {
			return fmt.Errorf("decode acl key: %w", err)
		}
		var accessors []ident.Principal
		if err := json.Unmarshal(value, &accessors); err != nil {
			return fmt.Errorf("decode acl value: %w", err)
		}
		state.Accessors[dataID] = accessors
		return nil
	})
}

func (s *LedgerStore) loadProxyKeys(txn *badger.Txn, state *State) error {
	return s.scanPrefix(txn, proxyPrefix, func(_, value []byte) error {
		var key proxykey.Key
		if err := json.Unmarshal(value, &key); err != nil {
			return fmt.Errorf("decode proxy key: %w", err)
		}
		state.ProxyKeys = append(state.ProxyKeys, key)
		return nil
	})
}

func (s *LedgerStore) scanPrefix(
	txn *badger.Txn,
	prefix string,
	fn func(key, value []byte) error,
) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		atomic.AddUint64(&s.readCounter, 1)
		item := it.Item()
		key := item.KeyCopy(nil)
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

// lastAuditSeq finds the highest persisted audit sequence so
// appends continue the stream after a restart.
func (s *LedgerStore) lastAuditSeq() (uint64, error) {
	var last uint64
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		return s.scanPrefix(txn, auditPrefix, func(key, _ []byte) error {
			seq := binary.BigEndian.Uint64(key[len(auditPrefix):])
			if seq > last {
				last = seq
			}
			return nil
		})
	})
	return last, err
}

func ownerKey(dataID ident.DataID) []byte {
	return []byte(ownerPrefix + dataID.String())
}

func aclKey(dataID ident.DataID) []byte {
	return []byte(aclPrefix + dataID.String())
}

func proxyKeyKey(id ident.ProxyID) []byte {
	return []byte(proxyPrefix + string(id))
}

func auditKey(seq uint64) []byte {
	key := make([]byte, len(auditPrefix)+8)
	copy(key, auditPrefix)
	binary.BigEndian.PutUint64(key[len(auditPrefix):], seq)
	return key
}
