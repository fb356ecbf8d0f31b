package proxykey

import (
	"time"

	"github.com/privacychain/accessledger/pkg/ident"
)

// Key is a time-bounded, revocable delegation token. It
// references re-encryption key material produced by an external
// cryptographic step; the ledger only tracks the token's
// lifecycle, never the material itself.
type Key struct {
	ProxyID ident.ProxyID `json:"proxyId"`
	DataID  ident.DataID  `json:"dataId"`
	// DataOwner is the record owner at issuance time. Revocation
	// authorizes against this snapshot, not the current owner.
	DataOwner ident.Principal `json:"dataOwner"`
	Recipient ident.Principal `json:"recipient"`
	// KeyHash is the opaque digest of the delegated key material.
	KeyHash   string    `json:"keyHash"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	// Revoked records manual revocation only. Expiry does not set
	// it, so a stale key stays distinguishable from a revoked one.
	Revoked   bool      `json:"revoked"`
	RevokedAt time.Time `json:"revokedAt,omitzero"`
}

// ValidAt reports whether the key is usable at the given time:
// not revoked and not past expiry. Existence is implied for a Key
// value obtained from the store.
func (k Key) ValidAt(now time.Time) bool {
	return !k.Revoked && !now.After(k.ExpiresAt)
}

// ExpiredAt reports whether the key has passed its expiry at the
// given time, regardless of revocation state.
func (k Key) ExpiredAt(now time.Time) bool {
	return now.After(k.ExpiresAt)
}
