// Package audit defines the event stream emitted by the access
// ledger. Events are the only externally observable side effect
// of a mutation: every successful mutating operation emits
// exactly one event, and a failed operation emits none. The
// Trail keeps an in-memory history, writes each event to slog,
// and pushes entries to subscribers.
package audit

import (
	"time"

	"github.com/privacychain/accessledger/pkg/ident"
)

// Kind names an event type on the wire.
type Kind string

const (
	KindDataRegistered       Kind = "DataRegistered"
	KindOwnershipTransferred Kind = "OwnershipTransferred"
	KindAccessGranted        Kind = "AccessGranted"
	KindAccessRevoked        Kind = "AccessRevoked"
	KindAccessLogged         Kind = "AccessLogged"
	KindProxyKeyGenerated    Kind = "ProxyKeyGenerated"
	KindProxyKeyRevoked      Kind = "ProxyKeyRevoked"
	KindProxyKeyExpired      Kind = "ProxyKeyExpired"
	KindProxyAccessLogged    Kind = "ProxyAccessLogged"
)

// Event is one audit record. Field order within each concrete
// type is fixed for consumer compatibility.
type Event interface {
	Kind() Kind
}

// DataRegistered records a new record binding to its owner.
type DataRegistered struct {
	DataID ident.DataID    `json:"dataId"`
	Owner  ident.Principal `json:"owner"`
}

func (DataRegistered) Kind() Kind { return KindDataRegistered }

// OwnershipTransferred records a record changing hands. It is
// emitted after the ProxyKeyRevoked events of the transfer
// cascade.
type OwnershipTransferred struct {
	DataID        ident.DataID    `json:"dataId"`
	PreviousOwner ident.Principal `json:"previousOwner"`
	NewOwner      ident.Principal `json:"newOwner"`
}

func (OwnershipTransferred) Kind() Kind { return KindOwnershipTransferred }

// AccessGranted records a direct access grant.
type AccessGranted struct {
	DataID  ident.DataID    `json:"dataId"`
	User    ident.Principal `json:"user"`
	Granter ident.Principal `json:"granter"`
}

func (AccessGranted) Kind() Kind { return KindAccessGranted }

// AccessRevoked records a direct access revocation.
type AccessRevoked struct {
	DataID  ident.DataID    `json:"dataId"`
	User    ident.Principal `json:"user"`
	Revoker ident.Principal `json:"revoker"`
}

func (AccessRevoked) Kind() Kind { return KindAccessRevoked }

// AccessLogged records a direct access by an authorized user.
type AccessLogged struct {
	DataID    ident.DataID    `json:"dataId"`
	User      ident.Principal `json:"user"`
	Timestamp time.Time       `json:"timestamp"`
}

func (AccessLogged) Kind() Kind { return KindAccessLogged }

// ProxyKeyGenerated records issuance of a delegation token.
type ProxyKeyGenerated struct {
	ProxyID   ident.ProxyID   `json:"proxyId"`
	DataID    ident.DataID    `json:"dataId"`
	Recipient ident.Principal `json:"recipient"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func (ProxyKeyGenerated) Kind() Kind { return KindProxyKeyGenerated }

// ProxyKeyRevoked records manual or cascade revocation of a
// delegation token.
type ProxyKeyRevoked struct {
	ProxyID ident.ProxyID   `json:"proxyId"`
	DataID  ident.DataID    `json:"dataId"`
	Revoker ident.Principal `json:"revoker"`
}

func (ProxyKeyRevoked) Kind() Kind { return KindProxyKeyRevoked }

// ProxyKeyExpired notifies that a token passed its expiry without
// being revoked. Emission changes no token state.
type ProxyKeyExpired struct {
	ProxyID ident.ProxyID `json:"proxyId"`
	DataID  ident.DataID  `json:"dataId"`
}

func (ProxyKeyExpired) Kind() Kind { return KindProxyKeyExpired }

// ProxyAccessLogged records a recipient exercising a valid token.
type ProxyAccessLogged struct {
	ProxyID   ident.ProxyID   `json:"proxyId"`
	DataID    ident.DataID    `json:"dataId"`
	Recipient ident.Principal `json:"recipient"`
	Timestamp time.Time       `json:"timestamp"`
}

func (ProxyAccessLogged) Kind() Kind { return KindProxyAccessLogged }
