package accessledger

import (
	"errors"

	"github.com/privacychain/accessledger/pkg/acl"
	"github.com/privacychain/accessledger/pkg/ownership"
	"github.com/privacychain/accessledger/pkg/proxykey"
)

var (
	// ErrNotStarted is returned for operations before Start.
	ErrNotStarted = errors.New("accessledger: engine not started")
	// ErrClosed is returned for operations after Close.
	ErrClosed = errors.New("accessledger: engine closed")
	// ErrUnauthorized is returned when the caller lacks the
	// ownership a mutation requires.
	ErrUnauthorized = errors.New("accessledger: caller is not authorized")
	// ErrInvalidPrincipal is returned for a zero principal or a
	// self-referential delegation target.
	ErrInvalidPrincipal = errors.New("accessledger: invalid principal")
	// ErrProxyKeyExpired is returned when exercising a proxy key
	// past its expiry.
	ErrProxyKeyExpired = errors.New("accessledger: proxy key expired")
)

// Component errors surface unchanged so callers match one
// taxonomy with errors.Is regardless of which layer detected the
// condition.
var (
	ErrAlreadyRegistered = ownership.ErrAlreadyRegistered
	ErrAlreadyHasAccess  = acl.ErrAlreadyHasAccess
	ErrAccessNotFound    = acl.ErrNotFound
	ErrProxyKeyExists    = proxykey.ErrExists
	ErrProxyKeyNotFound  = proxykey.ErrNotFound
	ErrAlreadyRevoked    = proxykey.ErrAlreadyRevoked
	ErrInvalidExpiration = proxykey.ErrInvalidExpiration
	ErrInvalidProxyID    = proxykey.ErrInvalidProxyID
)
