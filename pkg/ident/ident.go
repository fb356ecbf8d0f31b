// Package ident provides the identity value types of the access
// ledger: principals (actors that own, grant, or receive access),
// data record identifiers, and proxy key identifiers.
package ident

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Principal is a fixed-size SHA-256 digest identifying an actor.
// It carries no internal structure beyond equality; the digest is
// typically computed over external identity material such as a
// public key. The zero value means "no principal".
type Principal [sha256.Size]byte

// PrincipalFromBytes computes the SHA-256 digest of the given
// identity material and returns it as a Principal.
func PrincipalFromBytes(material []byte) Principal {
	return Principal(sha256.Sum256(material))
}

// PrincipalFromString computes a Principal over the given string.
func PrincipalFromString(s string) Principal {
	return PrincipalFromBytes([]byte(s))
}

// PrincipalFromHex parses a 64-character hex string into a
// Principal. Returns an error on malformed input.
func PrincipalFromHex(s string) (Principal, error) {
	var p Principal
	if err := decodeHex(s, p[:]); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Equal reports whether two principals are the same identity.
func (p Principal) Equal(other Principal) bool {
	return subtle.ConstantTimeCompare(p[:], other[:]) == 1
}

// IsZero reports whether the principal is the "no principal"
// sentinel.
func (p Principal) IsZero() bool {
	return p == Principal{}
}

// String returns the hexadecimal representation.
func (p Principal) String() string {
	return hex.EncodeToString(p[:])
}

// Bytes returns a byte slice copy of the principal.
func (p Principal) Bytes() []byte {
	b := make([]byte, len(p))
	copy(b, p[:])
	return b
}

// MarshalText encodes the principal as lowercase hex, so JSON
// and map keys render as strings rather than byte arrays.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a 64-character hex string.
func (p *Principal) UnmarshalText(text []byte) error {
	return decodeHex(string(text), p[:])
}

// DataID is a fixed-size content-hash identifier for a data
// record. The zero value is never a valid record identifier.
type DataID [sha256.Size]byte

// DataIDFromBytes computes the SHA-256 digest of the given
// content and returns it as a DataID.
func DataIDFromBytes(content []byte) DataID {
	return DataID(sha256.Sum256(content))
}

// DataIDFromString computes a DataID over the given string.
func DataIDFromString(s string) DataID {
	return DataIDFromBytes([]byte(s))
}

// DataIDFromHex parses a 64-character hex string into a DataID.
func DataIDFromHex(s string) (DataID, error) {
	var d DataID
	if err := decodeHex(s, d[:]); err != nil {
		return DataID{}, err
	}
	return d, nil
}

// IsZero reports whether the identifier is the zero value.
func (d DataID) IsZero() bool {
	return d == DataID{}
}

// String returns the hexadecimal representation.
func (d DataID) String() string {
	return hex.EncodeToString(d[:])
}

// Bytes returns a byte slice copy of the identifier.
func (d DataID) Bytes() []byte {
	b := make([]byte, len(d))
	copy(b, d[:])
	return b
}

// MarshalText encodes the identifier as lowercase hex.
func (d DataID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a 64-character hex string.
func (d *DataID) UnmarshalText(text []byte) error {
	return decodeHex(string(text), d[:])
}

// ProxyID is the caller-supplied identifier of a proxy key. The
// namespace is flat: a ProxyID is unique across all records.
type ProxyID string

// IsZero reports whether the identifier is empty.
func (id ProxyID) IsZero() bool {
	return id == ""
}

func decodeHex(s string, dst []byte) error {
	if len(s) != len(dst)*2 {
		return fmt.Errorf(
			"invalid hex length: expected %d, got %d",
			len(dst)*2, len(s),
		)
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	copy(dst, decoded)
	return nil
}
