package ident

import (
	"strings"
	"testing"
)

func TestPrincipalFromBytesDeterministic(t *testing.T) {
	t.Parallel()
	a := PrincipalFromBytes([]byte("alice-pubkey"))
	b := PrincipalFromBytes([]byte("alice-pubkey"))
	c := PrincipalFromBytes([]byte("bob-pubkey"))

	if !a.Equal(b) {
		t.Fatal("same material must produce equal principals")
	}
	if a.Equal(c) {
		t.Fatal("different material must produce different principals")
	}
}

func TestPrincipalZeroSentinel(t *testing.T) {
	t.Parallel()
	var p Principal
	if !p.IsZero() {
		t.Fatal("zero value should be the no-principal sentinel")
	}
	if PrincipalFromString("alice").IsZero() {
		t.Fatal("derived principal should not be zero")
	}
}

func TestPrincipalHexRoundTrip(t *testing.T) {
	t.Parallel()
	p := PrincipalFromString("alice")
	parsed, err := PrincipalFromHex(p.String())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if !parsed.Equal(p) {
		t.Fatal("hex round trip must preserve identity")
	}
}

func TestPrincipalFromHexRejectsMalformed(t *testing.T) {
	t.Parallel()
	if _, err := PrincipalFromHex("abc"); err == nil {
		t.Fatal("short hex must be rejected")
	}
	if _, err := PrincipalFromHex(strings.Repeat("zz", 32)); err == nil {
		t.Fatal("non-hex characters must be rejected")
	}
}

func TestDataIDHexRoundTrip(t *testing.T) {
	t.Parallel()
	d := DataIDFromString("medical-record-7")
	parsed, err := DataIDFromHex(d.String())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if parsed != d {
		t.Fatal("hex round trip must preserve identifier")
	}
}

func TestBytesReturnsCopy(t *testing.T) {
	t.Parallel()
	p := PrincipalFromString("alice")
	b := p.Bytes()
	b[0] ^= 0xff
	if p.Bytes()[0] == b[0] {
		t.Fatal("Bytes must return a defensive copy")
	}
}
