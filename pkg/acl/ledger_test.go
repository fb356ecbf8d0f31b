package acl

import (
	"errors"
	"testing"

	"github.com/privacychain/accessledger/pkg/ident"
)

func TestGrantThenHasAccess(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	d := ident.DataIDFromString("record-1")
	u := ident.PrincipalFromString("user-1")

	if err := l.Grant(d, u); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !l.HasAccess(d, u) {
		t.Fatal("granted principal must have access")
	}
	if l.AccessorCount(d) != 1 {
		t.Fatalf("accessor count: got %d, want 1", l.AccessorCount(d))
	}
}

func TestGrantNotIdempotent(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	d := ident.DataIDFromString("record-1")
	u := ident.PrincipalFromString("user-1")

	if err := l.Grant(d, u); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if err := l.Grant(d, u); !errors.Is(err, ErrAlreadyHasAccess) {
		t.Fatalf("second grant: got %v, want ErrAlreadyHasAccess", err)
	}
}

func TestGrantRejectsZeroPrincipal(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	err := l.Grant(ident.DataIDFromString("record-1"), ident.Principal{})
	if !errors.Is(err, ErrInvalidPrincipal) {
		t.Fatalf("got %v, want ErrInvalidPrincipal", err)
	}
}

func TestRevokeThenHasAccessFalse(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	d := ident.DataIDFromString("record-1")
	u := ident.PrincipalFromString("user-1")

	if err := l.Grant(d, u); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := l.Revoke(d, u); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if l.HasAccess(d, u) {
		t.Fatal("revoked principal must not have access")
	}
	if err := l.Revoke(d, u); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second revoke: got %v, want ErrNotFound", err)
	}
}

func TestRevokeUnknownRecord(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	err := l.Revoke(
		ident.DataIDFromString("nope"),
		ident.PrincipalFromString("user-1"),
	)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSwapRemoveKeepsRemainderConsistent(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	d := ident.DataIDFromString("record-1")
	a := ident.PrincipalFromString("a")
	b := ident.PrincipalFromString("b")
	c := ident.PrincipalFromString("c")

	for _, u := range []ident.Principal{a, b, c} {
		if err := l.Grant(d, u); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}

	// Revoking the head forces the swap path: c moves into a's
	// slot and must remain addressable for a later revoke.
	if err := l.Revoke(d, a); err != nil {
		t.Fatalf("revoke a: %v", err)
	}

	if l.HasAccess(d, a) {
		t.Fatal("a must be gone")
	}
	if !l.HasAccess(d, b) || !l.HasAccess(d, c) {
		t.Fatal("b and c must keep access")
	}

	got := l.Accessors(d)
	if len(got) != 2 {
		t.Fatalf("accessors: got %d entries, want 2", len(got))
	}
	seen := map[ident.Principal]bool{}
	for _, u := range got {
		seen[u] = true
	}
	if !seen[b] || !seen[c] {
		t.Fatal("accessor list must be a permutation of {b, c}")
	}

	// The swapped element's index entry must have been updated.
	if err := l.Revoke(d, c); err != nil {
		t.Fatalf("revoke moved element: %v", err)
	}
	if l.HasAccess(d, c) {
		t.Fatal("c must be gone after second revoke")
	}
	if !l.HasAccess(d, b) {
		t.Fatal("b must still have access")
	}
}

func TestRevokeLastElement(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	d := ident.DataIDFromString("record-1")
	a := ident.PrincipalFromString("a")
	b := ident.PrincipalFromString("b")

	if err := l.Grant(d, a); err != nil {
		t.Fatalf("grant a: %v", err)
	}
	if err := l.Grant(d, b); err != nil {
		t.Fatalf("grant b: %v", err)
	}
	// b sits at the tail; no swap happens.
	if err := l.Revoke(d, b); err != nil {
		t.Fatalf("revoke b: %v", err)
	}
	if !l.HasAccess(d, a) || l.HasAccess(d, b) {
		t.Fatal("only a must remain")
	}
}

func TestRegrantAfterRevoke(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	d := ident.DataIDFromString("record-1")
	u := ident.PrincipalFromString("user-1")

	if err := l.Grant(d, u); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := l.Revoke(d, u); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := l.Grant(d, u); err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	if !l.HasAccess(d, u) {
		t.Fatal("re-granted principal must have access")
	}
}

func TestAccessorsReturnsCopy(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	d := ident.DataIDFromString("record-1")
	a := ident.PrincipalFromString("a")
	if err := l.Grant(d, a); err != nil {
		t.Fatalf("grant: %v", err)
	}

	got := l.Accessors(d)
	got[0] = ident.PrincipalFromString("mallory")
	if !l.HasAccess(d, a) || l.AccessorCount(d) != 1 {
		t.Fatal("mutating the returned slice must not affect the ledger")
	}
	if l.Accessors(d)[0] != a {
		t.Fatal("ledger contents must be unchanged")
	}
}

func TestLedgersAreIndependentPerRecord(t *testing.T) {
	t.Parallel()
	l := NewLedger()
	d1 := ident.DataIDFromString("record-1")
	d2 := ident.DataIDFromString("record-2")
	u := ident.PrincipalFromString("user-1")

	if err := l.Grant(d1, u); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if l.HasAccess(d2, u) {
		t.Fatal("grant must be scoped to its record")
	}
}
