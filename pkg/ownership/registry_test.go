package ownership

import (
	"errors"
	"testing"

	"github.com/privacychain/accessledger/pkg/ident"
)

func TestRegisterThenOwnerOf(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	d := ident.DataIDFromString("record-1")
	alice := ident.PrincipalFromString("alice")

	if err := r.Register(d, alice); err != nil {
		t.Fatalf("register: %v", err)
	}
	owner, ok := r.OwnerOf(d)
	if !ok {
		t.Fatal("registered record must have an owner")
	}
	if !owner.Equal(alice) {
		t.Fatal("owner must be the registering principal")
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	d := ident.DataIDFromString("record-1")
	alice := ident.PrincipalFromString("alice")
	bob := ident.PrincipalFromString("bob")

	if err := r.Register(d, alice); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(d, bob)
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("second register: got %v, want ErrAlreadyRegistered", err)
	}
	owner, _ := r.OwnerOf(d)
	if !owner.Equal(alice) {
		t.Fatal("failed register must not change the owner")
	}
}

func TestRegisterRejectsZeroOwner(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	d := ident.DataIDFromString("record-1")

	err := r.Register(d, ident.Principal{})
	if !errors.Is(err, ErrInvalidPrincipal) {
		t.Fatalf("got %v, want ErrInvalidPrincipal", err)
	}
}

func TestOwnerOfUnregistered(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if _, ok := r.OwnerOf(ident.DataIDFromString("nope")); ok {
		t.Fatal("unregistered record must have no owner")
	}
	if r.IsOwner(ident.DataIDFromString("nope"), ident.PrincipalFromString("alice")) {
		t.Fatal("no caller owns an unregistered record")
	}
}

func TestRebindReplacesOwner(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	d := ident.DataIDFromString("record-1")
	alice := ident.PrincipalFromString("alice")
	bob := ident.PrincipalFromString("bob")

	if err := r.Register(d, alice); err != nil {
		t.Fatalf("register: %v", err)
	}
	previous, err := r.Rebind(d, bob)
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if !previous.Equal(alice) {
		t.Fatal("rebind must report the previous owner")
	}
	if !r.IsOwner(d, bob) {
		t.Fatal("rebind must install the new owner")
	}
	if r.IsOwner(d, alice) {
		t.Fatal("previous owner must lose ownership")
	}
}

func TestRebindUnregisteredFails(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	_, err := r.Rebind(
		ident.DataIDFromString("nope"),
		ident.PrincipalFromString("bob"),
	)
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("got %v, want ErrNotRegistered", err)
	}
}

func TestRebindRejectsZeroOwner(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	d := ident.DataIDFromString("record-1")
	if err := r.Register(d, ident.PrincipalFromString("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := r.Rebind(d, ident.Principal{})
	if !errors.Is(err, ErrInvalidPrincipal) {
		t.Fatalf("got %v, want ErrInvalidPrincipal", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	d := ident.DataIDFromString("record-1")
	alice := ident.PrincipalFromString("alice")
	if err := r.Register(d, alice); err != nil {
		t.Fatalf("register: %v", err)
	}

	snap := r.Snapshot()
	snap[d] = ident.PrincipalFromString("mallory")

	owner, _ := r.OwnerOf(d)
	if !owner.Equal(alice) {
		t.Fatal("mutating a snapshot must not affect the registry")
	}
}
