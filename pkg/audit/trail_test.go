package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/privacychain/accessledger/pkg/ident"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTrail(retention time.Duration) (*Trail, *fakeClock) {
	clk := &fakeClock{now: time.Now().UTC()}
	return NewTrail(discardLogger(), clk, retention), clk
}

func TestRecordAndTail(t *testing.T) {
	t.Parallel()
	trail, clk := newTestTrail(0)
	defer trail.Stop()

	d := ident.DataIDFromString("record-1")
	owner := ident.PrincipalFromString("alice")

	trail.Record(context.Background(), DataRegistered{DataID: d, Owner: owner})
	trail.Record(context.Background(), AccessGranted{
		DataID:  d,
		User:    ident.PrincipalFromString("bob"),
		Granter: owner,
	})

	got := trail.Tail(10)
	if len(got) != 2 {
		t.Fatalf("tail: got %d entries, want 2", len(got))
	}
	if got[0].Kind != KindDataRegistered || got[1].Kind != KindAccessGranted {
		t.Fatal("tail must return entries oldest first")
	}
	if !got[0].Timestamp.Equal(clk.Now()) {
		t.Fatal("entry timestamp must come from the injected clock")
	}

	if last := trail.Tail(1); len(last) != 1 || last[0].Kind != KindAccessGranted {
		t.Fatal("Tail(1) must return only the most recent entry")
	}
}

func TestSubscribeReceivesEntries(t *testing.T) {
	t.Parallel()
	trail, _ := newTestTrail(0)
	defer trail.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := trail.Subscribe(ctx)

	d := ident.DataIDFromString("record-1")
	trail.Record(context.Background(), ProxyKeyExpired{ProxyID: "p1", DataID: d})

	select {
	case entry := <-ch:
		if entry.Kind != KindProxyKeyExpired {
			t.Fatalf("got kind %s, want ProxyKeyExpired", entry.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber must receive the recorded entry")
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	t.Parallel()
	trail, _ := newTestTrail(0)
	defer trail.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	ch := trail.Subscribe(ctx)
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("channel must be closed after cancel, not delivering")
		}
	case <-time.After(time.Second):
		t.Fatal("channel must close after context cancellation")
	}
}

func TestQuerySince(t *testing.T) {
	t.Parallel()
	trail, clk := newTestTrail(0)
	defer trail.Stop()

	d := ident.DataIDFromString("record-1")
	trail.Record(context.Background(), ProxyKeyExpired{ProxyID: "p1", DataID: d})

	clk.advance(time.Hour)
	cut := clk.Now()
	trail.Record(context.Background(), ProxyKeyExpired{ProxyID: "p2", DataID: d})

	got := trail.Query(cut)
	if len(got) != 1 {
		t.Fatalf("query: got %d entries, want 1", len(got))
	}
	if got[0].Event.(ProxyKeyExpired).ProxyID != "p2" {
		t.Fatal("query must return only entries at or after the cut")
	}
}

func TestQueryByKind(t *testing.T) {
	t.Parallel()
	trail, _ := newTestTrail(0)
	defer trail.Stop()

	d := ident.DataIDFromString("record-1")
	owner := ident.PrincipalFromString("alice")
	trail.Record(context.Background(), DataRegistered{DataID: d, Owner: owner})
	trail.Record(context.Background(), ProxyKeyRevoked{ProxyID: "p1", DataID: d, Revoker: owner})
	trail.Record(context.Background(), ProxyKeyRevoked{ProxyID: "p2", DataID: d, Revoker: owner})

	if got := trail.QueryByKind(KindProxyKeyRevoked); len(got) != 2 {
		t.Fatalf("got %d ProxyKeyRevoked entries, want 2", len(got))
	}
	if got := trail.QueryByKind(KindAccessGranted); len(got) != 0 {
		t.Fatalf("got %d AccessGranted entries, want 0", len(got))
	}
}

func TestRetentionEviction(t *testing.T) {
	t.Parallel()
	trail, clk := newTestTrail(time.Hour)
	defer trail.Stop()

	d := ident.DataIDFromString("record-1")
	trail.Record(context.Background(), ProxyKeyExpired{ProxyID: "old", DataID: d})

	clk.advance(2 * time.Hour)
	trail.Record(context.Background(), ProxyKeyExpired{ProxyID: "fresh", DataID: d})

	trail.evictExpired()

	got := trail.Tail(10)
	if len(got) != 1 {
		t.Fatalf("after eviction: got %d entries, want 1", len(got))
	}
	if got[0].Event.(ProxyKeyExpired).ProxyID != "fresh" {
		t.Fatal("eviction must keep only entries inside the window")
	}
}

func TestZeroRetentionKeepsHistory(t *testing.T) {
	t.Parallel()
	trail, clk := newTestTrail(0)
	defer trail.Stop()

	d := ident.DataIDFromString("record-1")
	trail.Record(context.Background(), ProxyKeyExpired{ProxyID: "p1", DataID: d})
	clk.advance(1000 * time.Hour)
	trail.evictExpired()

	if trail.Len() != 1 {
		t.Fatal("zero retention must keep the full history")
	}
}

func TestConcurrentRecord(t *testing.T) {
	t.Parallel()
	trail, _ := newTestTrail(0)
	defer trail.Stop()

	d := ident.DataIDFromString("record-1")
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trail.Record(context.Background(), ProxyKeyExpired{ProxyID: "p", DataID: d})
		}()
	}
	wg.Wait()

	if trail.Len() != 32 {
		t.Fatalf("got %d entries, want 32", trail.Len())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	trail, _ := newTestTrail(0)
	trail.Stop()
	trail.Stop()
}
