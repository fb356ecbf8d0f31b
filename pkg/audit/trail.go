package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/privacychain/accessledger/pkg/ident"
)

const (
	cleanupInterval = 1 * time.Hour
	// subscriberBuffer sizes each subscriber channel. A slow
	// subscriber loses entries rather than blocking a mutation.
	subscriberBuffer = 256
)

// Sink receives audit events. The engine writes to an injected
// Sink; Trail is the default implementation.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// Entry is one recorded event with its trail timestamp.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Event     Event     `json:"event"`
}

// Trail stores audit entries in memory with TTL-based retention,
// outputs them to slog, and pushes them to subscriber channels.
// New starts a background cleanup goroutine; call Stop when
// shutting down.
type Trail struct {
	logger    *slog.Logger
	clock     ident.Clock
	retention time.Duration

	mu          sync.RWMutex
	entries     []Entry
	subscribers map[chan Entry]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTrail creates a Trail with the given retention and starts
// the background cleanup goroutine. A zero retention keeps the
// full history.
func NewTrail(
	logger *slog.Logger,
	clock ident.Clock,
	retention time.Duration,
) *Trail {
	t := &Trail{
		logger:      logger,
		clock:       clock,
		retention:   retention,
		entries:     make([]Entry, 0),
		subscribers: make(map[chan Entry]struct{}),
		stopCh:      make(chan struct{}),
	}
	t.wg.Add(1)
	go t.cleanupLoop()
	return t
}

// Stop terminates the cleanup goroutine, closes all subscriber
// channels, and waits for background work to finish.
func (t *Trail) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
	t.wg.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, ch)
	}
}

// Record appends the event to the trail, writes it to slog, and
// pushes it to every subscriber. It never blocks on a slow
// subscriber.
func (t *Trail) Record(ctx context.Context, event Event) {
	entry := Entry{
		Timestamp: t.clock.Now(),
		Kind:      event.Kind(),
		Event:     event,
	}

	t.logger.LogAttrs(ctx, slog.LevelInfo, "audit event",
		slog.String("kind", string(entry.Kind)),
		slog.Time("timestamp", entry.Timestamp),
		slog.Any("event", event),
	)

	// Sends stay under the lock so a concurrent Stop cannot close
	// a channel mid-send. They are non-blocking, so the hold time
	// is bounded.
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, entry)
	for ch := range t.subscribers {
		select {
		case ch <- entry:
		default:
			t.logger.Warn("audit subscriber lagging, entry dropped",
				"kind", string(entry.Kind))
		}
	}
}

// Subscribe registers a channel receiving every entry recorded
// after the call. The channel is closed when ctx is done or the
// trail stops.
func (t *Trail) Subscribe(ctx context.Context) <-chan Entry {
	ch := make(chan Entry, subscriberBuffer)

	t.mu.Lock()
	t.subscribers[ch] = struct{}{}
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		select {
		case <-ctx.Done():
			t.mu.Lock()
			if _, ok := t.subscribers[ch]; ok {
				delete(t.subscribers, ch)
				close(ch)
			}
			t.mu.Unlock()
		case <-t.stopCh:
			// Stop closes the channel after wg.Wait; nothing to
			// do here beyond exiting.
		}
	}()

	return ch
}

// Tail returns the n most recent entries, oldest first.
func (t *Trail) Tail(n int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || len(t.entries) == 0 {
		return nil
	}
	if n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]Entry, n)
	copy(out, t.entries[len(t.entries)-n:])
	return out
}

// Query returns all retained entries recorded at or after since.
func (t *Trail) Query(since time.Time) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Entry
	for _, e := range t.entries {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

// QueryByKind returns all retained entries of the given kind.
func (t *Trail) QueryByKind(kind Kind) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Entry
	for _, e := range t.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained entries.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Trail) cleanupLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.evictExpired()
		}
	}
}

// evictExpired drops entries older than the retention window.
func (t *Trail) evictExpired() {
	if t.retention <= 0 {
		return
	}
	cutoff := t.clock.Now().Add(-t.retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	keep := t.entries[:0]
	for _, e := range t.entries {
		if !e.Timestamp.Before(cutoff) {
			keep = append(keep, e)
		}
	}
	t.entries = keep
}
