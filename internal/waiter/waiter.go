// Package waiter implements revision-counter-based wait primitives over
// an internal/screen.Screen: wait for text to appear, a pattern to
// match, the screen to go idle, or text to disappear (waiting for the
// child to exit is handled by internal/session). No update is ever lost:
// a waiter that subscribes after revision
// N either observes a revision beyond N immediately, or is guaranteed to
// be woken on every subsequent bump until it unsubscribes.
package waiter

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/termwright/termwright/internal/screen"
)

// ErrSessionClosed is returned by any in-flight wait when the session
// that owns the screen closes while the wait is outstanding.
var ErrSessionClosed = errors.New("session closed")

// ErrTimeout is returned when a wait's deadline elapses before its
// predicate is satisfied.
var ErrTimeout = errors.New("wait timed out")

// Broadcaster publishes "the screen changed" notifications to any number
// of subscribers. A notification carries no revision: each subscriber
// has a one-slot channel, so bumps published before it receives collapse
// into one pending wake, after which it re-reads the screen's revision.
type Broadcaster struct {
	mu      sync.Mutex
	closed  bool
	waiters map[chan struct{}]struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{waiters: make(map[chan struct{}]struct{})}
}

// Publish wakes every current subscriber. Call this once per Screen
// mutation (or batch of mutations) from the single I/O Pump goroutine.
func (b *Broadcaster) Publish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close wakes every subscriber and marks the broadcaster closed; further
// subscribes return an already-closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.waiters {
		close(ch)
	}
	b.waiters = make(map[chan struct{}]struct{})
}

func (b *Broadcaster) subscribe() (ch chan struct{}, closed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		c := make(chan struct{})
		close(c)
		return c, true
	}
	ch = make(chan struct{}, 1)
	b.waiters[ch] = struct{}{}
	return ch, false
}

func (b *Broadcaster) unsubscribe(ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.waiters, ch)
}

// Predicate evaluates a snapshot and reports whether the wait is
// satisfied, returning any matched text and its position for waits that
// report a match location.
type Predicate func(screen.Snapshot) (matched string, pos screen.Position, ok bool)

// Result is what a satisfied wait returns.
type Result struct {
	Matched  string
	Position screen.Position
	Snapshot screen.Snapshot
}

// Wait blocks until pred is satisfied against scr, the broadcaster is
// closed, the context is cancelled, or its deadline elapses — whichever
// comes first. pred is re-evaluated on every wake (including
// spurious ones), so it must be cheap and idempotent.
func Wait(ctx context.Context, scr *screen.Screen, b *Broadcaster, pred Predicate) (Result, error) {
	ch, closed := b.subscribe()
	if closed {
		return Result{}, ErrSessionClosed
	}
	defer b.unsubscribe(ch)

	// Check the predicate only after subscribing: a bump that landed
	// before subscribe() is still caught here, and any bump afterward is
	// caught by the select loop below, so no Publish between the two can
	// be missed.
	if snap := scr.Snapshot(); true {
		if matched, pos, ok := pred(snap); ok {
			return Result{Matched: matched, Position: pos, Snapshot: snap}, nil
		}
	}

	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return Result{}, ErrSessionClosed
			}
			snap := scr.Snapshot()
			if matched, pos, ok := pred(snap); ok {
				return Result{Matched: matched, Position: pos, Snapshot: snap}, nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Result{}, ErrTimeout
			}
			return Result{}, ctx.Err()
		}
	}
}

// WithTimeout builds a context with the given timeout in milliseconds,
// defaulting to defaultMs when ms <= 0.
func WithTimeout(parent context.Context, ms, defaultMs int) (context.Context, context.CancelFunc) {
	if ms <= 0 {
		ms = defaultMs
	}
	return context.WithTimeout(parent, time.Duration(ms)*time.Millisecond)
}

// TextPredicate matches when needle appears anywhere on screen.
func TextPredicate(needle string) Predicate {
	return func(snap screen.Snapshot) (string, screen.Position, bool) {
		pos, ok := screen.FindTextIn(snap.Text(), needle)
		if !ok {
			return "", screen.Position{}, false
		}
		return needle, pos, true
	}
}

// TextGonePredicate matches when needle is no longer present on screen.
func TextGonePredicate(needle string) Predicate {
	return func(snap screen.Snapshot) (string, screen.Position, bool) {
		if _, ok := screen.FindTextIn(snap.Text(), needle); ok {
			return "", screen.Position{}, false
		}
		return "", screen.Position{}, true
	}
}

// PatternPredicate matches when re finds a match anywhere on screen.
func PatternPredicate(re *regexp.Regexp) Predicate {
	return func(snap screen.Snapshot) (string, screen.Position, bool) {
		return screen.FindPatternIn(snap.Text(), re)
	}
}

// IdlePredicate matches once the screen's revision hasn't changed for at
// least d, as judged by comparing the revision observed at the start of
// the wait against the revision at each subsequent wake after d has
// elapsed with no further bump. The caller drives this by re-arming a
// timer each time a new revision is observed; IdleWait below implements
// that loop directly since it needs timer semantics Predicate can't
// express on its own.
func IdlePredicate(lastRevision *uint64) Predicate {
	return func(snap screen.Snapshot) (string, screen.Position, bool) {
		if snap.Revision == *lastRevision {
			return "", screen.Position{}, true
		}
		*lastRevision = snap.Revision
		return "", screen.Position{}, false
	}
}

// IdleWait blocks until the screen has not changed for at least d, the
// context is cancelled, or deadline elapses.
func IdleWait(ctx context.Context, scr *screen.Screen, b *Broadcaster, d time.Duration) (Result, error) {
	snap := scr.Snapshot()
	lastRev := snap.Revision
	timer := time.NewTimer(d)
	defer timer.Stop()

	ch, closed := b.subscribe()
	if closed {
		return Result{}, ErrSessionClosed
	}
	defer b.unsubscribe(ch)

	for {
		select {
		case <-timer.C:
			snap := scr.Snapshot()
			if snap.Revision == lastRev {
				return Result{Snapshot: snap}, nil
			}
			lastRev = snap.Revision
			timer.Reset(d)
		case _, ok := <-ch:
			if !ok {
				return Result{}, ErrSessionClosed
			}
			snap := scr.Snapshot()
			if snap.Revision != lastRev {
				lastRev = snap.Revision
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(d)
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Result{}, ErrTimeout
			}
			return Result{}, ctx.Err()
		}
	}
}
