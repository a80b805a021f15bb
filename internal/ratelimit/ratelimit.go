// Package ratelimit implements the sliding-window admission counter
// that protects recipients from high-volume senders. State is
// per-process and ephemeral; a restart simply resets the windows.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"notification-engine/internal/domain"
)

const (
	DefaultCapacity = 5
	DefaultWindow   = 60 * time.Second
	DefaultSweep    = 2 * time.Minute
)

// Limiter admits at most capacity events per rolling window for each
// (sender, recipient, type) key. Construct one per engine instance and
// inject it; tests build isolated limiters with their own clock.
type Limiter struct {
	capacity int
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string][]time.Time
	done    chan struct{}
	once    sync.Once
}

// Option mutates a Limiter during construction.
type Option func(*Limiter)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithPolicy overrides capacity and window length.
func WithPolicy(capacity int, window time.Duration) Option {
	return func(l *Limiter) {
		l.capacity = capacity
		l.window = window
	}
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		capacity: DefaultCapacity,
		window:   DefaultWindow,
		now:      time.Now,
		entries:  make(map[string][]time.Time),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func key(senderID, recipientID string, typ domain.NotificationType) string {
	return fmt.Sprintf("%s|%s|%s", senderID, recipientID, typ)
}

// Admit decides whether one more event may pass for the key right now.
// Admission appends a timestamp; rejection leaves the window untouched
// so a burst cannot extend its own penalty.
func (l *Limiter) Admit(senderID, recipientID string, typ domain.NotificationType) bool {
	k := key(senderID, recipientID, typ)
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := prune(l.entries[k], cutoff)
	if len(recent) >= l.capacity {
		l.entries[k] = recent
		return false
	}
	l.entries[k] = append(recent, now)
	return true
}

// prune drops timestamps at or before cutoff, preserving order.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// StartSweeper launches the periodic cleanup that removes idle keys to
// bound memory. Call Stop to end it.
func (l *Limiter) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweep
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.done:
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// Sweep removes every key with no activity inside the current window.
func (l *Limiter) Sweep() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, ts := range l.entries {
		if recent := prune(ts, cutoff); len(recent) == 0 {
			delete(l.entries, k)
		} else {
			l.entries[k] = recent
		}
	}
}

// Stop ends the background sweeper. Safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.done) })
}

// Len reports the number of live keys. Used by the sweeper tests.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
