// Package resilience provides retry and circuit breaking for outbound
// retrieval paths.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState is the current disposition of a breaker.
type BreakerState int

const (
	// BreakerClosed lets requests through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects requests until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets a probe request through after the cooldown.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned when a call is rejected without being attempted.
var ErrBreakerOpen = eris.New("resilience: breaker open")

// Breaker trips after a run of consecutive failures and probes again once the
// cooldown elapses. A successful probe closes it; a failed probe reopens it.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time

	now func() time.Time
}

// NewBreaker creates a Breaker tripping after threshold consecutive failures
// and cooling down for the given duration.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a request may proceed, transitioning an open breaker
// to half-open when the cooldown has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.lastFailure) < b.cooldown {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
	}
	return nil
}

// Record folds the outcome of an allowed request into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
	}
}

// State returns the current state, accounting for an elapsed cooldown.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// HostBreakers keys breakers by target host so one failing registry never
// blocks fetches to the rest.
type HostBreakers struct {
	mu        sync.RWMutex
	byHost    map[string]*Breaker
	threshold int
	cooldown  time.Duration
}

// NewHostBreakers creates an empty per-host breaker set.
func NewHostBreakers(threshold int, cooldown time.Duration) *HostBreakers {
	return &HostBreakers{
		byHost:    make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// For returns the breaker for a host, creating it on first sight.
func (h *HostBreakers) For(host string) *Breaker {
	h.mu.RLock()
	b, ok := h.byHost[host]
	h.mu.RUnlock()
	if ok {
		return b
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok = h.byHost[host]; ok {
		return b
	}
	b = NewBreaker(h.threshold, h.cooldown)
	h.byHost[host] = b
	return b
}

// States snapshots every known host's breaker state.
func (h *HostBreakers) States() map[string]BreakerState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]BreakerState, len(h.byHost))
	for host, b := range h.byHost {
		out[host] = b.State()
	}
	return out
}
