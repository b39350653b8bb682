// Package resilience guards the data providers with circuit breakers, so a
// provider that is down fails fast instead of timing out once per stock.
package resilience

import (
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "tw-screener/internal/errors"
)

// State is the state of a circuit breaker.
type State string

const (
	StateClosed   State = "closed"    // requests pass
	StateOpen     State = "open"      // requests are rejected
	StateHalfOpen State = "half-open" // one probe request passes
)

// ErrCircuitOpen is returned while a breaker rejects requests. It wraps
// ErrSourceUnavailable so callers treat it like any provider outage.
var ErrCircuitOpen = fmt.Errorf("circuit open: %w", apperrors.ErrSourceUnavailable)

// BreakerConfig holds the trip and recovery settings.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a probe is let through.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the settings used for the exchange sites.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	name   string
	config BreakerConfig
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	rejected int64
	trips    int64
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	return &Breaker{name: name, config: config, now: time.Now, state: StateClosed}
}

// Allow reports whether a request may proceed. A caller that is allowed must
// report the outcome with Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.rejected++
			return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			b.rejected++
			return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		b.probing = true
	}
	return nil
}

// Record reports the outcome of an allowed request.
func (b *Breaker) Record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !failed {
		b.state = StateClosed
		b.failures = 0
		b.probing = false
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.open()
		}
	}
}

// Release returns the permission of an allowed request that was never sent.
// It frees the half-open probe slot and leaves the state unchanged.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probing = false
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.probing = false
	b.trips++
}

// State returns the current state. An open breaker whose cooldown elapsed
// still reports open until the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a snapshot of one breaker.
type Stats struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Failures int    `json:"failures"`
	Rejected int64  `json:"rejected"`
	Trips    int64  `json:"trips"`
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Name: b.name, State: b.state, Failures: b.failures, Rejected: b.rejected, Trips: b.trips}
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// Registry holds one breaker per provider.
type Registry struct {
	mu       sync.Mutex
	config   BreakerConfig
	breakers map[string]*Breaker
	now      func() time.Time
}

// NewRegistry creates a registry whose breakers share config.
func NewRegistry(config BreakerConfig) *Registry {
	return &Registry{config: config, breakers: make(map[string]*Breaker), now: time.Now}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.config)
	b.now = r.now
	r.breakers[name] = b
	return b
}

// AllStats returns the stats of every breaker sorted by name.
func (r *Registry) AllStats() []Stats {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResetAll closes every breaker.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
