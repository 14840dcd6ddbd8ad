// Package session maps authenticated users to their report pipelines. One
// coordinator exists per user, created on first touch and evicted after an
// idle TTL; nothing is persisted.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/patrolpoint/patrolpoint/internal/report"
)

const (
	// DefaultTTL is how long an untouched session survives.
	DefaultTTL = 30 * time.Minute

	// DefaultSweepInterval is how often expired sessions are evicted.
	DefaultSweepInterval = time.Minute
)

// Factory builds a fresh pipeline coordinator for a user.
type Factory func(userID string) *report.Coordinator

// RegistryConfig holds configuration for the session registry.
type RegistryConfig struct {
	// Factory creates coordinators on first touch (required).
	Factory Factory

	// Clock is the time source; tests inject a fake (default: real clock).
	Clock clockwork.Clock

	// TTL is the idle lifetime of a session (default: 30m).
	TTL time.Duration

	// SweepInterval is the eviction cadence (default: 1m).
	SweepInterval time.Duration

	// Logger for registry operations.
	Logger zerolog.Logger
}

type entry struct {
	coordinator *report.Coordinator
	lastTouch   time.Time
}

// Registry is the in-memory session store.
type Registry struct {
	factory  Factory
	clock    clockwork.Clock
	ttl      time.Duration
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry creates a session registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	interval := cfg.SweepInterval
	if interval == 0 {
		interval = DefaultSweepInterval
	}

	return &Registry{
		factory:  cfg.Factory,
		clock:    clock,
		ttl:      ttl,
		interval: interval,
		logger:   cfg.Logger,
		sessions: make(map[string]*entry),
	}
}

// Touch returns the user's coordinator, creating it on first use, and
// refreshes the idle timer.
func (r *Registry) Touch(userID string) *report.Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[userID]
	if !ok {
		e = &entry{coordinator: r.factory(userID)}
		r.sessions[userID] = e
		r.logger.Debug().Str("user_id", userID).Msg("session created")
	}
	e.lastTouch = r.clock.Now()
	return e.coordinator
}

// Peek returns the user's coordinator without creating or refreshing it.
func (r *Registry) Peek(userID string) (*report.Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.coordinator, true
}

// Remove evicts a user's session. Used when the user cancels the report
// flow; the next touch starts a fresh pipeline.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[userID]; ok {
		delete(r.sessions, userID)
		r.logger.Debug().Str("user_id", userID).Msg("session removed")
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run sweeps expired sessions until the context is canceled. Intended to be
// started as a goroutine from main.
func (r *Registry) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if evicted := r.sweep(); evicted > 0 {
				r.logger.Info().Int("evicted", evicted).Msg("expired sessions evicted")
			}
		}
	}
}

// sweep evicts sessions idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) sweep() int {
	cutoff := r.clock.Now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for userID, e := range r.sessions {
		if e.lastTouch.Before(cutoff) {
			delete(r.sessions, userID)
			evicted++
		}
	}
	return evicted
}
