package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attendboard/internal/metrics"
	"attendboard/internal/store"
)

// Options tune a Manager.
type Options struct {
	// IdleTTL is how long an unused session stays in memory. Its persisted
	// token outlives it.
	IdleTTL time.Duration
	// TokenExpiry reports the expiry encoded in a token, if any.
	TokenExpiry func(token string) (time.Time, bool)
	Logger      *zap.Logger
	Metrics     *metrics.Metrics

	now func() time.Time
}

// Manager owns the live sessions of all browsers. Sessions initialise in
// the background against the manager's lifetime, not the request's.
type Manager struct {
	api    API
	tokens store.TokenStore
	opts   Options
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewManager(api API, tokens store.TokenStore, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		api:      api,
		tokens:   tokens,
		opts:     opts,
		log:      opts.Logger.With(zap.String("component", "session_manager")),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// NewID returns a fresh browser session identifier.
func (m *Manager) NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id could have come from NewID.
func (m *Manager) ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Acquire returns the live session for id, creating it and starting its
// initialisation when absent.
func (m *Manager) Acquire(id string) *Session {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		s.touch()
		return s
	}
	s := newSession(id, m.api, m.tokens, m.opts)
	closed := m.closed
	if !closed {
		m.sessions[id] = s
		m.wg.Add(1)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if closed {
		s.transition(0, StateUnauthenticated, "", nil)
		return s
	}
	m.opts.Metrics.SetActiveSessions(n)
	go func() {
		defer m.wg.Done()
		s.Init(m.ctx)
	}()
	return s
}

// Start runs the idle sweeper until ctx ends or the manager is closed.
func (m *Manager) Start(ctx context.Context) {
	interval := m.opts.IdleTTL / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval <= 0 {
		interval = time.Second
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					m.log.Debug("evicted idle sessions", zap.Int("count", n))
				}
			}
		}
	}()
}

// Sweep drops sessions idle longer than IdleTTL. Loading sessions are kept.
func (m *Manager) Sweep() int {
	cutoff := m.opts.now().Add(-m.opts.IdleTTL)
	m.mu.Lock()
	evicted := 0
	for id, s := range m.sessions {
		seen, state := s.idleSince()
		if state != StateLoading && seen.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()
	m.opts.Metrics.SetActiveSessions(n)
	return evicted
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close cancels in-flight initialisation, waits for background work and
// drops every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	m.opts.Metrics.SetActiveSessions(0)
}
