package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"attendboard/internal/apiclient"
	"attendboard/internal/metrics"
	"attendboard/internal/model"
	"attendboard/internal/store"
)

// State is the position of a session in its lifecycle.
type State int

const (
	StateLoading State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// API is the slice of the attendance API the session needs.
type API interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, in apiclient.RegisterRequest) error
	Me(ctx context.Context) (model.User, error)
}

// View is a point-in-time copy of a session.
type View struct {
	ID              string
	State           State
	HasToken        bool
	User            *model.User
	IsAuthenticated bool
	Loading         bool
}

// Session holds the credential and identity of one browser. It is safe
// for concurrent use; requests from the same browser may overlap.
type Session struct {
	id      string
	api     API
	tokens  store.TokenStore
	expiry  func(string) (time.Time, bool)
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	state    State
	token    string
	user     *model.User
	gen      uint64
	changed  chan struct{}
	lastSeen time.Time
}

func newSession(id string, api API, tokens store.TokenStore, opts Options) *Session {
	s := &Session{
		id:      id,
		api:     api,
		tokens:  tokens,
		expiry:  opts.TokenExpiry,
		log:     opts.Logger.With(zap.String("session", shortID(id))),
		metrics: opts.Metrics,
		now:     opts.now,
		state:   StateLoading,
		changed: make(chan struct{}),
	}
	s.lastSeen = s.now()
	return s
}

// ID returns the browser session identifier.
func (s *Session) ID() string { return s.id }

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := View{
		ID:              s.id,
		State:           s.state,
		HasToken:        s.token != "",
		IsAuthenticated: s.state == StateAuthenticated,
		Loading:         s.state == StateLoading,
	}
	if s.user != nil {
		u := *s.user
		v.User = &u
	}
	return v
}

// Wait blocks until the session is no longer loading or ctx ends.
func (s *Session) Wait(ctx context.Context) View {
	for {
		s.mu.RLock()
		state, ch := s.state, s.changed
		s.mu.RUnlock()
		if state != StateLoading {
			return s.View()
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s.View()
		}
	}
}

// APIContext returns ctx carrying the session token for API calls.
func (s *Session) APIContext(ctx context.Context) context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return apiclient.WithToken(ctx, s.token)
}

// Init resolves the session from its persisted token. Without a usable
// token the session becomes unauthenticated with no API call.
func (s *Session) Init(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	tok, err := s.tokens.Get(ctx, s.id)
	if err != nil {
		if !errors.Is(err, store.ErrNoToken) {
			s.storeFailed("get", err)
		}
		s.transition(gen, StateUnauthenticated, "", nil)
		return
	}
	if s.tokenExpired(tok) {
		s.log.Debug("persisted token expired")
		if err := s.tokens.DeleteIf(ctx, s.id, tok); err != nil {
			s.storeFailed("delete", err)
		}
		s.transition(gen, StateUnauthenticated, "", nil)
		return
	}

	s.mu.Lock()
	if s.gen == gen {
		s.token = tok
	}
	s.mu.Unlock()
	s.fetch(ctx, gen)
}

// Login exchanges credentials for a token, persists it and fetches the
// user. It reports whether the credentials were accepted; the session is
// authenticated only if the follow-up user fetch also succeeds.
func (s *Session) Login(ctx context.Context, email, password string) bool {
	tok, err := s.api.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			s.log.Info("login rejected", zap.String("email", email))
		} else {
			s.log.Warn("login failed", zap.Error(err))
		}
		return false
	}

	var exp time.Time
	if e, ok := s.expiryOf(tok); ok {
		exp = e
	}
	if err := s.tokens.Set(ctx, s.id, tok, exp); err != nil {
		// The session still signs in for this process; it will not
		// survive eviction or a restart.
		s.storeFailed("set", err)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	s.transition(gen, StateLoading, tok, nil)

	s.fetch(ctx, gen)
	return true
}

// Register submits a new account. It never logs the user in.
func (s *Session) Register(ctx context.Context, in apiclient.RegisterRequest) bool {
	if err := s.api.Register(ctx, in); err != nil {
		s.log.Info("registration failed", zap.String("email", in.Email), zap.Error(err))
		return false
	}
	return true
}

// FetchCurrentUser refreshes the user with the held token. Any failure
// leaves the session unauthenticated.
func (s *Session) FetchCurrentUser(ctx context.Context) bool {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	return s.fetch(ctx, gen)
}

// Logout drops the persisted token and the in-memory identity. The API is
// not contacted.
func (s *Session) Logout(ctx context.Context) {
	if err := s.tokens.Delete(ctx, s.id); err != nil {
		s.storeFailed("delete", err)
	}
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	s.transition(gen, StateUnauthenticated, "", nil)
}

func (s *Session) fetch(ctx context.Context, gen uint64) bool {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if tok == "" {
		s.transition(gen, StateUnauthenticated, "", nil)
		return false
	}

	u, err := s.api.Me(apiclient.WithToken(ctx, tok))
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			// Only the rejected token goes; a login that raced this fetch
			// may already have persisted a newer one.
			if derr := s.tokens.DeleteIf(ctx, s.id, tok); derr != nil {
				s.storeFailed("delete", derr)
			}
			tok = ""
		}
		s.log.Info("fetch current user failed", zap.Error(err))
		s.transition(gen, StateUnauthenticated, tok, nil)
		return false
	}
	return s.transition(gen, StateAuthenticated, tok, &u)
}

// transition applies a state change unless a newer operation has started
// since gen was taken.
func (s *Session) transition(gen uint64, to State, token string, user *model.User) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	from := s.state
	s.state = to
	s.token = token
	s.user = user
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	if from != to {
		s.metrics.SessionTransition(to.String())
		s.log.Debug("session transition", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	return true
}

func (s *Session) storeFailed(op string, err error) {
	s.log.Warn("token store "+op+" failed", zap.Error(err))
	s.metrics.TokenStoreError(op)
}

func (s *Session) expiryOf(tok string) (time.Time, bool) {
	if s.expiry == nil {
		return time.Time{}, false
	}
	return s.expiry(tok)
}

func (s *Session) tokenExpired(tok string) bool {
	exp, ok := s.expiryOf(tok)
	return ok && !s.now().Before(exp)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) idleSince() (time.Time, State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen, s.state
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
