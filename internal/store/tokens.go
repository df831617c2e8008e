package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoToken is returned by TokenStore.Get when nothing is persisted for
// the session.
var ErrNoToken = errors.New("no persisted token")

// TokenStore persists one access token per browser session. Each token is
// read and written as a single value.
type TokenStore interface {
	Get(ctx context.Context, sessionID string) (string, error)
	// Set stores token; a zero expiresAt keeps it until deleted.
	Set(ctx context.Context, sessionID, token string, expiresAt time.Time) error
	Delete(ctx context.Context, sessionID string) error
	// DeleteIf removes the session's token only while it still equals
	// token, so a rejected credential cannot take a newer one with it.
	DeleteIf(ctx context.Context, sessionID, token string) error
}

// MemoryTokens is a process-local TokenStore for dev and tests.
type MemoryTokens struct {
	mu     sync.RWMutex
	tokens map[string]memoryToken
	now    func() time.Time
}

type memoryToken struct {
	value   string
	expires time.Time
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[string]memoryToken), now: time.Now}
}

func (m *MemoryTokens) Get(_ context.Context, sessionID string) (string, error) {
	m.mu.RLock()
	tok, ok := m.tokens[sessionID]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNoToken
	}
	if !tok.expires.IsZero() && !m.now().Before(tok.expires) {
		m.mu.Lock()
		delete(m.tokens, sessionID)
		m.mu.Unlock()
		return "", ErrNoToken
	}
	return tok.value, nil
}

func (m *MemoryTokens) Set(_ context.Context, sessionID, token string, expiresAt time.Time) error {
	if sessionID == "" {
		return errors.New("session id required")
	}
	m.mu.Lock()
	m.tokens[sessionID] = memoryToken{value: token, expires: expiresAt}
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokens) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.tokens, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokens) DeleteIf(_ context.Context, sessionID, token string) error {
	m.mu.Lock()
	if cur, ok := m.tokens[sessionID]; ok && cur.value == token {
		delete(m.tokens, sessionID)
	}
	m.mu.Unlock()
	return nil
}
