package session

import (
	"context"
	"testing"
	"time"

	"attendboard/internal/store"
)

func TestAcquireReturnsSameSession(t *testing.T) {
	m := newTestManager(&fakeAPI{}, store.NewMemoryTokens())
	defer m.Close()

	a := m.Acquire("sid")
	b := m.Acquire("sid")
	if a != b {
		t.Fatal("expected the live session to be reused")
	}
	if c := m.Acquire("other"); c == a {
		t.Fatal("distinct ids must not share a session")
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d", m.Len())
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	m := NewManager(&fakeAPI{}, store.NewMemoryTokens(), Options{
		IdleTTL: time.Minute,
		now:     func() time.Time { return now },
	})
	defer m.Close()

	waitResolved(t, m.Acquire("old"))
	now = now.Add(45 * time.Second)
	waitResolved(t, m.Acquire("new"))
	now = now.Add(30 * time.Second)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("evicted %d sessions, want 1", n)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d", m.Len())
	}
}

func TestEvictedSessionRecoversFromPersistedToken(t *testing.T) {
	tokens := store.NewMemoryTokens()
	api := &fakeAPI{loginTok: "tok"}
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	m := NewManager(api, tokens, Options{IdleTTL: time.Minute, now: func() time.Time { return now }})
	defer m.Close()

	s := m.Acquire("sid")
	waitResolved(t, s)
	s.Login(context.Background(), "ana@example.com", "pw")

	now = now.Add(2 * time.Minute)
	m.Sweep()

	again := m.Acquire("sid")
	if again == s {
		t.Fatal("expected a fresh session after eviction")
	}
	if v := waitResolved(t, again); !v.IsAuthenticated {
		t.Fatalf("persisted token should restore the session: %+v", v)
	}
}

func TestAcquireAfterCloseIsUnauthenticated(t *testing.T) {
	tokens := store.NewMemoryTokens()
	_ = tokens.Set(context.Background(), "sid", "tok", time.Time{})
	m := newTestManager(&fakeAPI{}, tokens)
	m.Close()

	v := m.Acquire("sid").View()
	if v.Loading || v.IsAuthenticated {
		t.Fatalf("unexpected view %+v", v)
	}
	if m.Len() != 0 {
		t.Fatal("closed manager must not retain sessions")
	}
}

func TestValidID(t *testing.T) {
	m := newTestManager(&fakeAPI{}, store.NewMemoryTokens())
	defer m.Close()
	if !m.ValidID(m.NewID()) {
		t.Fatal("generated id rejected")
	}
	if m.ValidID("../../etc") {
		t.Fatal("garbage id accepted")
	}
}
