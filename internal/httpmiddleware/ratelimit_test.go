package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestFormLimiterRefills(t *testing.T) {
	l := NewFormLimiter(2, 60)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.allow("k"); !ok {
			t.Fatalf("attempt %d rejected", i)
		}
	}
	ok, wait := l.allow("k")
	if ok || wait <= 0 || wait > time.Second {
		t.Fatalf("third attempt: ok=%v wait=%s", ok, wait)
	}
	if ok, _ := l.allow("other"); !ok {
		t.Fatal("keys must not share buckets")
	}

	now = now.Add(time.Second)
	if ok, _ := l.allow("k"); !ok {
		t.Fatal("bucket did not refill")
	}
}

func TestFormLimiterPrune(t *testing.T) {
	l := NewFormLimiter(2, 60)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.allow("a")
	l.allow("b")
	l.allow("b")

	now = now.Add(1500 * time.Millisecond)
	if n := l.Prune(); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	now = now.Add(time.Second)
	if n := l.Prune(); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
}

func TestGinMiddlewareRejectsWithRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewFormLimiter(1, 1)
	r := gin.New()
	r.POST("/login", l.GinMiddleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("first attempt: %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second attempt: %d retry=%q", w.Code, w.Header().Get("Retry-After"))
	}
}
