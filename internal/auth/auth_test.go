package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"attendboard/internal/apiclient"
	"attendboard/internal/model"
	"attendboard/internal/session"
	"attendboard/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name string
		view session.View
		want Decision
	}{
		{"loading unauthenticated", session.View{Loading: true}, ShowLoading},
		{"loading with stale auth flag", session.View{Loading: true, IsAuthenticated: true}, ShowLoading},
		{"resolved unauthenticated", session.View{}, RedirectLogin},
		{"resolved authenticated", session.View{IsAuthenticated: true}, Render},
	}
	for _, tc := range cases {
		if got := Decide(tc.view); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret-we-do-not-know"))
	if err != nil {
		t.Fatal(err)
	}

	got, ok := TokenExpiry(tok)
	if !ok || !got.Equal(exp) {
		t.Fatalf("TokenExpiry = %s, %v; want %s", got, ok, exp)
	}
	if _, ok := TokenExpiry("opaque-token"); ok {
		t.Fatal("opaque token should have no expiry")
	}
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u"}).SignedString([]byte("k"))
	if _, ok := TokenExpiry(noExp); ok {
		t.Fatal("token without exp should report ok=false")
	}
}

type stubAPI struct {
	block chan struct{}
}

func (s *stubAPI) Login(context.Context, string, string) (string, error) { return "tok", nil }
func (s *stubAPI) Register(context.Context, apiclient.RegisterRequest) error {
	return nil
}
func (s *stubAPI) Me(ctx context.Context) (model.User, error) {
	if s.block != nil {
		<-s.block
	}
	return model.User{Name: "Ana"}, nil
}

func newRouter(mgr *session.Manager, wait time.Duration) *gin.Engine {
	r := gin.New()
	r.Use(Sessions(mgr, CookieConfig{Name: "sid"}))
	r.GET("/dashboard", RequireSession(GuardConfig{Wait: wait}), func(c *gin.Context) {
		c.String(http.StatusOK, "dashboard for %s", CurrentSession(c).View().User.Name)
	})
	r.GET("/login", RedirectIfAuthenticated("/dashboard", wait), func(c *gin.Context) {
		c.String(http.StatusOK, "login form")
	})
	return r
}

func TestGuardRedirectsUnauthenticated(t *testing.T) {
	mgr := session.NewManager(&stubAPI{}, store.NewMemoryTokens(), session.Options{})
	defer mgr.Close()

	w := httptest.NewRecorder()
	newRouter(mgr, time.Second).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Fatalf("got %d to %q", w.Code, w.Header().Get("Location"))
	}
	if len(w.Result().Cookies()) == 0 {
		t.Fatal("session cookie not issued")
	}
}

func TestGuardShowsLoadingWithoutRedirect(t *testing.T) {
	api := &stubAPI{block: make(chan struct{})}
	tokens := store.NewMemoryTokens()
	mgr := session.NewManager(api, tokens, session.Options{})
	defer mgr.Close()
	defer close(api.block)

	id := mgr.NewID()
	_ = tokens.Set(context.Background(), id, "tok", time.Time{})

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: id})
	w := httptest.NewRecorder()
	newRouter(mgr, 20*time.Millisecond).ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Header().Get("Location") != "" {
		t.Fatalf("loading session must not redirect: %d %q", w.Code, w.Header().Get("Location"))
	}
	if w.Header().Get("Refresh") == "" {
		t.Fatal("loading page should ask the browser to retry")
	}
}

func TestGuardRendersOnceResolved(t *testing.T) {
	tokens := store.NewMemoryTokens()
	mgr := session.NewManager(&stubAPI{}, tokens, session.Options{})
	defer mgr.Close()

	id := mgr.NewID()
	_ = tokens.Set(context.Background(), id, "tok", time.Time{})

	r := newRouter(mgr, time.Second)
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: id})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "dashboard for Ana" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: id})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/dashboard" {
		t.Fatalf("signed-in session should skip login: %d", w.Code)
	}
}

func TestSessionsReplacesForgedCookie(t *testing.T) {
	mgr := session.NewManager(&stubAPI{}, store.NewMemoryTokens(), session.Options{})
	defer mgr.Close()

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "not-a-uuid"})
	w := httptest.NewRecorder()
	newRouter(mgr, time.Second).ServeHTTP(w, req)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value == "not-a-uuid" || !mgr.ValidID(cookies[0].Value) {
		t.Fatalf("forged cookie kept: %+v", cookies)
	}
}
