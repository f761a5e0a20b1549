package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course-marketplace/models"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestIdentity(t *testing.T) {
	var got models.Actor
	var found bool
	h := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = ActorFrom(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-User-ID", " u-1 ")
	req.Header.Set("X-User-Role", "Student")
	req.Header.Set("X-User-Email", "u@example.com")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !found {
		t.Fatal("actor not stored on context")
	}
	want := models.Actor{ID: "u-1", Role: models.RoleStudent, Email: "u@example.com"}
	if got != want {
		t.Errorf("actor = %+v, want %+v", got, want)
	}

	found = true
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if found {
		t.Error("anonymous request produced an actor")
	}
}

func TestRequireRole(t *testing.T) {
	h := Identity(RequireRole(models.RoleStudent, models.RoleTutor)(ok))

	tests := []struct {
		name string
		id   string
		role string
		want int
	}{
		{"student", "s-1", "student", http.StatusOK},
		{"tutor", "t-1", "tutor", http.StatusOK},
		{"admin", "a-1", "admin", http.StatusForbidden},
		{"no role", "x-1", "", http.StatusForbidden},
		{"anonymous", "", "student", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("X-User-ID", tt.id)
			req.Header.Set("X-User-Role", tt.role)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	h := rl.Middleware(ok)

	send := func(ip string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("1.1.1.1"); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, code)
		}
	}
	if code := send("1.1.1.1"); code != http.StatusTooManyRequests {
		t.Errorf("over burst status = %d, want 429", code)
	}
	if code := send("2.2.2.2"); code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", code)
	}
}

func TestRateLimiterPrune(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.allow("1.1.1.1")
	now = now.Add(10 * time.Minute)
	rl.allow("2.2.2.2")
	now = now.Add(6 * time.Minute)

	if removed := rl.prune(); removed != 1 {
		t.Errorf("pruned = %d, want 1", removed)
	}
	if _, ok := rl.clients["2.2.2.2"]; !ok {
		t.Error("recent client was pruned")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if ip := clientIP(req); ip != "192.0.2.1" {
		t.Errorf("remote addr ip = %q", ip)
	}
	req.Header.Set("X-Real-IP", "198.51.100.7")
	if ip := clientIP(req); ip != "198.51.100.7" {
		t.Errorf("x-real-ip = %q", ip)
	}
}

func TestEnableCORSPreflight(t *testing.T) {
	called := false
	h := EnableCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/payments/verify", nil))
	if rec.Code != http.StatusNoContent || called {
		t.Errorf("preflight status %d, handler called %v", rec.Code, called)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing allow-origin header")
	}
}
