package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/unbuiltapp/unbuilt/internal/auth"
	"github.com/unbuiltapp/unbuilt/internal/database"
	"github.com/unbuiltapp/unbuilt/internal/store"
)

func setupAuthTest(t *testing.T) (*store.UserStore, *store.SessionStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewUserStore(db), store.NewSessionStore(db)
}

func authCapturingHandler(captured *auth.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ac, ok := auth.FromContext(r.Context()); ok {
			*captured = ac
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthNoCookie(t *testing.T) {
	_, sessions := setupAuthTest(t)

	var captured auth.Context
	handler := RequireAuth(sessions, 0)(authCapturingHandler(&captured))

	req := httptest.NewRequest("GET", "/api/search/history", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}
	if !strings.Contains(rec.Body.String(), "authentication required") {
		t.Errorf("body = %q, want auth error", rec.Body.String())
	}
	if captured.UserID != 0 {
		t.Error("handler ran despite missing session")
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	_, sessions := setupAuthTest(t)

	handler := RequireAuth(sessions, 0)(authCapturingHandler(&auth.Context{}))

	req := httptest.NewRequest("GET", "/api/search/history", nil)
	req.AddCookie(&http.Cookie{Name: "unbuilt_session", Value: "bogus"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidSession(t *testing.T) {
	users, sessions := setupAuthTest(t)

	u, err := users.Create("alice@example.com", nil, "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sess, err := sessions.Create(u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	var captured auth.Context
	handler := RequireAuth(sessions, 0)(authCapturingHandler(&captured))

	req := httptest.NewRequest("GET", "/api/search/history", nil)
	req.AddCookie(&http.Cookie{Name: "unbuilt_session", Value: sess.Token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if captured.UserID != u.ID {
		t.Errorf("context user id = %d, want %d", captured.UserID, u.ID)
	}
	if captured.SessionID != sess.ID {
		t.Errorf("context session id = %d, want %d", captured.SessionID, sess.ID)
	}
	if captured.Demo {
		t.Error("real session flagged as demo")
	}
}

func TestRequireAuthDemoFallback(t *testing.T) {
	_, sessions := setupAuthTest(t)

	var captured auth.Context
	handler := RequireAuth(sessions, 7)(authCapturingHandler(&captured))

	req := httptest.NewRequest("GET", "/api/search/history", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if captured.UserID != 7 {
		t.Errorf("context user id = %d, want demo user 7", captured.UserID)
	}
	if !captured.Demo {
		t.Error("demo fallback not flagged")
	}
}

func TestRequireAuthDemoPrefersRealSession(t *testing.T) {
	users, sessions := setupAuthTest(t)

	u, err := users.Create("alice@example.com", nil, "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sess, err := sessions.Create(u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	var captured auth.Context
	handler := RequireAuth(sessions, 7)(authCapturingHandler(&captured))

	req := httptest.NewRequest("GET", "/api/search/history", nil)
	req.AddCookie(&http.Cookie{Name: "unbuilt_session", Value: sess.Token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured.UserID != u.ID {
		t.Errorf("context user id = %d, want real user %d", captured.UserID, u.ID)
	}
	if captured.Demo {
		t.Error("real session flagged as demo in demo mode")
	}
}
