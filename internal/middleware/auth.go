package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/unbuiltapp/unbuilt/internal/auth"
	"github.com/unbuiltapp/unbuilt/internal/store"
)

const sessionCookieName = "unbuilt_session"

// RequireAuth validates the session cookie and populates the auth context.
// When demoUserID is non-zero (demo mode), requests without a valid session
// are attributed to the demo user instead of rejected, through the same
// context interface as real sessions.
func RequireAuth(sessionStore *store.SessionStore, demoUserID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
				sess, err := sessionStore.GetByToken(cookie.Value)
				if err == nil && sess != nil {
					ac := auth.Context{UserID: sess.UserID, SessionID: sess.ID}
					next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
					return
				}
			}

			if demoUserID != 0 {
				ac := auth.Context{UserID: demoUserID, Demo: true}
				next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
		})
	}
}
