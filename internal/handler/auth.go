package handler

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/unbuiltapp/unbuilt/internal/auth"
	"github.com/unbuiltapp/unbuilt/internal/email"
	"github.com/unbuiltapp/unbuilt/internal/entitlement"
	"github.com/unbuiltapp/unbuilt/internal/model"
	"github.com/unbuiltapp/unbuilt/internal/store"
)

const (
	sessionCookieName = "unbuilt_session"
	oauthStateCookie  = "unbuilt_oauth_state"
	minPasswordLength = 8
)

type AuthHandler struct {
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	emailClient  *email.Client
	providers    map[string]*auth.OAuthProvider
	resetSecret  []byte
	baseURL      string
	logger       *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	ss *store.SessionStore,
	ec *email.Client,
	providers map[string]*auth.OAuthProvider,
	resetSecret []byte,
	baseURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userStore:    us,
		sessionStore: ss,
		emailClient:  ec,
		providers:    providers,
		resetSecret:  resetSecret,
		baseURL:      baseURL,
		logger:       logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		return
	}

	existing, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("register lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, "email is already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	hashStr := string(hash)

	user, err := h.userStore.Create(req.Email, &hashStr, strings.TrimSpace(req.Name))
	if err != nil {
		h.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || user.PasswordHash == nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok && ac.SessionID != 0 {
		h.sessionStore.Delete(ac.SessionID)
	}
	clearCookie(w, sessionCookieName)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(user))
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Email *string `json:"email"`
		Name  *string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	newEmail, newName := user.Email, user.Name
	if req.Email != nil {
		newEmail = strings.ToLower(strings.TrimSpace(*req.Email))
		if newEmail == "" || !strings.Contains(newEmail, "@") {
			writeError(w, http.StatusBadRequest, "a valid email is required")
			return
		}
	}
	if req.Name != nil {
		newName = strings.TrimSpace(*req.Name)
	}

	updated, err := h.userStore.UpdateProfile(user.ID, newEmail, newName)
	if err != nil {
		h.logger.Error("update profile", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(updated))
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	// Always answer the same way to prevent address enumeration.
	defer writeJSON(w, http.StatusOK, map[string]string{
		"message": "If that email is registered, a reset link has been sent.",
	})

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil || user == nil || user.PasswordHash == nil {
		return
	}

	token, err := auth.NewResetToken(h.resetSecret, user.ID)
	if err != nil {
		h.logger.Error("create reset token", "error", err)
		return
	}
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", h.baseURL, token)
	if err := h.emailClient.SendPasswordReset(user.Email, resetURL); err != nil {
		h.logger.Error("send password reset", "error", err)
	}
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		return
	}

	userID, err := auth.ParseResetToken(h.resetSecret, req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired reset token")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.userStore.UpdatePassword(userID, string(hash)); err != nil {
		h.logger.Error("update password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Invalidate every open session for the account.
	h.sessionStore.DeleteByUserID(userID)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// OAuthRedirect sends the client to the provider's consent screen.
func (h *AuthHandler) OAuthRedirect(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[r.PathValue("provider")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown or disabled provider")
		return
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		h.logger.Error("generate oauth state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	state := hex.EncodeToString(stateBytes)

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	http.Redirect(w, r, provider.Config.AuthCodeURL(state), http.StatusFound)
}

// OAuthCallback completes the exchange and signs the user in, creating the
// account on first login.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[r.PathValue("provider")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown or disabled provider")
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	clearCookie(w, oauthStateCookie)

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	identity, err := provider.FetchIdentity(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth identity", "provider", provider.Name, "error", err)
		writeError(w, http.StatusBadGateway, "oauth exchange failed")
		return
	}

	user, err := h.userStore.GetByProvider(identity.Provider, identity.ProviderID)
	if err != nil {
		h.logger.Error("oauth lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		user, err = h.userStore.CreateOAuth(identity.Email, identity.Name, identity.Provider, identity.ProviderID)
		if err != nil {
			h.logger.Error("create oauth user", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, err := h.userStore.GetByID(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("load user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return user, true
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	sess, err := h.sessionStore.Create(userID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(store.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
	})
	return nil
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// profileResponse augments the user with the plan in force right now, so
// clients never see a lapsed trial as pro.
func profileResponse(u *model.User) map[string]any {
	return map[string]any{
		"user":           u,
		"effective_plan": entitlement.EffectivePlan(u, timeNow()),
	}
}
