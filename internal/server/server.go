package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/unbuiltapp/unbuilt/internal/archive"
	"github.com/unbuiltapp/unbuilt/internal/auth"
	"github.com/unbuiltapp/unbuilt/internal/billing"
	"github.com/unbuiltapp/unbuilt/internal/email"
	"github.com/unbuiltapp/unbuilt/internal/entitlement"
	"github.com/unbuiltapp/unbuilt/internal/gapanalysis"
	"github.com/unbuiltapp/unbuilt/internal/handler"
	"github.com/unbuiltapp/unbuilt/internal/middleware"
	"github.com/unbuiltapp/unbuilt/internal/search"
	"github.com/unbuiltapp/unbuilt/internal/store"
)

type Config struct {
	BaseURL     string
	ResetSecret string
	DemoMode    bool

	Stripe  billing.Config
	Archive archive.Config

	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
}

type Server struct {
	db           *sql.DB
	authH        *handler.AuthHandler
	searchH      *handler.SearchHandler
	exportH      *handler.ExportHandler
	billingH     *handler.BillingHandler
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	demoUserID   int64
	logger       *slog.Logger
}

func New(db *sql.DB, cfg Config, analyzer *gapanalysis.Client, emailClient *email.Client, logger *slog.Logger) (*Server, error) {
	userStore := store.NewUserStore(db)
	searchStore := store.NewSearchStore(db)
	resultStore := store.NewResultStore(db)
	sessionStore := store.NewSessionStore(db)
	archiveStore := store.NewArchiveStore(db)

	entitlements := entitlement.NewService(userStore)
	searchSvc := search.NewService(searchStore, analyzer, logger.With("component", "search"))
	archiveMgr := archive.NewManager(cfg.Archive, archiveStore, logger.With("component", "archive"))

	var stripeClient *billing.Client
	if cfg.Stripe.SecretKey != "" {
		stripeClient = billing.NewClient(cfg.Stripe)
	}

	providers := auth.OAuthProviders(
		cfg.BaseURL,
		cfg.GoogleClientID, cfg.GoogleClientSecret,
		cfg.GitHubClientID, cfg.GitHubClientSecret,
	)

	var demoUserID int64
	if cfg.DemoMode {
		id, err := ensureDemoUser(userStore)
		if err != nil {
			return nil, err
		}
		demoUserID = id
		logger.Info("demo mode enabled", "user_id", demoUserID)
	}

	return &Server{
		db: db,
		authH: handler.NewAuthHandler(
			userStore, sessionStore, emailClient, providers,
			[]byte(cfg.ResetSecret), cfg.BaseURL,
			logger.With("component", "auth"),
		),
		searchH: handler.NewSearchHandler(
			userStore, searchStore, resultStore, searchSvc, entitlements,
			logger.With("component", "search_handler"),
		),
		exportH: handler.NewExportHandler(
			resultStore, archiveStore, archiveMgr, emailClient,
			logger.With("component", "export"),
		),
		billingH: handler.NewBillingHandler(
			stripeClient, userStore, entitlements,
			logger.With("component", "billing"),
		),
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(10, time.Minute),
		demoUserID:   demoUserID,
		logger:       logger,
	}, nil
}

// ensureDemoUser creates the fixed demo identity on first run. The demo user
// rides the same entitlement path as everyone else.
func ensureDemoUser(users *store.UserStore) (int64, error) {
	existing, err := users.GetByEmail("demo@unbuilt.app")
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	user, err := users.Create("demo@unbuilt.app", nil, "Demo User")
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/auth/forgot-password", s.rateLimitedHandler(s.authH.ForgotPassword))
	outerMux.HandleFunc("POST /api/auth/reset-password", s.rateLimitedHandler(s.authH.ResetPassword))
	outerMux.HandleFunc("GET /api/auth/{provider}/redirect", s.authH.OAuthRedirect)
	outerMux.HandleFunc("GET /api/auth/{provider}/callback", s.authH.OAuthCallback)
	outerMux.HandleFunc("GET /api/search/shared/{token}", s.searchH.Shared)
	outerMux.HandleFunc("POST /api/stripe/webhook", s.billingH.Webhook)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.demoUserID)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/profile", s.authH.Profile)
	mux.HandleFunc("PATCH /api/auth/profile", s.authH.UpdateProfile)

	mux.HandleFunc("POST /api/search", s.searchH.Submit)
	mux.HandleFunc("GET /api/search/{id}/results", s.searchH.Results)
	mux.HandleFunc("GET /api/searches", s.searchH.History)
	mux.HandleFunc("PATCH /api/results/{id}/save", s.searchH.ToggleSaved)
	mux.HandleFunc("GET /api/results/saved", s.searchH.Saved)
	mux.HandleFunc("POST /api/search/{id}/share", s.searchH.Share)

	mux.HandleFunc("POST /api/export", s.exportH.Export)
	mux.HandleFunc("POST /api/email-report", s.exportH.EmailReport)
	mux.HandleFunc("GET /api/exports", s.exportH.ListArchives)

	mux.HandleFunc("POST /api/activate-trial", s.billingH.ActivateTrial)
	mux.HandleFunc("POST /api/create-subscription", s.billingH.CreateSubscription)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	return s.rateLimiter.LimitByIP(h).ServeHTTP
}
