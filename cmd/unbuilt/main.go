package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/unbuiltapp/unbuilt/internal/archive"
	"github.com/unbuiltapp/unbuilt/internal/billing"
	"github.com/unbuiltapp/unbuilt/internal/database"
	"github.com/unbuiltapp/unbuilt/internal/email"
	"github.com/unbuiltapp/unbuilt/internal/gapanalysis"
	"github.com/unbuiltapp/unbuilt/internal/logging"
	"github.com/unbuiltapp/unbuilt/internal/server"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logger := logging.Setup(os.Getenv("UNBUILT_LOG_LEVEL"))

	port := envOr("UNBUILT_PORT", "8080")
	dbPath := envOr("UNBUILT_DB_PATH", "unbuilt.db")
	baseURL := envOr("UNBUILT_BASE_URL", "http://localhost:"+port)

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	analyzer, err := gapanalysis.NewClient(
		ctx,
		os.Getenv("GEMINI_API_KEY"),
		os.Getenv("GEMINI_MODEL"),
		logger.With("component", "gapanalysis"),
	)
	if err != nil {
		log.Fatalf("failed to create analysis client: %v", err)
	}
	defer analyzer.Close()

	emailClient := email.NewClient(
		os.Getenv("POSTMARK_SERVER_TOKEN"),
		envOr("UNBUILT_FROM_EMAIL", "reports@unbuilt.app"),
		logger.With("component", "email"),
	)

	cfg := server.Config{
		BaseURL:     baseURL,
		ResetSecret: envOr("UNBUILT_RESET_SECRET", "dev-only-reset-secret"),
		DemoMode:    os.Getenv("UNBUILT_DEMO_MODE") == "true",
		Stripe: billing.Config{
			SecretKey:         os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:     os.Getenv("STRIPE_WEBHOOK_SECRET"),
			ProPriceID:        os.Getenv("STRIPE_PRO_PRICE_ID"),
			EnterprisePriceID: os.Getenv("STRIPE_ENTERPRISE_PRICE_ID"),
		},
		Archive: archive.Config{
			Bucket:    os.Getenv("UNBUILT_S3_BUCKET"),
			Region:    envOr("UNBUILT_S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("UNBUILT_S3_ENDPOINT"),
			AccessKey: os.Getenv("UNBUILT_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("UNBUILT_S3_SECRET_KEY"),
		},
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
	}

	srv, err := server.New(db, cfg, analyzer, emailClient, logger)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("unbuilt listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Hourly session cleanup so expired rows don't pile up between lookups.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err == nil && n > 0 {
					logger.Info("deleted expired sessions", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupDone:
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	close(cleanupDone)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
