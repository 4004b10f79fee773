// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/api"
	"github.com/courtbook/courtbook/internal/api/authapi"
	"github.com/courtbook/courtbook/internal/api/availability"
	"github.com/courtbook/courtbook/internal/api/bookings"
	"github.com/courtbook/courtbook/internal/api/credits"
	"github.com/courtbook/courtbook/internal/api/orgs"
	"github.com/courtbook/courtbook/internal/api/preferences"
	"github.com/courtbook/courtbook/internal/api/webhooks"
	"github.com/courtbook/courtbook/internal/auth"
	"github.com/courtbook/courtbook/internal/booking"
	"github.com/courtbook/courtbook/internal/config"
	"github.com/courtbook/courtbook/internal/db"
	"github.com/courtbook/courtbook/internal/email"
	"github.com/courtbook/courtbook/internal/payments"
	"github.com/courtbook/courtbook/internal/ratelimit"
)

type app struct {
	cfg      *config.Config
	database *db.DB
	tokens   *auth.Tokens
	bookings *booking.Service
	provider payments.Provider
}

func newApp(cfg *config.Config) (*app, error) {
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var provider payments.Provider
	if cfg.Stripe.SecretKey != "" {
		provider, err = payments.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("init payments: %w", err)
		}
	} else {
		log.Warn().Msg("Stripe not configured, card payments disabled")
	}

	var mailer email.Sender
	if cfg.Email.Enabled {
		sesClient, sesErr := email.NewSESClient(cfg.Email.AccessKeyID, cfg.Email.SecretAccessKey, cfg.Email.Region, cfg.Email.Sender)
		if sesErr != nil {
			return nil, fmt.Errorf("init email: %w", sesErr)
		}
		mailer = sesClient
	}

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, time.Now)
	bookingService := booking.NewService(database, provider, mailer, time.Now)

	authapi.InitHandlers(authapi.Deps{
		DB:       database,
		Tokens:   tokens,
		Limiter:  ratelimit.New(nil),
		Mailer:   mailer,
		BaseURL:  cfg.App.BaseURL,
		TokenTTL: time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
		ResetTTL: time.Duration(cfg.Auth.ResetTTLMinutes) * time.Minute,
	})
	bookings.InitHandlers(bookingService)
	availability.InitHandlers(bookingService)
	credits.InitHandlers(database)
	orgs.InitHandlers(database)
	preferences.InitHandlers(database)
	webhooks.InitHandlers(bookingService, provider)

	return &app{
		cfg:      cfg,
		database: database,
		tokens:   tokens,
		bookings: bookingService,
		provider: provider,
	}, nil
}

func (a *app) Close() {
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
}

func (a *app) newServer() *http.Server {
	router := http.NewServeMux()

	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithAuth(a.tokens, a.database.Store),
		api.WithRequestID,
	)

	a.registerRoutes(router)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (a *app) registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Auth routes
	mux.HandleFunc("POST /api/v1/auth/register", authapi.HandleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", authapi.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/password-reset", authapi.HandlePasswordResetRequest)
	mux.HandleFunc("POST /api/v1/auth/password-reset/confirm", authapi.HandlePasswordResetConfirm)

	// Directory routes
	mux.HandleFunc("GET /api/v1/orgs", orgs.HandleListOrgs)
	mux.HandleFunc("GET /api/v1/orgs/{id}/sites", orgs.HandleListSites)
	mux.HandleFunc("GET /api/v1/sites/{id}/resources", orgs.HandleListResources)

	// Org admin routes
	mux.HandleFunc("POST /api/v1/orgs/{id}/tiers", orgs.HandleCreateTier)
	mux.HandleFunc("POST /api/v1/orgs/{id}/memberships", orgs.HandleCreateMembership)

	// Booking routes
	mux.HandleFunc("GET /api/v1/availability", availability.HandleAvailability)
	mux.HandleFunc("POST /api/v1/bookings", bookings.HandleCreate)
	mux.HandleFunc("GET /api/v1/bookings", bookings.HandleList)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", bookings.HandleCancel)

	// Credit routes
	mux.HandleFunc("GET /api/v1/orgs/{id}/credits", credits.HandleBalance)
	mux.HandleFunc("GET /api/v1/orgs/{id}/credits/transactions", credits.HandleTransactions)
	mux.HandleFunc("POST /api/v1/orgs/{id}/credits/grant", credits.HandleGrant)

	// Preference routes
	mux.HandleFunc("POST /api/v1/preferences", preferences.HandleCreate)
	mux.HandleFunc("GET /api/v1/preferences", preferences.HandleList)
	mux.HandleFunc("DELETE /api/v1/preferences/{id}", preferences.HandleDelete)

	// Payment provider callbacks
	if a.provider != nil {
		mux.HandleFunc("POST /webhooks/stripe", webhooks.HandleStripe)
	}
}
