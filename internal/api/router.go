package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/bcxlabs/buybackd/internal/api/handlers"
	"github.com/bcxlabs/buybackd/internal/api/middleware"
	"github.com/bcxlabs/buybackd/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(cfg *config.Config, ledger handlers.SettlementLedger, regs handlers.RegistrationCount) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogging)

	slog.Info("router initialized", "middleware", []string{"requestLogging"})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.HealthHandler(cfg, Version))
		r.Get("/settlements", handlers.SettlementsHandler(ledger))
		r.Get("/status", handlers.StatusHandler(ledger, regs))
	})

	return r
}
