package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/bengkelku/api/internal/config"
	"github.com/bengkelku/api/internal/enum"
	"github.com/bengkelku/api/internal/handler"
	mw "github.com/bengkelku/api/internal/middleware"
	"github.com/bengkelku/api/internal/service"
	"github.com/bengkelku/api/internal/snapshot"
	"github.com/bengkelku/api/internal/store"
	"github.com/bengkelku/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, st store.Store, orch *service.Orchestrator, loader *snapshot.Loader, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // dev frontend
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(st, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Orders: every role works the editing surface
		orderHandler := handler.NewOrderHandler(st, orch)
		r.Route("/orders", orderHandler.RegisterRoutes)

		// Inventory ledger
		inventoryHandler := handler.NewInventoryHandler(st, loader)
		r.Route("/inventory", inventoryHandler.RegisterRoutes)

		// Counterparties and their history ledgers
		shopHandler := handler.NewShopHandler(st, loader)
		r.Route("/shops", shopHandler.RegisterRoutes)

		workerHandler := handler.NewWorkerHandler(st, loader, orch)
		r.Route("/workers", workerHandler.RegisterRoutes)

		// Settings reads and name catalogs: every role
		settingsHandler := handler.NewSettingsHandler(st, loader)
		settingsHandler.RegisterRoutes(r)

		// Settings writes: management only
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager))
			settingsHandler.RegisterAdminRoutes(r)
		})
	})

	logrus.Info("router initialized")
	return r
}
