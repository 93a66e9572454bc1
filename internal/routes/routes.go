package routes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/AnshRaj112/marketbot-backend/internal/handlers"
	"github.com/AnshRaj112/marketbot-backend/internal/middleware"
)

// Deps carries everything the route table mounts.
type Deps struct {
	Webhook *handlers.WebhookHandler
	// Console is nil when the chat console is disabled.
	Console *handlers.ConsoleHandler
	Admin   *handlers.AdminHandler

	WebhookLimiter *middleware.IPRateLimiter
	AdminKeyHash   string
	AdminGuard     *middleware.FailureGuard
	AllowedOrigins []string
	Log            *slog.Logger
}

func SetupRoutes(r *chi.Mux, d Deps) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		if d.WebhookLimiter != nil {
			r.Use(d.WebhookLimiter.Limit)
		}
		r.Get("/webhook", d.Webhook.Verify)
		r.Post("/webhook", d.Webhook.Receive)
	})

	if d.Console != nil {
		r.Get("/ws/console", d.Console.Serve)
	}

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(middleware.AdminAuth(d.AdminKeyHash, d.AdminGuard, d.Log))

		r.Get("/stats", d.Admin.GetStats)
		r.Get("/users", d.Admin.GetUsers)
		r.Put("/users/{id}/status", d.Admin.UpdateUserStatus)
		r.Post("/payments/{id}/confirm", d.Admin.ConfirmPayment)
		r.Get("/abuse-flags", d.Admin.GetAbuseFlags)
		r.Get("/caches", d.Admin.GetCaches)
		r.Delete("/caches", d.Admin.FlushCaches)
		r.Put("/unblock-ip", d.Admin.UnblockIP)
	})
}
