package router

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	hrest "notification-engine/internal/handler/http"
	wshandler "notification-engine/internal/handler/ws"
	"notification-engine/internal/middleware"
)

// SetupRoutes configures the HTTP routes for the notification engine.
func SetupRoutes(
	r chi.Router,
	h *hrest.NotificationHandler,
	wsHandler *wshandler.WSHandler,
	rdb *redis.Client,
) chi.Router {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-User-ID",
		},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RateLimit(rdb, 100, time.Minute, 10*time.Minute, "global"))

	// Internal dispatch surface, called by sibling services on behalf
	// of an already-resolved sender.
	r.Route("/internal/v1/notifications", func(r chi.Router) {
		r.Post("/", h.CreateNotification)
		r.Post("/batch", h.CreateNotificationsBatch)
	})

	// Recipient-facing surface.
	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(middleware.RequireUser)

		r.Get("/", h.ListNotifications)
		r.Get("/unread/count", h.CountUnread)
		r.Patch("/{id}/read", h.MarkAsRead)
		r.Patch("/read-all", h.MarkAllAsRead)
		r.Delete("/{id}", h.DeleteNotification)
		r.Delete("/read", h.DeleteAllRead)

		r.Get("/preferences", h.GetPreference)
		r.Post("/preferences", h.UpsertPreference)
		r.Delete("/preferences", h.DeletePreference)

		r.Get("/ws", wsHandler.HandleNotifications)
	})
	return r
}
