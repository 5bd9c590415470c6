package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/emotrack/backend/internal/handler/capture"
	"github.com/zhouzirui/emotrack/backend/internal/handler/session"
	middlewarePkg "github.com/zhouzirui/emotrack/backend/internal/middleware"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
	captureService "github.com/zhouzirui/emotrack/backend/internal/service/capture"
	"github.com/zhouzirui/emotrack/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the session store and the capture hub.
func NewRouter(store tracking.Store, hub *captureService.Hub, listLimit int) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	sessionHandler := session.New(store, hub.Normalizer(), listLimit)
	captureHandler := capture.New(hub)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"activeCaptures": hub.Active(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		// Register session store routes
		sessionHandler.RegisterRoutes(api)

		// Register capture routes
		captureHandler.RegisterRoutes(api)
	})

	return r
}
