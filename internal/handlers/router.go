package handlers

import (
	"net/http"
	"time"

	"devlink-realtime/internal/config"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the realtime endpoints. Connection attempts on both
// transports share one per-IP limit.
func NewRouter(cfg *config.Config, wsHandlers *WebSocketHandlers, pollingHandlers *PollingHandlers, presenceHandlers *PresenceHandlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: !allowsAnyOrigin(cfg.Server.CORSOrigins),
		MaxAge:           300,
	}))

	r.Get("/health", presenceHandlers.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/presence", presenceHandlers.GetOnlineUsers)

	limit := connectionLimit(cfg.Socket.RateLimit)
	r.Route("/socket", func(r chi.Router) {
		r.With(limit).Get("/", wsHandlers.HandleWebSocket)

		r.Route("/polling", func(r chi.Router) {
			r.With(limit).Get("/", pollingHandlers.Poll)
			r.Post("/", pollingHandlers.Push)
			r.Delete("/", pollingHandlers.Close)
		})
	})

	return r
}

// connectionLimit applies only to handshakes; long-poll GETs on an open
// session carry a sid and pass through.
func connectionLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("sid") != "" {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
