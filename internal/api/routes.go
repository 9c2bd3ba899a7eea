package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/dispatch/internal/pkg/logger"
)

// SetupRoutes configures all routes. Administrative routes carry no auth
// here; deploy them behind the internal load balancer.
func SetupRoutes(h *Handlers, hc *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/ready", hc.HandleReadiness)
	}

	r.Post("/subscribe", h.HandleSubscribe)
	r.Get("/unsubscribe/{dispatchID}/{token}", h.HandleUnsubscribeCheck)
	r.Post("/unsubscribe/{dispatchID}/{token}", h.HandleUnsubscribe)

	r.Route("/dispatches", func(r chi.Router) {
		r.Get("/", h.HandleListDispatches)
		r.Post("/", h.HandleCreateDispatch)
		r.Get("/{id}", h.HandleGetDispatch)
		r.Post("/{id}/cancel", h.HandleCancelDispatch)
	})
	r.Route("/lists", func(r chi.Router) {
		r.Post("/", h.HandleCreateList)
		r.Post("/{listID}/members", h.HandleAddMember)
		r.Post("/{listID}/dispatches", h.HandleDispatchToList)
	})
	r.Post("/objects/{contentType}/{objectID}/cancel", h.HandleCancelForObject)
	r.Get("/content-types", h.HandleContentTypes)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
