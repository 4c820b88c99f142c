package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/allocator/internal/api/handlers"
	"github.com/wonny/allocator/pkg/logger"
)

// Handlers groups the endpoint handlers; Import is nil when no database is configured
type Handlers struct {
	Assets *handlers.AssetHandler
	Solve  *handlers.SolveHandler
	Import *handlers.ImportHandler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, metricsEnabled bool, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Asset lookup; search is registered before {kind} so it is not taken for a kind
	api.HandleFunc("/assets/search", h.Assets.Search).Methods("GET")
	api.HandleFunc("/assets/{kind}", h.Assets.GetAssets).Methods("GET")
	api.HandleFunc("/price/{asset}", h.Assets.GetPrice).Methods("GET")
	r.HandleFunc("/ws/search", h.Assets.ServeSearchWS).Methods("GET")

	// Allocation
	api.HandleFunc("/solve", h.Solve.Solve).Methods("POST")
	r.HandleFunc("/ws/solve", h.Solve.ServeWS).Methods("GET")

	// Imported portfolios
	if h.Import != nil {
		api.HandleFunc("/import", h.Import.Import).Methods("POST")
		api.HandleFunc("/import/{id}", h.Import.GetImported).Methods("GET")
	} else {
		api.PathPrefix("/import").HandlerFunc(importDisabledHandler)
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "dcapal-api",
	})
}

func importDisabledHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "Portfolio import is not configured",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
