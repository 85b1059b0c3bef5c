package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every endpoint under /api/v1 plus the operational
// endpoints (/health, /metrics, /stream/alerts).
func NewRouter(h *Handlers, registry *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/events", h.SubmitEvent).Methods("POST", "OPTIONS")
	api.HandleFunc("/events", h.GetEvents).Methods("GET")
	api.HandleFunc("/events/{id}", h.GetEvent).Methods("GET")

	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}", h.GetAlert).Methods("GET")
	api.HandleFunc("/alerts/{id}", h.UpdateAlert).Methods("PUT", "OPTIONS")
	api.HandleFunc("/alerts/{id}/actions", h.PostAlertAction).Methods("POST", "OPTIONS")

	api.HandleFunc("/rules", h.GetRules).Methods("GET")
	api.HandleFunc("/rules", h.CreateRule).Methods("POST", "OPTIONS")
	api.HandleFunc("/rules/{id}", h.GetRule).Methods("GET")
	api.HandleFunc("/rules/{id}", h.UpdateRule).Methods("PUT", "OPTIONS")
	api.HandleFunc("/rules/{id}", h.DeleteRule).Methods("DELETE", "OPTIONS")

	api.HandleFunc("/channels", h.GetChannels).Methods("GET")
	api.HandleFunc("/channels", h.CreateChannel).Methods("POST", "OPTIONS")
	api.HandleFunc("/channels/{id}", h.GetChannel).Methods("GET")
	api.HandleFunc("/channels/{id}", h.UpdateChannel).Methods("PUT", "OPTIONS")
	api.HandleFunc("/channels/{id}", h.DeleteChannel).Methods("DELETE", "OPTIONS")

	api.HandleFunc("/autoresolve", h.GetAutoResolveRules).Methods("GET")
	api.HandleFunc("/autoresolve", h.CreateAutoResolveRule).Methods("POST", "OPTIONS")
	api.HandleFunc("/autoresolve/{id}", h.GetAutoResolveRule).Methods("GET")
	api.HandleFunc("/autoresolve/{id}", h.UpdateAutoResolveRule).Methods("PUT", "OPTIONS")
	api.HandleFunc("/autoresolve/{id}", h.DeleteAutoResolveRule).Methods("DELETE", "OPTIONS")

	api.HandleFunc("/dashboard", h.GetDashboard).Methods("GET")

	api.HandleFunc("/config", h.GetConfig).Methods("GET")
	api.HandleFunc("/config", h.PutConfig).Methods("PUT", "OPTIONS")

	api.HandleFunc("/stream/alerts", h.StreamAlerts)
	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
