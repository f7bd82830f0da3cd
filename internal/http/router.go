package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sensor-dashboard/internal/observability"
)

// NewRouter wires the dashboard routes. /health and /metrics bypass the rate
// limiter and request timeout; every dashboard route goes through both.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, timeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	app := router.NewRoute().Subrouter()
	app.Use(RateLimitMiddleware(limiter))
	app.Use(TimeoutMiddleware(timeout))
	app.HandleFunc("/", h.GetDashboard).Methods(http.MethodGet)
	app.HandleFunc("/upload", h.PostUpload).Methods(http.MethodPost)
	app.HandleFunc("/download/{variable}/{table}", h.GetDownload).Methods(http.MethodGet)
	app.HandleFunc("/api/aggregates", h.GetAggregates).Methods(http.MethodGet)
	return router
}
