package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Calculations CalculationService
	Events       RenewalEventService
	// Metrics serves GET /metrics when set.
	Metrics         http.Handler
	CORSAllowOrigin string
	Logger          *slog.Logger // optional
	Now             func() time.Time
}

// NewRouter creates the API router wrapped in recovery, access logging and CORS.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := services.Now
	if now == nil {
		now = time.Now
	}

	mux := http.NewServeMux()
	h := &RenewalRiskHandlers{
		Calculations: services.Calculations,
		Events:       services.Events,
		Logger:       logger.With("component", "http"),
	}
	registerRenewalRiskRoutes(mux, h)

	mux.Handle("GET /health", statusHandler(now))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}

	return Chain(mux, Recover(logger), Logging(logger), CORS(services.CORSAllowOrigin))
}

func registerRenewalRiskRoutes(mux *http.ServeMux, h *RenewalRiskHandlers) {
	mux.HandleFunc("POST /api/v1/properties/{propertyId}/renewal-risk/calculate", h.Calculate)
	mux.HandleFunc("GET /api/v1/properties/{propertyId}/renewal-risk", h.LatestScores)
	mux.HandleFunc("GET /api/v1/jobs/{jobId}", h.GetJob)
	mux.HandleFunc(
		"POST /api/v1/properties/{propertyId}/residents/{residentId}/trigger-renewal-event",
		h.TriggerRenewalEvent,
	)
}
