package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/target/renewal-risk-api/config"
	"github.com/target/renewal-risk-api/internal/adapters/rmsclient"
	"github.com/target/renewal-risk-api/internal/domain/model"
	httpx "github.com/target/renewal-risk-api/internal/http"
)

// receiver plays the RMS side of the renewal webhook.
type receiver struct {
	failRate float64
	delay    time.Duration
	roll     func() float64
	logger   *slog.Logger
}

func newReceiver(cfg config.MockRMSConfig, logger *slog.Logger) *receiver {
	return &receiver{
		failRate: cfg.FailRate,
		delay:    time.Duration(cfg.DelayMS) * time.Millisecond,
		roll:     rand.Float64,
		logger:   logger.With("component", "mock_rms"),
	}
}

type ackResponse struct {
	Received bool   `json:"received"`
	EventID  string `json:"eventId"`
}

func (rv *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	eventID := r.Header.Get(rmsclient.HeaderEventID)
	if eventID == "" {
		eventID = "unknown"
	}
	shouldFail := rv.roll() < rv.failRate

	if rv.delay > 0 {
		select {
		case <-time.After(rv.delay):
		case <-r.Context().Done():
			return
		}
	}

	if shouldFail {
		rv.logger.WarnContext(r.Context(), "rejected event", "event_id", eventID)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Simulated RMS failure"})
		return
	}

	attrs := []any{"event_id", eventID}
	var payload model.RenewalEventPayload
	if json.Unmarshal(body, &payload) == nil {
		attrs = append(attrs,
			"resident_id", payload.ResidentID,
			"property_id", payload.PropertyID,
			"risk_score", payload.Data.RiskScore,
			"risk_tier", payload.Data.RiskTier,
		)
	}
	rv.logger.InfoContext(r.Context(), "accepted event", attrs...)

	httpx.WriteJSON(w, http.StatusOK, ackResponse{Received: true, EventID: eventID})
}
