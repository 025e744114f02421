package httpx

import (
	"io"
	"net/http"
	"time"

	"github.com/target/renewal-risk-api/internal/domain/model"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for readiness/liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

type healthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// statusHandler reports liveness with the server time, for dashboards.
func statusHandler(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, healthStatus{
			Status:    "ok",
			Timestamp: now().UTC().Format(model.TimestampLayout),
		})
	}
}
