// Package httpx provides the HTTP API for renewal-risk calculations and renewal events.
package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/target/renewal-risk-api/internal/domain/model"
)

// CalculationService is the calculation surface the handlers need.
type CalculationService interface {
	StartCalculation(ctx context.Context, propertyID, asOfDate string) (*model.CalculationJob, error)
	GetJob(ctx context.Context, id string) (*model.CalculationJob, error)
	LatestScores(ctx context.Context, propertyID string) ([]model.ResidentRisk, error)
}

// RenewalEventService triggers renewal events.
type RenewalEventService interface {
	TriggerRenewalEvent(ctx context.Context, propertyID, residentID string) (*model.TriggerResult, error)
}

// RenewalRiskHandlers serves the renewal-risk API.
type RenewalRiskHandlers struct {
	Calculations CalculationService
	Events       RenewalEventService
	Logger       *slog.Logger
}

type calculateRequest struct {
	AsOfDate string `json:"asOfDate"`
}

type calculateResponse struct {
	Message   string `json:"message"`
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl"`
}

// Calculate starts a calculation and answers 202 with the job location.
func (h *RenewalRiskHandlers) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Calculations.StartCalculation(r.Context(), r.PathValue("propertyId"), req.AsOfDate)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, calculateResponse{
		Message:   "Calculation started",
		JobID:     job.ID,
		StatusURL: "/api/v1/jobs/" + job.ID,
	})
}

// GetJob returns a calculation job.
func (h *RenewalRiskHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Calculations.GetJob(r.Context(), r.PathValue("jobId"))
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// LatestScores returns the property's newest snapshot, highest risk first.
func (h *RenewalRiskHandlers) LatestScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.Calculations.LatestScores(r.Context(), r.PathValue("propertyId"))
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, scores)
}

// TriggerRenewalEvent emits the renewal event for one resident.
func (h *RenewalRiskHandlers) TriggerRenewalEvent(w http.ResponseWriter, r *http.Request) {
	res, err := h.Events.TriggerRenewalEvent(r.Context(), r.PathValue("propertyId"), r.PathValue("residentId"))
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
