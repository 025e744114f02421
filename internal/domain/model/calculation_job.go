package model

import (
	"errors"
	"strings"
	"time"
)

// CalculationJobStatus represents the lifecycle state of a risk calculation job.
type CalculationJobStatus string

const (
	// CalculationJobStatusProcessing indicates the job is running in the background.
	CalculationJobStatusProcessing CalculationJobStatus = "processing"
	// CalculationJobStatusCompleted indicates every chunk was written.
	CalculationJobStatusCompleted CalculationJobStatus = "completed"
	// CalculationJobStatusFailed indicates the job stopped on an error.
	CalculationJobStatusFailed CalculationJobStatus = "failed"
)

// Valid returns true if the status is known.
func (s CalculationJobStatus) Valid() bool {
	return s == CalculationJobStatusProcessing || s == CalculationJobStatusCompleted ||
		s == CalculationJobStatusFailed
}

// Terminal reports whether no further transitions are allowed.
func (s CalculationJobStatus) Terminal() bool {
	return s == CalculationJobStatusCompleted || s == CalculationJobStatusFailed
}

// CalculationJob is one run of the scoring engine for a property and as-of date.
type CalculationJob struct {
	ID          string               `json:"id"                     db:"id"`
	PropertyID  string               `json:"property_id"            db:"property_id"`
	AsOfDate    string               `json:"as_of_date"             db:"as_of_date"`
	Status      CalculationJobStatus `json:"status"                 db:"status"`
	Error       *string              `json:"error,omitempty"        db:"error"`
	StartedAt   time.Time            `json:"started_at"             db:"started_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt   time.Time            `json:"updated_at"             db:"updated_at"`
}

// CreateCalculationJobRequest describes a new calculation job.
type CreateCalculationJobRequest struct {
	PropertyID string
	AsOfDate   string
}

// ErrAsOfDateRequired is returned when a calculation is requested without an as-of date.
var ErrAsOfDateRequired = errors.New("asOfDate is required")

// asOfLayouts are accepted in order; date-only values resolve to UTC midnight.
var asOfLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseAsOfDate converts the caller-supplied as-of date into the reference instant used as
// the snapshot's calculated_at.
func ParseAsOfDate(raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, ErrAsOfDateRequired
	}
	var lastErr error
	for _, layout := range asOfLayouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, errors.Join(errors.New("asOfDate must be YYYY-MM-DD or RFC 3339"), lastErr)
}

// CalculationSummary reports what a single calculation run did.
type CalculationSummary struct {
	Residents int   `json:"residents"`
	Scored    int   `json:"scored"`
	Written   int64 `json:"written"`
	Chunks    int   `json:"chunks"`
}
