package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// DeliveryStatus represents the lifecycle state of one webhook event.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type DeliveryStatus string

const (
	// DeliveryStatusPending is awaiting its first attempt or a manual re-delivery.
	DeliveryStatusPending DeliveryStatus = "pending"
	// DeliveryStatusFailed is the latest attempt failed; eligible for retry once next_retry_at passes.
	DeliveryStatusFailed DeliveryStatus = "failed"
	// DeliveryStatusDelivered is terminal success.
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	// DeliveryStatusDLQ is terminal; the retry budget was exhausted.
	DeliveryStatusDLQ DeliveryStatus = "dlq"
)

// Valid returns true if the status is known.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusFailed, DeliveryStatusDelivered, DeliveryStatusDLQ:
		return true
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler for DeliveryStatus.
func (s *DeliveryStatus) UnmarshalText(text []byte) error {
	v := DeliveryStatus(string(text))
	if !v.Valid() {
		return fmt.Errorf("invalid DeliveryStatus: %q", v)
	}
	*s = v
	return nil
}

// Retryable reports whether the sweep may pick the delivery up.
func (s DeliveryStatus) Retryable() bool {
	return s == DeliveryStatusPending || s == DeliveryStatusFailed
}

// EventTypeRenewalRiskFlagged is the only event type emitted to the RMS.
const EventTypeRenewalRiskFlagged = "renewal.risk_flagged"

// MaxResponseTextBytes bounds the stored RMS response or error text.
const MaxResponseTextBytes = 4 * 1024

// RenewalEventID derives the idempotency key for a risk snapshot.
func RenewalEventID(propertyID, residentID string, calculatedAt time.Time) string {
	return "evt-" + propertyID + "-" + residentID + "-" + strconv.FormatInt(calculatedAt.UnixMilli(), 10)
}

// WebhookDelivery tracks delivery of one event to the RMS.
type WebhookDelivery struct {
	ID            string          `json:"id"                      db:"id"`
	PropertyID    string          `json:"property_id"             db:"property_id"`
	ResidentID    string          `json:"resident_id"             db:"resident_id"`
	EventType     string          `json:"event_type"              db:"event_type"`
	EventID       string          `json:"event_id"                db:"event_id"`
	Payload       json.RawMessage `json:"payload"                 db:"payload"`
	Status        DeliveryStatus  `json:"status"                  db:"status"`
	AttemptCount  int             `json:"attempt_count"           db:"attempt_count"`
	LastAttemptAt *time.Time      `json:"last_attempt_at"         db:"last_attempt_at"`
	NextRetryAt   *time.Time      `json:"next_retry_at"           db:"next_retry_at"`
	RMSResponse   *string         `json:"rms_response"            db:"rms_response"`
	ClaimedUntil  *time.Time      `json:"claimed_until,omitempty" db:"claimed_until"`
	CreatedAt     time.Time       `json:"created_at"              db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"              db:"updated_at"`
}

// CreateDeliveryRequest inserts a new pending delivery that is already claimed by the caller.
type CreateDeliveryRequest struct {
	PropertyID string
	ResidentID string
	EventType  string
	EventID    string
	Payload    json.RawMessage
	Now        time.Time
	ClaimUntil time.Time
}

// ResetDeliveryRequest resets a non-delivered event to pending and claims it.
type ResetDeliveryRequest struct {
	EventID    string
	Now        time.Time
	ClaimUntil time.Time
}

// ClaimDueParams selects due deliveries for a retry sweep.
type ClaimDueParams struct {
	Now        time.Time
	ClaimUntil time.Time
	Limit      int
}

// ListDeliveriesOptions filters delivery listings.
type ListDeliveriesOptions struct {
	Status *DeliveryStatus
	Limit  int
}

// DeadLetterEntry permanently records a delivery that exhausted its retry budget.
type DeadLetterEntry struct {
	ID         string    `json:"id"          db:"id"`
	DeliveryID string    `json:"delivery_id" db:"webhook_delivery_state_id"`
	EventID    string    `json:"event_id"    db:"event_id"`
	Reason     string    `json:"reason"      db:"reason"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}

// RetryPolicy bounds how often a delivery is attempted.
type RetryPolicy struct {
	MaxRetries int
}

// Backoff returns the delay scheduled after the given number of attempts: 1s, 2s, 4s, ...
func (p RetryPolicy) Backoff(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}
	exp := attemptCount - 1
	// Cap the exponent so the shift cannot overflow int64 nanoseconds.
	const maxExp = 30
	if exp > maxExp {
		exp = maxExp
	}
	return time.Duration(math.Pow(2, float64(exp))) * time.Second
}

// AttemptResult is the raw outcome of one outbound call.
type AttemptResult struct {
	StatusCode int
	Body       string
	Err        error
}

// Succeeded reports a 2xx response without a transport error.
func (r AttemptResult) Succeeded() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Description renders the text stored in rms_response.
func (r AttemptResult) Description() string {
	switch {
	case r.Err != nil:
		return TruncateText(r.Err.Error(), MaxResponseTextBytes)
	case r.Succeeded():
		return TruncateText(r.Body, MaxResponseTextBytes)
	default:
		return TruncateText(strconv.Itoa(r.StatusCode)+": "+r.Body, MaxResponseTextBytes)
	}
}

// DeliveryOutcome is the state persisted after an attempt.
type DeliveryOutcome struct {
	DeliveryID       string
	Status           DeliveryStatus
	AttemptCount     int
	LastAttemptAt    time.Time
	NextRetryAt      *time.Time
	RMSResponse      *string
	DeadLetterReason *string
}

// ApplyAttempt folds an attempt result into d and returns the state to persist.
// The attempt count and last-attempt time advance regardless of outcome.
func (d *WebhookDelivery) ApplyAttempt(res AttemptResult, policy RetryPolicy, now time.Time) DeliveryOutcome {
	d.AttemptCount++
	attemptedAt := now
	d.LastAttemptAt = &attemptedAt
	d.ClaimedUntil = nil
	text := res.Description()
	d.RMSResponse = &text

	out := DeliveryOutcome{
		DeliveryID:    d.ID,
		AttemptCount:  d.AttemptCount,
		LastAttemptAt: attemptedAt,
		RMSResponse:   d.RMSResponse,
	}

	switch {
	case res.Succeeded():
		d.Status = DeliveryStatusDelivered
		d.NextRetryAt = nil
	case d.AttemptCount >= policy.MaxRetries:
		d.Status = DeliveryStatusDLQ
		d.NextRetryAt = nil
		reason := fmt.Sprintf("Max retries (%d) exceeded. Last response: %s", policy.MaxRetries, text)
		out.DeadLetterReason = &reason
	default:
		d.Status = DeliveryStatusFailed
		next := now.Add(policy.Backoff(d.AttemptCount))
		d.NextRetryAt = &next
	}

	out.Status = d.Status
	out.NextRetryAt = d.NextRetryAt
	return out
}

// TruncateText shortens s to at most limit bytes without splitting a UTF-8 sequence.
func TruncateText(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// RenewalEventData is the risk snapshot embedded in a renewal event.
type RenewalEventData struct {
	RiskScore    int         `json:"riskScore"`
	RiskTier     RiskTier    `json:"riskTier"`
	DaysToExpiry int         `json:"daysToExpiry"`
	Signals      RiskSignals `json:"signals"`
}

// RenewalEventPayload is the JSON body sent to the RMS.
type RenewalEventPayload struct {
	Event      string           `json:"event"`
	EventID    string           `json:"eventId"`
	Timestamp  string           `json:"timestamp"`
	PropertyID string           `json:"propertyId"`
	ResidentID string           `json:"residentId"`
	Data       RenewalEventData `json:"data"`
}

// TimestampLayout is used for payload timestamps and the X-Webhook-Timestamp header.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// NewRenewalEventPayload snapshots a risk score into an event payload.
func NewRenewalEventPayload(score RiskScore, now time.Time) RenewalEventPayload {
	return RenewalEventPayload{
		Event:      EventTypeRenewalRiskFlagged,
		EventID:    RenewalEventID(score.PropertyID, score.ResidentID, score.CalculatedAt),
		Timestamp:  now.UTC().Format(TimestampLayout),
		PropertyID: score.PropertyID,
		ResidentID: score.ResidentID,
		Data: RenewalEventData{
			RiskScore:    score.Score,
			RiskTier:     score.Tier,
			DaysToExpiry: score.DaysToExpiry,
			Signals:      score.Signals,
		},
	}
}

// Trigger response messages.
const (
	TriggerMessageCreated    = "Webhook event created"
	TriggerMessageDelivered  = "Event already delivered"
	TriggerMessageRequeued   = "Event re-queued for delivery"
	TriggerMessageInProgress = "Event delivery already in progress"
)

// TriggerResult is returned by a trigger-renewal-event request.
type TriggerResult struct {
	Message string         `json:"message"`
	EventID string         `json:"eventId"`
	Status  DeliveryStatus `json:"status"`
}

// RMSRequest is a prepared outbound webhook call.
type RMSRequest struct {
	URL       string
	EventID   string
	Timestamp time.Time
	Body      []byte
}
