// Package memstore is an in-memory implementation of the core repository ports for tests.
// It follows the same claim and upsert rules as the Postgres repositories.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/renewal-risk-api/internal/core"
	"github.com/target/renewal-risk-api/internal/data"
	"github.com/target/renewal-risk-api/internal/domain/model"
)

// Store holds every table. Its repository views share one mutex.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	properties map[string]model.Property
	residents  map[string]model.Resident
	leases     []model.Lease
	ledger     []model.LedgerEntry
	pricing    []model.UnitPricing
	offers     []model.RenewalOffer
	scores     []model.RiskScore
	jobs       map[string]model.CalculationJob
	deliveries map[string]model.WebhookDelivery
	deadLetter []model.DeadLetterEntry

	// Failure injection.
	UpsertErr        error
	RecordAttemptErr error
	ClaimDueErr      error
	CreateOfferErr   error
	CompleteJobErr   error
}

// New creates an empty store. now may be nil to use the wall clock.
func New(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		now:        now,
		properties: map[string]model.Property{},
		residents:  map[string]model.Resident{},
		jobs:       map[string]model.CalculationJob{},
		deliveries: map[string]model.WebhookDelivery{},
	}
}

// Compile-time conformance.
var (
	_ core.PropertyRepository       = PropertyRepo{}
	_ core.ResidentRepository       = ResidentRepo{}
	_ core.LeaseRepository          = LeaseRepo{}
	_ core.LedgerRepository         = LedgerRepo{}
	_ core.PricingRepository        = PricingRepo{}
	_ core.RenewalOfferRepository   = OfferRepo{}
	_ core.RiskScoreRepository      = ScoreRepo{}
	_ core.CalculationJobRepository = JobRepo{}
	_ core.DeliveryRepository       = DeliveryRepo{}
	_ core.DeadLetterRepository     = DeadLetterRepo{}
)

// Seeding.

func (s *Store) AddProperty(p model.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[p.ID] = p
}

func (s *Store) AddResident(r model.Resident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Status == "" {
		r.Status = model.StatusActive
	}
	s.residents[r.ID] = r
}

func (s *Store) AddLease(l model.Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.Status == "" {
		l.Status = model.StatusActive
	}
	s.leases = append(s.leases, l)
}

func (s *Store) AddLedgerEntry(e model.LedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, e)
}

func (s *Store) AddPricing(p model.UnitPricing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pricing = append(s.pricing, p)
}

func (s *Store) AddOffer(o model.RenewalOffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, o)
}

func (s *Store) AddScore(sc model.RiskScore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	s.scores = append(s.scores, sc)
}

// PutDelivery stores d as-is, replacing any row with the same id.
func (s *Store) PutDelivery(d model.WebhookDelivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.ID] = d
}

// Inspection.

func (s *Store) Scores() []model.RiskScore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.scores)
}

func (s *Store) Offers() []model.RenewalOffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.offers)
}

func (s *Store) DeadLetters() []model.DeadLetterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deadLetter)
}

func (s *Store) Job(id string) (model.CalculationJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *Store) DeliveryByEvent(eventID string) (model.WebhookDelivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deliveries {
		if d.EventID == eventID {
			return d, true
		}
	}
	return model.WebhookDelivery{}, false
}

// Repository views.

func (s *Store) Properties() PropertyRepo        { return PropertyRepo{s} }
func (s *Store) Residents() ResidentRepo         { return ResidentRepo{s} }
func (s *Store) Leases() LeaseRepo               { return LeaseRepo{s} }
func (s *Store) Ledger() LedgerRepo              { return LedgerRepo{s} }
func (s *Store) Pricing() PricingRepo            { return PricingRepo{s} }
func (s *Store) RenewalOffers() OfferRepo        { return OfferRepo{s} }
func (s *Store) RiskScores() ScoreRepo           { return ScoreRepo{s} }
func (s *Store) CalculationJobs() JobRepo        { return JobRepo{s} }
func (s *Store) WebhookDeliveries() DeliveryRepo { return DeliveryRepo{s} }
func (s *Store) DeadLetterQueue() DeadLetterRepo { return DeadLetterRepo{s} }

type PropertyRepo struct{ s *Store }

func (r PropertyRepo) GetByID(_ context.Context, id string) (*model.Property, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.properties[id]
	if !ok {
		return nil, data.ErrPropertyNotFound
	}
	return &p, nil
}

func (r PropertyRepo) List(_ context.Context) ([]*model.Property, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.Property, 0, len(r.s.properties))
	for _, p := range r.s.properties {
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type ResidentRepo struct{ s *Store }

func (r ResidentRepo) ListActiveByProperty(_ context.Context, propertyID string) ([]*model.Resident, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Resident
	for _, res := range r.s.residents {
		if res.PropertyID == propertyID && res.Status == model.StatusActive {
			out = append(out, &res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r ResidentRepo) GetInProperty(_ context.Context, propertyID, residentID string) (*model.Resident, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.residents[residentID]
	if !ok || res.PropertyID != propertyID {
		return nil, data.ErrResidentNotFound
	}
	return &res, nil
}

type LeaseRepo struct{ s *Store }

func (r LeaseRepo) ListActiveByResidents(_ context.Context, residentIDs []string) ([]*model.Lease, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Lease
	for _, l := range r.s.leases {
		if l.Status == model.StatusActive && slices.Contains(residentIDs, l.ResidentID) {
			out = append(out, &l)
		}
	}
	return out, nil
}

func (r LeaseRepo) GetActiveForResident(_ context.Context, residentID string) (*model.Lease, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *model.Lease
	for _, l := range r.s.leases {
		if l.ResidentID != residentID || l.Status != model.StatusActive {
			continue
		}
		if best == nil || l.LeaseEndDate.After(best.LeaseEndDate) {
			best = &l
		}
	}
	if best == nil {
		return nil, data.ErrLeaseNotFound
	}
	return best, nil
}

type LedgerRepo struct{ s *Store }

func (r LedgerRepo) ListRentPaymentsByResidents(_ context.Context, residentIDs []string) ([]*model.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.LedgerEntry
	for _, e := range r.s.ledger {
		if e.TransactionType != model.TransactionTypePayment || e.ChargeCode == nil || *e.ChargeCode != model.ChargeCodeRent {
			continue
		}
		if slices.Contains(residentIDs, e.ResidentID) {
			out = append(out, &e)
		}
	}
	return out, nil
}

type PricingRepo struct{ s *Store }

func (r PricingRepo) ListByUnitsLatestFirst(_ context.Context, unitIDs []string) ([]*model.UnitPricing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.UnitPricing
	for _, p := range r.s.pricing {
		if slices.Contains(unitIDs, p.UnitID) {
			out = append(out, &p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UnitID != out[j].UnitID {
			return out[i].UnitID < out[j].UnitID
		}
		return out[i].EffectiveDate.After(out[j].EffectiveDate)
	})
	return out, nil
}

type OfferRepo struct{ s *Store }

func (r OfferRepo) ListByResidents(_ context.Context, residentIDs []string) ([]*model.RenewalOffer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.RenewalOffer
	for _, o := range r.s.offers {
		if slices.Contains(residentIDs, o.ResidentID) {
			out = append(out, &o)
		}
	}
	return out, nil
}

func (r OfferRepo) ExistsForLease(_ context.Context, residentID, leaseID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.offers {
		if o.ResidentID == residentID && o.LeaseID == leaseID {
			return true, nil
		}
	}
	return false, nil
}

func (r OfferRepo) Create(_ context.Context, req model.CreateRenewalOfferRequest) (*model.RenewalOffer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.CreateOfferErr != nil {
		return nil, r.s.CreateOfferErr
	}
	for _, existing := range r.s.offers {
		if existing.ResidentID == req.ResidentID && existing.LeaseID == req.LeaseID {
			return nil, data.ErrRenewalOfferExists
		}
	}
	o := model.RenewalOffer{
		ID:               uuid.NewString(),
		PropertyID:       req.PropertyID,
		ResidentID:       req.ResidentID,
		LeaseID:          req.LeaseID,
		RenewalStartDate: req.RenewalStartDate,
		Status:           req.Status,
		CreatedAt:        r.s.now(),
	}
	r.s.offers = append(r.s.offers, o)
	return &o, nil
}

type ScoreRepo struct{ s *Store }

func (r ScoreRepo) UpsertBatch(_ context.Context, scores []model.RiskScore) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.UpsertErr != nil {
		return 0, r.s.UpsertErr
	}
	var n int64
	for _, in := range scores {
		idx := slices.IndexFunc(r.s.scores, func(e model.RiskScore) bool {
			return e.ResidentID == in.ResidentID && e.CalculatedAt.Equal(in.CalculatedAt)
		})
		if idx < 0 {
			in.ID = uuid.NewString()
			r.s.scores = append(r.s.scores, in)
			n++
			continue
		}
		in.ID = r.s.scores[idx].ID
		in.CalculatedAt = r.s.scores[idx].CalculatedAt
		if sameScoredValues(r.s.scores[idx], in) {
			continue
		}
		r.s.scores[idx] = in
		n++
	}
	return n, nil
}

func sameScoredValues(a, b model.RiskScore) bool {
	return a.PropertyID == b.PropertyID && a.LeaseID == b.LeaseID && a.Score == b.Score &&
		a.Tier == b.Tier && a.DaysToExpiry == b.DaysToExpiry && a.Signals == b.Signals
}

func (r ScoreRepo) LatestForProperty(_ context.Context, propertyID string) ([]model.ResidentRisk, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest time.Time
	for _, sc := range r.s.scores {
		if sc.PropertyID == propertyID && sc.CalculatedAt.After(latest) {
			latest = sc.CalculatedAt
		}
	}
	out := []model.ResidentRisk{}
	for _, sc := range r.s.scores {
		if sc.PropertyID != propertyID || !sc.CalculatedAt.Equal(latest) {
			continue
		}
		res := r.s.residents[sc.ResidentID]
		out = append(out, model.ResidentRisk{
			ResidentID:   sc.ResidentID,
			Name:         res.DisplayName(),
			UnitID:       res.UnitNumber,
			RiskScore:    sc.Score,
			RiskTier:     sc.Tier,
			DaysToExpiry: sc.DaysToExpiry,
			Signals:      sc.Signals,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].ResidentID < out[j].ResidentID
	})
	return out, nil
}

func (r ScoreRepo) LatestForResident(_ context.Context, residentID string) (*model.RiskScore, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *model.RiskScore
	for _, sc := range r.s.scores {
		if sc.ResidentID != residentID {
			continue
		}
		if best == nil || sc.CalculatedAt.After(best.CalculatedAt) {
			best = &sc
		}
	}
	if best == nil {
		return nil, data.ErrRiskScoreNotFound
	}
	return best, nil
}

type JobRepo struct{ s *Store }

func (r JobRepo) Create(_ context.Context, req model.CreateCalculationJobRequest) (*model.CalculationJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if req.PropertyID == "" {
		return nil, data.ErrPropertyIDRequired
	}
	now := r.s.now()
	j := model.CalculationJob{
		ID:         uuid.NewString(),
		PropertyID: req.PropertyID,
		AsOfDate:   req.AsOfDate,
		Status:     model.CalculationJobStatusProcessing,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	r.s.jobs[j.ID] = j
	return &j, nil
}

func (r JobRepo) GetByID(_ context.Context, id string) (*model.CalculationJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, data.ErrCalculationJobNotFound
	}
	return &j, nil
}

func (r JobRepo) Complete(_ context.Context, id string) (bool, error) {
	if r.s.CompleteJobErr != nil {
		return false, r.s.CompleteJobErr
	}
	return r.finish(id, model.CalculationJobStatusCompleted, nil)
}

func (r JobRepo) Fail(_ context.Context, id, errMsg string) (bool, error) {
	return r.finish(id, model.CalculationJobStatusFailed, &errMsg)
}

func (r JobRepo) finish(id string, status model.CalculationJobStatus, errMsg *string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok || j.Status != model.CalculationJobStatusProcessing {
		return false, nil
	}
	now := r.s.now()
	j.Status = status
	j.Error = errMsg
	j.CompletedAt = &now
	j.UpdatedAt = now
	r.s.jobs[id] = j
	return true, nil
}

type DeliveryRepo struct{ s *Store }

func (r DeliveryRepo) byEvent(eventID string) (model.WebhookDelivery, bool) {
	for _, d := range r.s.deliveries {
		if d.EventID == eventID {
			return d, true
		}
	}
	return model.WebhookDelivery{}, false
}

func (r DeliveryRepo) GetByEventID(_ context.Context, eventID string) (*model.WebhookDelivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.byEvent(eventID)
	if !ok {
		return nil, data.ErrDeliveryNotFound
	}
	return &d, nil
}

func (r DeliveryRepo) CreateClaimed(
	_ context.Context,
	req model.CreateDeliveryRequest,
) (*model.WebhookDelivery, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d, ok := r.byEvent(req.EventID); ok {
		return &d, false, nil
	}
	now := req.Now
	claim := req.ClaimUntil
	d := model.WebhookDelivery{
		ID:           uuid.NewString(),
		PropertyID:   req.PropertyID,
		ResidentID:   req.ResidentID,
		EventType:    req.EventType,
		EventID:      req.EventID,
		Payload:      slices.Clone(req.Payload),
		Status:       model.DeliveryStatusPending,
		NextRetryAt:  &now,
		ClaimedUntil: &claim,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.deliveries[d.ID] = d
	return &d, true, nil
}

func claimed(d model.WebhookDelivery, now time.Time) bool {
	return d.ClaimedUntil != nil && !d.ClaimedUntil.Before(now)
}

func (r DeliveryRepo) ResetForRedelivery(
	_ context.Context,
	req model.ResetDeliveryRequest,
) (*model.WebhookDelivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.byEvent(req.EventID)
	if !ok || d.Status == model.DeliveryStatusDelivered || claimed(d, req.Now) {
		return nil, data.ErrDeliveryNotClaimable
	}
	now := req.Now
	claim := req.ClaimUntil
	d.Status = model.DeliveryStatusPending
	d.AttemptCount = 0
	d.NextRetryAt = &now
	d.RMSResponse = nil
	d.ClaimedUntil = &claim
	d.UpdatedAt = now
	r.s.deliveries[d.ID] = d
	return &d, nil
}

func (r DeliveryRepo) ClaimDue(_ context.Context, params model.ClaimDueParams) ([]*model.WebhookDelivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.ClaimDueErr != nil {
		return nil, r.s.ClaimDueErr
	}
	if params.Limit <= 0 {
		return nil, nil
	}
	var due []model.WebhookDelivery
	for _, d := range r.s.deliveries {
		if !d.Status.Retryable() || d.NextRetryAt == nil || d.NextRetryAt.After(params.Now) {
			continue
		}
		if claimed(d, params.Now) {
			continue
		}
		due = append(due, d)
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextRetryAt.Equal(*due[j].NextRetryAt) {
			return due[i].NextRetryAt.Before(*due[j].NextRetryAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > params.Limit {
		due = due[:params.Limit]
	}
	out := make([]*model.WebhookDelivery, 0, len(due))
	for _, d := range due {
		claim := params.ClaimUntil
		d.ClaimedUntil = &claim
		d.UpdatedAt = params.Now
		r.s.deliveries[d.ID] = d
		out = append(out, &d)
	}
	return out, nil
}

func (r DeliveryRepo) RecordAttempt(_ context.Context, outcome model.DeliveryOutcome) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.RecordAttemptErr != nil {
		return r.s.RecordAttemptErr
	}
	d, ok := r.s.deliveries[outcome.DeliveryID]
	if !ok || d.AttemptCount != outcome.AttemptCount-1 {
		return data.ErrDeliveryNotClaimable
	}
	last := outcome.LastAttemptAt
	d.Status = outcome.Status
	d.AttemptCount = outcome.AttemptCount
	d.LastAttemptAt = &last
	d.NextRetryAt = outcome.NextRetryAt
	d.RMSResponse = outcome.RMSResponse
	d.ClaimedUntil = nil
	d.UpdatedAt = last
	r.s.deliveries[d.ID] = d

	if outcome.Status == model.DeliveryStatusDLQ && outcome.DeadLetterReason != nil {
		r.s.deadLetter = append(r.s.deadLetter, model.DeadLetterEntry{
			ID:         uuid.NewString(),
			DeliveryID: d.ID,
			EventID:    d.EventID,
			Reason:     *outcome.DeadLetterReason,
			CreatedAt:  last,
		})
	}
	return nil
}

func (r DeliveryRepo) List(_ context.Context, opts model.ListDeliveriesOptions) ([]*model.WebhookDelivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.WebhookDelivery
	for _, d := range r.s.deliveries {
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

type DeadLetterRepo struct{ s *Store }

func (r DeadLetterRepo) List(_ context.Context, limit int) ([]*model.DeadLetterEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.DeadLetterEntry, 0, len(r.s.deadLetter))
	for i := len(r.s.deadLetter) - 1; i >= 0; i-- {
		e := r.s.deadLetter[i]
		out = append(out, &e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ErrInjected is a convenience failure for tests.
var ErrInjected = errors.New("injected failure")
