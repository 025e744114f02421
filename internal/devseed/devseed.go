// Package devseed loads a demo property whose residents land in every risk tier.
// Rows use name-derived UUIDs so seeding twice leaves the data unchanged.
package devseed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/target/renewal-risk-api/internal/data/pgxutil"
	"github.com/target/renewal-risk-api/internal/domain/model"
	"github.com/target/renewal-risk-api/internal/domain/scoring"
)

// namespace scopes every generated id to the demo dataset.
var namespace = uuid.MustParse("6f1c9f5e-3b0a-4c39-9a51-6c7d2b8e4a10")

func seedID(kind, key string) string {
	return uuid.NewSHA1(namespace, []byte(kind+"/"+key)).String()
}

// Unit is a rentable unit of the demo property.
type Unit struct {
	ID     string
	Number string
}

// Dataset is everything the seeder writes.
type Dataset struct {
	Property   model.Property
	UnitTypeID string
	Units      []Unit
	Residents  []model.Resident
	Leases     []model.Lease
	Ledger     []model.LedgerEntry
	Pricing    []model.UnitPricing
	Offers     []model.RenewalOffer
}

// demoResident describes one resident relative to the reference date.
type demoResident struct {
	unit      string
	first     string
	last      string
	leaseType model.LeaseType
	// startMonths and endDays offset the lease window from the reference date.
	startMonths int
	endDays     int
	rent        float64
	market      float64
	// missedPayments is subtracted from the payments due for the tenure.
	missedPayments int
	hasOffer       bool
}

var demoResidents = []demoResident{
	// high: expiring soon, behind on rent, no offer, under market
	{unit: "101", first: "Jane", last: "Doe", leaseType: model.LeaseTypeFixed,
		startMonths: -11, endDays: 45, rent: 1400, market: 1600, missedPayments: 5},
	{unit: "105", first: "Maria", last: "Garcia", leaseType: model.LeaseTypeFixed,
		startMonths: -12, endDays: 20, rent: 1350, market: 1550},
	// medium
	{unit: "102", first: "John", last: "Smith", leaseType: model.LeaseTypeFixed,
		startMonths: -12, endDays: 60, rent: 1500, market: 1550},
	{unit: "103", first: "Alice", last: "Johnson", leaseType: model.LeaseTypeMonthToMonth,
		startMonths: -15, endDays: -90, rent: 1450, market: 1500},
	// low: long runway and an offer already out
	{unit: "104", first: "Bob", last: "Williams", leaseType: model.LeaseTypeFixed,
		startMonths: -4, endDays: 240, rent: 1500, market: 1500, hasOffer: true},
}

func strptr(s string) *string { return &s }

// Plan builds the demo dataset for a reference date. Dates are whole UTC days.
func Plan(ref time.Time) Dataset {
	ref = time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	propertyID := seedID("property", "park-meadows")

	ds := Dataset{
		Property: model.Property{
			ID:      propertyID,
			Name:    "Park Meadows Apartments",
			Address: strptr("123 Main St"),
			City:    strptr("Austin"),
			State:   strptr("TX"),
			ZipCode: strptr("78701"),
			Status:  model.StatusActive,
		},
		UnitTypeID: seedID("unit-type", "1b1b"),
	}

	for _, r := range demoResidents {
		unit := Unit{ID: seedID("unit", r.unit), Number: r.unit}
		residentID := seedID("resident", r.unit)
		lease := model.Lease{
			ID:             seedID("lease", r.unit),
			PropertyID:     propertyID,
			ResidentID:     residentID,
			UnitID:         unit.ID,
			LeaseStartDate: ref.AddDate(0, r.startMonths, 0),
			LeaseEndDate:   ref.AddDate(0, 0, r.endDays),
			MonthlyRent:    r.rent,
			LeaseType:      r.leaseType,
			Status:         model.StatusActive,
		}

		ds.Units = append(ds.Units, unit)
		ds.Residents = append(ds.Residents, model.Resident{
			ID:         residentID,
			PropertyID: propertyID,
			UnitID:     unit.ID,
			UnitNumber: r.unit,
			FirstName:  r.first,
			LastName:   r.last,
			Email:      strptr(fmt.Sprintf("%s.%s@example.com", r.first, r.last)),
			Status:     model.StatusActive,
		})
		ds.Leases = append(ds.Leases, lease)

		paid := max(0, scoring.MonthsOnLease(lease.LeaseStartDate, ref)-r.missedPayments)
		for i := range paid {
			ds.Ledger = append(ds.Ledger, model.LedgerEntry{
				ID:              seedID("ledger", fmt.Sprintf("%s/%d", r.unit, i)),
				PropertyID:      propertyID,
				ResidentID:      residentID,
				TransactionType: model.TransactionTypePayment,
				ChargeCode:      strptr(model.ChargeCodeRent),
				Amount:          r.rent,
				TransactionDate: lease.LeaseStartDate.AddDate(0, i, 0),
			})
		}

		// An older quote below the current one so the latest-quote lookup matters.
		ds.Pricing = append(ds.Pricing,
			model.UnitPricing{
				ID:            seedID("pricing", r.unit+"/prior"),
				UnitID:        unit.ID,
				BaseRent:      r.rent,
				MarketRent:    r.rent,
				EffectiveDate: ref.AddDate(-1, 0, 0),
			},
			model.UnitPricing{
				ID:            seedID("pricing", r.unit+"/current"),
				UnitID:        unit.ID,
				BaseRent:      r.rent,
				MarketRent:    r.market,
				EffectiveDate: ref.AddDate(0, -1, 0),
			},
		)

		if r.hasOffer {
			ds.Offers = append(ds.Offers, model.RenewalOffer{
				ID:               seedID("offer", r.unit),
				PropertyID:       propertyID,
				ResidentID:       residentID,
				LeaseID:          lease.ID,
				RenewalStartDate: lease.LeaseEndDate,
				Status:           model.OfferStatusPending,
			})
		}
	}

	return ds
}

type statement struct {
	query string
	args  []any
}

const (
	insertProperty = `INSERT INTO properties (id, name, address, city, state, zip_code, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`
	insertUnitType = `INSERT INTO unit_types (id, property_id, name, bedrooms, bathrooms, square_footage)
		VALUES ($1, $2, $3, 1, 1.0, 700) ON CONFLICT (id) DO NOTHING`
	insertUnit = `INSERT INTO units (id, property_id, unit_type_id, unit_number, floor, status)
		VALUES ($1, $2, $3, $4, 1, 'occupied') ON CONFLICT (id) DO NOTHING`
	insertResident = `INSERT INTO residents (id, property_id, unit_id, first_name, last_name, email, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`
	insertLease = `INSERT INTO leases
		(id, property_id, resident_id, unit_id, lease_start_date, lease_end_date, monthly_rent, lease_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (id) DO NOTHING`
	insertLedger = `INSERT INTO resident_ledger
		(id, property_id, resident_id, transaction_type, charge_code, amount, transaction_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`
	insertPricing = `INSERT INTO unit_pricing (id, unit_id, base_rent, market_rent, effective_date)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`
	insertOffer = `INSERT INTO renewal_offers (id, property_id, resident_id, lease_id, renewal_start_date, status)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`
)

// statements lists the inserts in foreign-key order.
func (d Dataset) statements() []statement {
	p := d.Property
	out := []statement{
		{insertProperty, []any{p.ID, p.Name, p.Address, p.City, p.State, p.ZipCode, p.Status}},
		{insertUnitType, []any{d.UnitTypeID, p.ID, "1 Bed / 1 Bath"}},
	}
	for _, u := range d.Units {
		out = append(out, statement{insertUnit, []any{u.ID, p.ID, d.UnitTypeID, u.Number}})
	}
	for _, r := range d.Residents {
		out = append(out, statement{insertResident,
			[]any{r.ID, r.PropertyID, r.UnitID, r.FirstName, r.LastName, r.Email, r.Status}})
	}
	for _, l := range d.Leases {
		out = append(out, statement{insertLease, []any{
			l.ID, l.PropertyID, l.ResidentID, l.UnitID,
			l.LeaseStartDate, l.LeaseEndDate, l.MonthlyRent, string(l.LeaseType), l.Status,
		}})
	}
	for _, e := range d.Ledger {
		out = append(out, statement{insertLedger, []any{
			e.ID, e.PropertyID, e.ResidentID, e.TransactionType, e.ChargeCode, e.Amount, e.TransactionDate,
		}})
	}
	for _, q := range d.Pricing {
		out = append(out, statement{insertPricing, []any{q.ID, q.UnitID, q.BaseRent, q.MarketRent, q.EffectiveDate}})
	}
	for _, o := range d.Offers {
		out = append(out, statement{insertOffer,
			[]any{o.ID, o.PropertyID, o.ResidentID, o.LeaseID, o.RenewalStartDate, o.Status}})
	}
	return out
}

// Options configures Seed.
type Options struct {
	// Reference anchors lease and payment dates; defaults to today.
	Reference time.Time
	Logger    *slog.Logger
}

// Seed writes the demo dataset in one transaction and returns what was planned.
func Seed(ctx context.Context, db *sql.DB, opts Options) (Dataset, error) {
	if db == nil {
		return Dataset{}, errors.New("database is required")
	}
	ref := opts.Reference
	if ref.IsZero() {
		ref = time.Now()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ds := Plan(ref)
	err := pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		for _, st := range ds.statements() {
			if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
		}
		return nil
	}})
	if err != nil {
		return Dataset{}, err
	}

	logger.InfoContext(ctx, "seeded demo property",
		"property_id", ds.Property.ID,
		"residents", len(ds.Residents),
		"ledger_entries", len(ds.Ledger))
	return ds, nil
}
