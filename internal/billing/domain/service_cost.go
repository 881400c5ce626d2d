package billing

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// ServiceCostRecord is one interval of a service's price history.
// The interval is [EffectiveFrom, EffectiveTo); a nil EffectiveTo is open-ended.
type ServiceCostRecord struct {
	ID            string          `json:"id"`
	HostelID      string          `json:"hostel_id"`
	ServiceID     string          `json:"service_id"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	Unit          Unit            `json:"unit"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Validate checks record invariants.
func (r ServiceCostRecord) Validate() error {
	if r.HostelID == "" || r.ServiceID == "" {
		return errors.Wrap(ErrEmptyID, "price record requires hostel and service")
	}
	if r.UnitCost.IsNegative() {
		return errors.Wrapf(ErrNegativeValue, "unit cost %s", r.UnitCost.String())
	}
	if r.EffectiveFrom.IsZero() {
		return errors.Wrap(ErrInvalidPriceChange, "effective_from required")
	}
	if r.EffectiveTo != nil && !DateOnly(*r.EffectiveTo).After(DateOnly(r.EffectiveFrom)) {
		return errors.Wrap(ErrInvalidPriceChange, "effective_to must be after effective_from")
	}
	return nil
}

// IsOpen reports whether the record has no end date.
func (r ServiceCostRecord) IsOpen() bool {
	return r.EffectiveTo == nil
}

// Covers reports whether date falls in [EffectiveFrom, EffectiveTo) at day granularity.
func (r ServiceCostRecord) Covers(date time.Time) bool {
	day := DateOnly(date)
	if DateOnly(r.EffectiveFrom).After(day) {
		return false
	}
	if r.EffectiveTo == nil {
		return true
	}
	return DateOnly(*r.EffectiveTo).After(day)
}

// Clone returns a deep copy.
func (r ServiceCostRecord) Clone() ServiceCostRecord {
	out := r
	if r.EffectiveTo != nil {
		to := *r.EffectiveTo
		out.EffectiveTo = &to
	}
	return out
}

// SelectApplicable picks the record covering date.
// With overlapping history the record with the latest EffectiveFrom wins; matches reports
// how many records covered the date so callers can flag the anomaly.
func SelectApplicable(records []ServiceCostRecord, date time.Time) (record ServiceCostRecord, matches int, ok bool) {
	var candidates []ServiceCostRecord
	for _, r := range records {
		if r.Covers(date) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return ServiceCostRecord{}, 0, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EffectiveFrom.After(candidates[j].EffectiveFrom)
	})
	return candidates[0], len(candidates), true
}

// OpenRecord returns the open-ended record of a history, if any.
func OpenRecord(records []ServiceCostRecord) (ServiceCostRecord, bool) {
	for _, r := range records {
		if r.IsOpen() {
			return r, true
		}
	}
	return ServiceCostRecord{}, false
}

// PriceChange opens a new price for a service.
type PriceChange struct {
	HostelID      string
	ServiceID     string
	UnitCost      decimal.Decimal
	Unit          Unit
	EffectiveFrom time.Time
}

// PlanPriceChange validates a change against the current open record and returns
// the closed predecessor (nil for a first price) and the new open record.
func PlanPriceChange(change PriceChange, open *ServiceCostRecord, id string, now time.Time) (*ServiceCostRecord, ServiceCostRecord, error) {
	next := ServiceCostRecord{
		ID:            id,
		HostelID:      change.HostelID,
		ServiceID:     change.ServiceID,
		UnitCost:      change.UnitCost,
		Unit:          change.Unit,
		EffectiveFrom: DateOnly(change.EffectiveFrom),
		CreatedAt:     now.UTC(),
	}
	if next.Unit != "" && !next.Unit.Valid() {
		return nil, ServiceCostRecord{}, errors.Wrapf(ErrInvalidPriceChange, "unknown unit %q", next.Unit)
	}
	if err := next.Validate(); err != nil {
		return nil, ServiceCostRecord{}, err
	}
	if open == nil {
		return nil, next, nil
	}
	if !next.EffectiveFrom.After(DateOnly(open.EffectiveFrom)) {
		return nil, ServiceCostRecord{}, errors.Wrapf(ErrInvalidPriceChange,
			"effective_from %s must be after current price start %s",
			next.EffectiveFrom.Format(dateLayout), DateOnly(open.EffectiveFrom).Format(dateLayout))
	}
	if next.Unit == "" {
		next.Unit = open.Unit
	}
	closed := open.Clone()
	closeAt := next.EffectiveFrom
	closed.EffectiveTo = &closeAt
	return &closed, next, nil
}
