package application

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/observability/metrics"
)

// PriceResolver reads and changes effective-dated service prices.
type PriceResolver struct {
	repo   billing.PriceRepository
	logger *zap.SugaredLogger
	now    Clock
	newID  IDGenerator
}

// NewPriceResolver constructs a resolver.
func NewPriceResolver(repo billing.PriceRepository, logger *zap.SugaredLogger) (*PriceResolver, error) {
	if repo == nil {
		return nil, errors.New("price resolver: nil repo")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PriceResolver{
		repo:   repo,
		logger: logger,
		now:    systemClock,
		newID:  func() string { return "price-" + uuid.NewString() },
	}, nil
}

// Resolve returns the price record applicable to billingDate.
func (r *PriceResolver) Resolve(ctx context.Context, hostelID, serviceID string, billingDate time.Time) (billing.ServiceCostRecord, error) {
	day := billing.DateOnly(billingDate)
	records, err := r.repo.FindCovering(ctx, hostelID, serviceID, day)
	if err != nil {
		metrics.IncPriceResolve(metrics.ResultError)
		return billing.ServiceCostRecord{}, errors.Wrapf(err, "resolve price %s/%s", hostelID, serviceID)
	}
	record, matches, ok := billing.SelectApplicable(records, day)
	if !ok {
		metrics.IncPriceResolve(metrics.ResultError)
		return billing.ServiceCostRecord{}, &billing.NoApplicablePriceError{
			HostelID:    hostelID,
			ServiceID:   serviceID,
			BillingDate: day,
		}
	}
	if matches > 1 {
		metrics.IncPriceOverlap()
		r.logger.Warnw("overlapping price records",
			"hostel_id", hostelID,
			"service_id", serviceID,
			"billing_date", day.Format("2006-01-02"),
			"matches", matches,
			"chosen_id", record.ID,
		)
	}
	metrics.IncPriceResolve(metrics.ResultSuccess)
	return record, nil
}

// ChangePrice closes the open record of the service at change.EffectiveFrom and opens the new price.
// The first price of a service only opens a record.
func (r *PriceResolver) ChangePrice(ctx context.Context, change billing.PriceChange) (billing.ServiceCostRecord, error) {
	history, err := r.repo.History(ctx, change.HostelID, change.ServiceID)
	if err != nil {
		return billing.ServiceCostRecord{}, errors.Wrap(err, "change price: load history")
	}

	var open *billing.ServiceCostRecord
	if record, ok := billing.OpenRecord(history); ok {
		open = &record
	} else if len(history) > 0 {
		// Every record is closed: the new price may not start inside the closed history.
		last := history[len(history)-1]
		if last.EffectiveTo != nil && billing.DateOnly(change.EffectiveFrom).Before(billing.DateOnly(*last.EffectiveTo)) {
			return billing.ServiceCostRecord{}, errors.Wrapf(billing.ErrInvalidPriceChange,
				"effective_from %s overlaps closed history ending %s",
				billing.DateOnly(change.EffectiveFrom).Format("2006-01-02"), last.EffectiveTo.Format("2006-01-02"))
		}
	}

	closed, next, err := billing.PlanPriceChange(change, open, r.newID(), r.now())
	if err != nil {
		return billing.ServiceCostRecord{}, err
	}
	if next.Unit == "" {
		return billing.ServiceCostRecord{}, errors.Wrap(billing.ErrInvalidPriceChange, "unit required for a first price")
	}
	if err := r.repo.ReplaceOpen(ctx, closed, next); err != nil {
		return billing.ServiceCostRecord{}, err
	}
	r.logger.Infow("service price changed",
		"hostel_id", next.HostelID,
		"service_id", next.ServiceID,
		"unit_cost", next.UnitCost.String(),
		"effective_from", next.EffectiveFrom.Format("2006-01-02"),
	)
	return next, nil
}

// History returns the price history of a service ordered by EffectiveFrom.
func (r *PriceResolver) History(ctx context.Context, hostelID, serviceID string) ([]billing.ServiceCostRecord, error) {
	if hostelID == "" || serviceID == "" {
		return nil, errors.Wrap(billing.ErrEmptyID, "price history requires hostel and service")
	}
	return r.repo.History(ctx, hostelID, serviceID)
}
