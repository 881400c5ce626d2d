package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/observability/metrics"
)

const (
	rentServiceID   = "rent"
	rentServiceName = "Room rent"
	// invoice_details.quantity is NUMERIC(18,6)
	quantityPlaces = 6
)

// PriceSource resolves the applicable price of a service.
type PriceSource interface {
	Resolve(ctx context.Context, hostelID, serviceID string, billingDate time.Time) (billing.ServiceCostRecord, error)
}

// InvoiceBuilderDeps wires an InvoiceBuilder.
type InvoiceBuilderDeps struct {
	Invoices   billing.InvoiceRepository
	Readings   billing.MeterReadingRepository
	Prices     PriceSource
	Rooms      RoomDirectory
	Contracts  ContractProvider
	Catalog    ServiceCatalog
	Calculator billing.LineItemCalculator
	Locks      *KeyedExecutor
	Publisher  EventPublisher
	Reports    ReportInvalidator
	Logger     *zap.SugaredLogger
	Clock      Clock
}

// InvoiceBuilder produces one invoice per room and billing period.
type InvoiceBuilder struct {
	invoices  billing.InvoiceRepository
	readings  billing.MeterReadingRepository
	prices    PriceSource
	rooms     RoomDirectory
	contracts ContractProvider
	catalog   ServiceCatalog
	calc      billing.LineItemCalculator
	locks     *KeyedExecutor
	publisher EventPublisher
	reports   ReportInvalidator
	logger    *zap.SugaredLogger
	now       Clock
}

// NewInvoiceBuilder constructs a builder.
func NewInvoiceBuilder(deps InvoiceBuilderDeps) (*InvoiceBuilder, error) {
	switch {
	case deps.Invoices == nil:
		return nil, errors.New("invoice builder: nil invoice repo")
	case deps.Readings == nil:
		return nil, errors.New("invoice builder: nil reading repo")
	case deps.Prices == nil:
		return nil, errors.New("invoice builder: nil price source")
	case deps.Rooms == nil:
		return nil, errors.New("invoice builder: nil room directory")
	case deps.Contracts == nil:
		return nil, errors.New("invoice builder: nil contract provider")
	case deps.Catalog == nil:
		return nil, errors.New("invoice builder: nil service catalog")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Clock == nil {
		deps.Clock = systemClock
	}
	if deps.Calculator.Currency() == "" {
		deps.Calculator = billing.NewLineItemCalculator(billing.CurrencyVND)
	}
	return &InvoiceBuilder{
		invoices:  deps.Invoices,
		readings:  deps.Readings,
		prices:    deps.Prices,
		rooms:     deps.Rooms,
		contracts: deps.Contracts,
		catalog:   deps.Catalog,
		calc:      deps.Calculator,
		locks:     deps.Locks,
		publisher: deps.Publisher,
		reports:   deps.Reports,
		logger:    deps.Logger,
		now:       deps.Clock,
	}, nil
}

// Build returns the active invoice of the room and period, creating it when missing.
// An existing invoice is returned unchanged.
func (b *InvoiceBuilder) Build(ctx context.Context, roomID string, month, year int) (*billing.Invoice, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveInvoiceBuild(result, time.Since(start))
	}()

	key, err := billing.NewInvoiceKey(roomID, month, year)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	var invoice *billing.Invoice
	created := false
	err = b.locks.Do(ctx, key.String(), func(ctx context.Context) error {
		existing, err := b.invoices.FindActive(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			invoice = existing
			return nil
		}
		version, err := b.invoices.NextVersion(ctx, key)
		if err != nil {
			return err
		}
		next, err := b.compose(ctx, key, version)
		if err != nil {
			return err
		}
		if err := b.invoices.Create(ctx, next); err != nil {
			if !errors.Is(err, billing.ErrConcurrentModification) {
				return err
			}
			// Another writer won the unique index race; its invoice is the answer.
			existing, findErr := b.invoices.FindActive(ctx, key)
			if findErr != nil || existing == nil {
				return &billing.ConcurrentModificationError{Key: key.String()}
			}
			invoice = existing
			return nil
		}
		invoice = next
		created = true
		return nil
	})
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if created {
		b.logger.Infow("invoice built",
			"invoice_id", invoice.ID,
			"room_id", invoice.RoomID,
			"period", key.Period.String(),
			"total_amount", invoice.TotalAmount.String(),
		)
		b.invalidateReports(ctx, invoice)
		b.publish(ctx, invoiceBuiltEvent(invoice))
	} else {
		result = metrics.ResultCached
	}
	return invoice, nil
}

// Rebill replaces the active invoice of the room and period with a freshly computed version.
// Invoices carrying net payments cannot be rebilled.
func (b *InvoiceBuilder) Rebill(ctx context.Context, roomID string, month, year int, reason string) (*billing.Invoice, error) {
	result := metrics.ResultSuccess
	defer func() {
		metrics.IncInvoiceRebill(result)
	}()

	key, err := billing.NewInvoiceKey(roomID, month, year)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	var prev, next *billing.Invoice
	err = b.locks.Do(ctx, key.String(), func(ctx context.Context) error {
		active, err := b.invoices.FindActive(ctx, key)
		if err != nil {
			return err
		}
		if active == nil {
			return errors.Wrapf(billing.ErrInvoiceNotFound, "no active invoice for %s", key)
		}
		payments, err := b.invoices.ListPayments(ctx, active.ID)
		if err != nil {
			return err
		}
		if !billing.NetPaid(payments).IsZero() || !active.AmountPaid.IsZero() {
			return errors.Wrapf(billing.ErrInvoiceHasPayments, "invoice %s", active.ID)
		}
		version, err := b.invoices.NextVersion(ctx, key)
		if err != nil {
			return err
		}
		fresh, err := b.compose(ctx, key, version)
		if err != nil {
			return err
		}
		now := b.now()
		superseded := active.Clone()
		superseded.Status = billing.InvoiceStatusSuperseded
		superseded.SupersededBy = fresh.ID
		superseded.SupersedeReason = reason
		superseded.SupersededAt = now
		superseded.UpdatedAt = now
		if err := b.invoices.Supersede(ctx, superseded, fresh); err != nil {
			return err
		}
		prev, next = superseded, fresh
		return nil
	})
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	b.logger.Infow("invoice rebilled",
		"invoice_id", next.ID,
		"superseded_id", prev.ID,
		"version", next.Version,
		"reason", reason,
	)
	b.publish(ctx, InvoiceSuperseded{
		InvoiceID:    prev.ID,
		HostelID:     prev.HostelID,
		RoomID:       prev.RoomID,
		Period:       key.Period.String(),
		SupersededBy: next.ID,
		Reason:       reason,
		OccurredAt:   prev.SupersededAt,
	})
	b.invalidateReports(ctx, next)
	b.publish(ctx, invoiceBuiltEvent(next))
	return next, nil
}

// Finalize freezes a draft invoice and records its snapshot hash.
func (b *InvoiceBuilder) Finalize(ctx context.Context, invoiceID string) (*billing.Invoice, error) {
	result := metrics.ResultSuccess
	defer func() {
		metrics.IncInvoiceFinalize(result)
	}()

	invoice, err := b.Get(ctx, invoiceID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	changed := false
	err = b.locks.Do(ctx, invoice.Key().String(), func(ctx context.Context) error {
		current, err := b.Get(ctx, invoiceID)
		if err != nil {
			return err
		}
		invoice = current
		switch current.Status {
		case billing.InvoiceStatusFinalized:
			return nil
		case billing.InvoiceStatusSuperseded:
			return errors.Wrapf(billing.ErrInvoiceSuperseded, "invoice %s", current.ID)
		}
		hash, err := computeSnapshotHash(current)
		if err != nil {
			return err
		}
		now := b.now()
		if err := b.invoices.MarkFinalized(ctx, current.ID, hash, now); err != nil {
			return err
		}
		current.Status = billing.InvoiceStatusFinalized
		current.SnapshotHash = hash
		current.FinalizedAt = now
		current.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if changed {
		b.publish(ctx, InvoiceFinalized{
			InvoiceID:    invoice.ID,
			HostelID:     invoice.HostelID,
			RoomID:       invoice.RoomID,
			SnapshotHash: invoice.SnapshotHash,
			OccurredAt:   invoice.FinalizedAt,
		})
	}
	return invoice, nil
}

// Get returns an invoice with its details.
func (b *InvoiceBuilder) Get(ctx context.Context, invoiceID string) (*billing.Invoice, error) {
	if invoiceID == "" {
		return nil, errors.Wrap(billing.ErrEmptyID, "invoice id required")
	}
	invoice, err := b.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, errors.Wrapf(billing.ErrInvoiceNotFound, "invoice %s", invoiceID)
	}
	return invoice, nil
}

// List returns invoices matching filter.
func (b *InvoiceBuilder) List(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, errors.Wrapf(billing.ErrInvalidPeriod, "range %s..%s is reversed", *filter.From, *filter.To)
	}
	return b.invoices.List(ctx, filter)
}

// History returns every version of the room and period invoice, oldest first.
func (b *InvoiceBuilder) History(ctx context.Context, roomID string, month, year int) ([]billing.Invoice, error) {
	key, err := billing.NewInvoiceKey(roomID, month, year)
	if err != nil {
		return nil, err
	}
	return b.invoices.ListVersions(ctx, key)
}

// compose computes an invoice without persisting it.
func (b *InvoiceBuilder) compose(ctx context.Context, key billing.InvoiceKey, version int) (*billing.Invoice, error) {
	period := key.Period
	billingDate := period.LastDay()

	room, err := b.rooms.GetRoom(ctx, key.RoomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, errors.Wrapf(billing.ErrRoomNotFound, "room %s", key.RoomID)
	}
	contract, err := b.contracts.GetActiveContract(ctx, key.RoomID, billingDate)
	if err != nil {
		return nil, err
	}
	if contract == nil || !contract.ActiveIn(period) {
		return nil, errors.Wrapf(billing.ErrNoActiveContract, "room %s in %s", key.RoomID, period)
	}

	buildErr := func(svc billing.HostelService, cause error) error {
		return &billing.InvoiceBuildError{
			RoomID:      key.RoomID,
			Period:      period,
			ServiceID:   svc.ServiceID,
			ServiceName: svc.Name,
			Err:         cause,
		}
	}

	occupied := contract.OccupiedDays(period)
	rent, err := b.calc.ProrateRent(contract.MonthlyRent, occupied, period.Days())
	if err != nil {
		return nil, buildErr(billing.HostelService{ServiceID: rentServiceID, Name: rentServiceName}, err)
	}
	details := []billing.InvoiceDetail{{
		ServiceID:      rentServiceID,
		ServiceName:    rentServiceName,
		ChargingMethod: billing.ChargingFlat,
		UnitCost:       contract.MonthlyRent,
		Quantity:       decimal.NewFromInt(int64(occupied)).Div(decimal.NewFromInt(int64(period.Days()))).Round(quantityPlaces),
		ActualCost:     rent,
		IsRentRoom:     true,
		BillingDate:    billingDate,
	}}

	services, err := b.catalog.GetServicesForHostel(ctx, room.HostelID)
	if err != nil {
		return nil, &billing.InvoiceBuildError{RoomID: key.RoomID, Period: period, Err: err}
	}
	for _, svc := range services {
		detail, billed, err := b.serviceLine(ctx, room, svc, period, billingDate)
		if err != nil {
			return nil, buildErr(svc, err)
		}
		if billed {
			details = append(details, detail)
		}
	}

	now := b.now()
	invoice := &billing.Invoice{
		ID:           billing.BuildInvoiceID(key, version),
		HostelID:     room.HostelID,
		RoomID:       key.RoomID,
		ContractID:   contract.ID,
		BillingMonth: period.Month,
		BillingYear:  period.Year,
		Version:      version,
		Status:       billing.InvoiceStatusDraft,
		Currency:     b.calc.Currency(),
		AmountPaid:   decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
		Details:      details,
	}
	invoice.RecomputeTotal()
	return invoice, nil
}

// serviceLine prices one catalog service. billed is false for a metered service without a reading.
func (b *InvoiceBuilder) serviceLine(ctx context.Context, room *billing.Room, svc billing.HostelService, period billing.BillingPeriod, billingDate time.Time) (billing.InvoiceDetail, bool, error) {
	if err := svc.Validate(); err != nil {
		return billing.InvoiceDetail{}, false, err
	}
	in := billing.LineInput{Method: svc.ChargingMethod}
	switch svc.ChargingMethod {
	case billing.ChargingPerUnit:
		current, err := b.readings.Get(ctx, room.ID, svc.ServiceID, period)
		if err != nil {
			return billing.InvoiceDetail{}, false, err
		}
		if current == nil {
			return billing.InvoiceDetail{}, false, nil
		}
		previous, err := b.readings.LatestBefore(ctx, room.ID, svc.ServiceID, period)
		if err != nil {
			return billing.InvoiceDetail{}, false, err
		}
		if previous != nil {
			in.PreviousReading = previous.Reading
		}
		in.CurrentReading = current.Reading
	case billing.ChargingPerPerson:
		in.OccupantCount = room.OccupantCount
	}

	price, err := b.prices.Resolve(ctx, room.HostelID, svc.ServiceID, billingDate)
	if err != nil {
		return billing.InvoiceDetail{}, false, err
	}
	in.UnitCost = price.UnitCost

	line, err := b.calc.Compute(in)
	if err != nil {
		var missing *billing.MissingOccupancyError
		if errors.As(err, &missing) {
			missing.RoomID = room.ID
			missing.ServiceID = svc.ServiceID
		}
		return billing.InvoiceDetail{}, false, err
	}
	return billing.InvoiceDetail{
		ServiceID:        svc.ServiceID,
		ServiceName:      svc.Name,
		ChargingMethod:   svc.ChargingMethod,
		UnitCost:         price.UnitCost,
		Quantity:         line.Quantity,
		ActualCost:       line.ActualCost,
		NumberOfCustomer: line.NumberOfCustomer,
		PreviousReading:  line.PreviousReading,
		CurrentReading:   line.CurrentReading,
		BillingDate:      billingDate,
	}, true, nil
}

func (b *InvoiceBuilder) invalidateReports(ctx context.Context, invoice *billing.Invoice) {
	if b.reports != nil {
		b.reports.InvalidateReports(ctx, invoice.HostelID, invoice.RoomID)
	}
}

func (b *InvoiceBuilder) publish(ctx context.Context, event any) {
	if b.publisher == nil {
		return
	}
	if err := b.publisher.Publish(ctx, event); err != nil {
		b.logger.Errorw("publish billing event failed", "event_type", eventName(event), "error", err)
	}
}

func invoiceBuiltEvent(invoice *billing.Invoice) InvoiceBuilt {
	return InvoiceBuilt{
		InvoiceID:   invoice.ID,
		HostelID:    invoice.HostelID,
		RoomID:      invoice.RoomID,
		Period:      invoice.Period().String(),
		Version:     invoice.Version,
		TotalAmount: invoice.TotalAmount.String(),
		Currency:    string(invoice.Currency),
		OccurredAt:  invoice.CreatedAt,
	}
}

// snapshot is the billed content covered by the finalize hash. Payment state is excluded.
type snapshot struct {
	ID          string                  `json:"id"`
	HostelID    string                  `json:"hostel_id"`
	RoomID      string                  `json:"room_id"`
	ContractID  string                  `json:"contract_id"`
	Period      string                  `json:"period"`
	Version     int                     `json:"version"`
	Currency    billing.Currency        `json:"currency"`
	TotalAmount string                  `json:"total_amount"`
	Details     []billing.InvoiceDetail `json:"details"`
}

func computeSnapshotHash(invoice *billing.Invoice) (string, error) {
	if invoice == nil {
		return "", billing.ErrNilInvoice
	}
	details := append([]billing.InvoiceDetail(nil), invoice.Details...)
	sort.SliceStable(details, func(i, j int) bool {
		if details[i].IsRentRoom != details[j].IsRentRoom {
			return details[i].IsRentRoom
		}
		return details[i].ServiceID < details[j].ServiceID
	})
	data, err := json.Marshal(snapshot{
		ID:          invoice.ID,
		HostelID:    invoice.HostelID,
		RoomID:      invoice.RoomID,
		ContractID:  invoice.ContractID,
		Period:      invoice.Period().String(),
		Version:     invoice.Version,
		Currency:    invoice.Currency,
		TotalAmount: invoice.TotalAmount.String(),
		Details:     details,
	})
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
