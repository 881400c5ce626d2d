package application_test

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hostel-billing/internal/billing/application"
	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/billing/infrastructure/memory"
)

const (
	hostelID = "hostel-1"
	roomID   = "room-101"
)

var fixedNow = time.Date(2024, time.April, 2, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.events...)
}

// billingFixture wires the billing services over in-memory stores.
// Room 101 rents for 2,000,000 with electricity at 3500/kWh and internet at 50,000 flat.
type billingFixture struct {
	invoices  *memory.InvoiceRepository
	prices    *memory.PriceRepository
	readings  *memory.MeterReadingRepository
	directory *memory.Directory
	locker    *memory.KeyLocker
	locks     *application.KeyedExecutor
	publisher *recordingPublisher
	resolver  *application.PriceResolver
	builder   *application.InvoiceBuilder
}

func newBillingFixture() (*billingFixture, error) {
	f := &billingFixture{
		invoices: memory.NewInvoiceRepository(),
		prices: memory.NewPriceRepository(
			billing.ServiceCostRecord{
				ID: "price-elec", HostelID: hostelID, ServiceID: "electricity",
				UnitCost: decimal.NewFromInt(3500), Unit: billing.UnitKWh, EffectiveFrom: date(2024, time.January, 1),
			},
			billing.ServiceCostRecord{
				ID: "price-net", HostelID: hostelID, ServiceID: "internet",
				UnitCost: decimal.NewFromInt(50000), Unit: billing.UnitFlat, EffectiveFrom: date(2024, time.January, 1),
			},
		),
		readings: memory.NewMeterReadingRepository(
			billing.MeterReading{RoomID: roomID, ServiceID: "electricity", Reading: 120, BillingMonth: 2, BillingYear: 2024},
			billing.MeterReading{RoomID: roomID, ServiceID: "electricity", Reading: 150, BillingMonth: 3, BillingYear: 2024},
		),
		directory: memory.NewDirectory(),
		locker:    memory.NewKeyLocker(),
		publisher: &recordingPublisher{},
	}
	f.directory.AddRoom(billing.Room{ID: roomID, HostelID: hostelID, Name: "101", OccupantCount: intPtr(2)})
	f.directory.AddContract(billing.RentalContract{
		ID: "contract-101", RoomID: roomID, MonthlyRent: decimal.NewFromInt(2000000), StartDate: date(2024, time.January, 1),
	})
	f.directory.SetServices(hostelID,
		billing.HostelService{ServiceID: "electricity", Name: "Electricity", ChargingMethod: billing.ChargingPerUnit, Unit: billing.UnitKWh},
		billing.HostelService{ServiceID: "internet", Name: "Internet", ChargingMethod: billing.ChargingFlat, Unit: billing.UnitFlat},
	)
	f.locks = application.NewKeyedExecutor(f.locker, application.LockPolicy{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, nil)

	var err error
	f.resolver, err = application.NewPriceResolver(f.prices, nil)
	if err != nil {
		return nil, err
	}
	f.builder, err = application.NewInvoiceBuilder(application.InvoiceBuilderDeps{
		Invoices:   f.invoices,
		Readings:   f.readings,
		Prices:     f.resolver,
		Rooms:      f.directory,
		Contracts:  f.directory,
		Catalog:    f.directory,
		Calculator: billing.NewLineItemCalculator(billing.CurrencyVND),
		Locks:      f.locks,
		Publisher:  f.publisher,
		Clock:      fixedClock,
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (f *billingFixture) ledger(opts ...application.LedgerOption) (*application.PaymentLedger, error) {
	opts = append([]application.LedgerOption{application.WithLedgerClock(fixedClock)}, opts...)
	return application.NewPaymentLedger(f.invoices, f.locks, f.publisher, nil, opts...)
}

func detailByService(inv *billing.Invoice, serviceID string) (billing.InvoiceDetail, bool) {
	for _, d := range inv.Details {
		if d.ServiceID == serviceID {
			return d, true
		}
	}
	return billing.InvoiceDetail{}, false
}

func decimalEq(want int64, got decimal.Decimal) bool {
	return got.Equal(decimal.NewFromInt(want))
}
