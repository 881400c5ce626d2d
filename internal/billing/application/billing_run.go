package application

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/observability/metrics"
)

// RoomOutcome is the build result of one room in a billing run.
type RoomOutcome struct {
	RoomID  string
	Invoice *billing.Invoice
	Err     error
}

// RunResult summarizes a billing run.
type RunResult struct {
	HostelID string
	Period   billing.BillingPeriod
	Built    int
	Failed   int
	Outcomes []RoomOutcome
}

// BillingRun builds invoices for every room of a hostel.
type BillingRun struct {
	builder     *InvoiceBuilder
	rooms       RoomDirectory
	concurrency int
	logger      *zap.SugaredLogger
}

// NewBillingRun constructs a run with at most concurrency rooms in flight.
func NewBillingRun(builder *InvoiceBuilder, rooms RoomDirectory, concurrency int, logger *zap.SugaredLogger) (*BillingRun, error) {
	if builder == nil {
		return nil, errors.New("billing run: nil builder")
	}
	if rooms == nil {
		return nil, errors.New("billing run: nil room directory")
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &BillingRun{builder: builder, rooms: rooms, concurrency: concurrency, logger: logger}, nil
}

// BuildHostel builds every room independently; a failing room does not stop the others.
func (r *BillingRun) BuildHostel(ctx context.Context, hostelID string, month, year int) (RunResult, error) {
	start := time.Now()
	runResult := metrics.ResultSuccess
	var out RunResult
	defer func() {
		metrics.ObserveBillingRun(runResult, time.Since(start), out.Built, out.Failed)
	}()

	period, err := billing.NewBillingPeriod(month, year)
	if err != nil {
		runResult = metrics.ResultError
		return RunResult{}, err
	}
	rooms, err := r.rooms.ListRooms(ctx, hostelID)
	if err != nil {
		runResult = metrics.ResultError
		return RunResult{}, errors.Wrapf(err, "billing run: list rooms of %s", hostelID)
	}

	p := pool.NewWithResults[RoomOutcome]().WithMaxGoroutines(r.concurrency)
	for _, room := range rooms {
		roomID := room.ID
		p.Go(func() RoomOutcome {
			invoice, err := r.builder.Build(ctx, roomID, month, year)
			return RoomOutcome{RoomID: roomID, Invoice: invoice, Err: err}
		})
	}
	outcomes := p.Wait()
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].RoomID < outcomes[j].RoomID })

	out = RunResult{HostelID: hostelID, Period: period, Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Err != nil {
			out.Failed++
			r.logger.Warnw("billing run room failed", "hostel_id", hostelID, "room_id", o.RoomID, "error", o.Err)
			continue
		}
		out.Built++
	}
	if out.Failed > 0 {
		runResult = metrics.ResultError
	}
	r.logger.Infow("billing run finished",
		"hostel_id", hostelID,
		"period", period.String(),
		"built", out.Built,
		"failed", out.Failed,
	)
	return out, nil
}
