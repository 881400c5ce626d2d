package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-billing/internal/audit"
	"hostel-billing/internal/auth"
	"hostel-billing/internal/billing/application"
	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/billing/infrastructure/memory"
	billinghttp "hostel-billing/internal/billing/interfaces/http"
)

const (
	landlordID = "landlord-1"
	hostelID   = "hostel-1"
	roomID     = "room-101"
)

type ownerLookup map[string]string

func (o ownerLookup) HostelLandlord(_ context.Context, hostelID string) (string, bool, error) {
	owner, ok := o[hostelID]
	return owner, ok, nil
}

type apiFixture struct {
	router   *mux.Router
	readings *memory.MeterReadingRepository
	audit    *audit.MemoryLogger
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	occupants := 2
	invoices := memory.NewInvoiceRepository()
	prices := memory.NewPriceRepository(
		billing.ServiceCostRecord{ID: "price-elec", HostelID: hostelID, ServiceID: "electricity",
			UnitCost: decimal.NewFromInt(3500), Unit: billing.UnitKWh, EffectiveFrom: date(2024, time.January, 1)},
		billing.ServiceCostRecord{ID: "price-net", HostelID: hostelID, ServiceID: "internet",
			UnitCost: decimal.NewFromInt(50000), Unit: billing.UnitFlat, EffectiveFrom: date(2024, time.January, 1)},
	)
	readings := memory.NewMeterReadingRepository(
		billing.MeterReading{RoomID: roomID, ServiceID: "electricity", Reading: 120, BillingMonth: 2, BillingYear: 2024},
		billing.MeterReading{RoomID: roomID, ServiceID: "electricity", Reading: 150, BillingMonth: 3, BillingYear: 2024},
	)
	dir := memory.NewDirectory()
	dir.AddRoom(billing.Room{ID: roomID, HostelID: hostelID, Name: "101", OccupantCount: &occupants})
	dir.AddRoom(billing.Room{ID: "room-x1", HostelID: "hostel-x", Name: "X1"})
	dir.AddContract(billing.RentalContract{ID: "contract-101", RoomID: roomID,
		MonthlyRent: decimal.NewFromInt(2000000), StartDate: date(2024, time.January, 1)})
	dir.SetServices(hostelID,
		billing.HostelService{ServiceID: "electricity", Name: "Electricity", ChargingMethod: billing.ChargingPerUnit, Unit: billing.UnitKWh},
		billing.HostelService{ServiceID: "internet", Name: "Internet", ChargingMethod: billing.ChargingFlat, Unit: billing.UnitFlat},
	)
	locks := application.NewKeyedExecutor(memory.NewKeyLocker(), application.DefaultLockPolicy(), nil)

	resolver, err := application.NewPriceResolver(prices, nil)
	require.NoError(t, err)
	builder, err := application.NewInvoiceBuilder(application.InvoiceBuilderDeps{
		Invoices: invoices, Readings: readings, Prices: resolver,
		Rooms: dir, Contracts: dir, Catalog: dir, Locks: locks,
	})
	require.NoError(t, err)
	ledger, err := application.NewPaymentLedger(invoices, locks, nil, nil)
	require.NoError(t, err)
	reports, err := application.NewRevenueAggregator(invoices, dir, nil, nil)
	require.NoError(t, err)
	run, err := application.NewBillingRun(builder, dir, 2, nil)
	require.NoError(t, err)
	readingSvc, err := application.NewMeterReadingService(readings, invoices, locks, nil)
	require.NoError(t, err)

	auditLog := &audit.MemoryLogger{}
	handler, err := billinghttp.NewHandler(billinghttp.Deps{
		Builder: builder, Ledger: ledger, Reports: reports, Run: run, Prices: resolver, Readings: readingSvc,
		Rooms:         dir,
		HostelChecker: auth.NewHostelChecker(ownerLookup{hostelID: landlordID, "hostel-x": "landlord-2"}),
		AuditLogger:   auditLog,
	})
	require.NoError(t, err)

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), landlordID, auth.RoleLandlord, "alice")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	handler.Register(router)
	return &apiFixture{router: router, readings: readings, audit: auditLog}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeInvoice(t *testing.T, rec *httptest.ResponseRecorder) billinghttp.InvoiceResponseDto {
	t.Helper()
	var dto billinghttp.InvoiceResponseDto
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	return dto
}

func buildMarch(t *testing.T, f *apiFixture) billinghttp.InvoiceResponseDto {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/invoices/build",
		map[string]any{"roomId": roomID, "billingMonth": 3, "billingYear": 2024})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeInvoice(t, rec)
}

func TestBuildInvoiceReturnsTotalsAndAudits(t *testing.T) {
	f := newAPIFixture(t)
	dto := buildMarch(t, f)

	assert.Equal(t, "2155000", dto.TotalAmount)
	assert.Equal(t, "draft", dto.Status)
	assert.Equal(t, 1, dto.Version)
	assert.Len(t, dto.InvoiceDetails, 3)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "invoice.build", entries[0].Action)
	assert.Equal(t, landlordID, entries[0].LandlordID)
	assert.Equal(t, "alice", entries[0].Actor)
	assert.NotEmpty(t, entries[0].PayloadDigest)

	again := buildMarch(t, f)
	assert.Equal(t, dto.ID, again.ID)

	rec := f.do(t, http.MethodGet, "/api/v1/invoices/"+dto.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.ID, decodeInvoice(t, rec).ID)
}

func TestBuildInvoiceValidationAndDomainErrors(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/invoices/build", map[string]any{"roomId": roomID, "billingMonth": 13, "billingYear": 2024})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "billingMonth")

	rec = f.do(t, http.MethodPost, "/api/v1/invoices/build", map[string]any{"roomId": "room-404", "billingMonth": 3, "billingYear": 2024})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/invoices/build", map[string]any{"roomId": "room-x1", "billingMonth": 3, "billingYear": 2024})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, f.readings.Upsert(context.Background(), billing.MeterReading{
		RoomID: roomID, ServiceID: "electricity", Reading: 100, BillingMonth: 4, BillingYear: 2024,
	}))
	rec = f.do(t, http.MethodPost, "/api/v1/invoices/build", map[string]any{"roomId": roomID, "billingMonth": 4, "billingYear": 2024})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCollectMoneyUntilPaidThenOverpay(t *testing.T) {
	f := newAPIFixture(t)
	inv := buildMarch(t, f)

	rec := f.do(t, http.MethodPost, "/api/v1/invoices/collect", map[string]any{
		"invoiceId": inv.ID, "formOfTransfer": "cash", "amountPaid": "1000000", "dateOfSubmit": "2024-04-03",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeInvoice(t, rec).IsPaid)

	rec = f.do(t, http.MethodPost, "/api/v1/invoices/collect", map[string]any{
		"invoiceId": inv.ID, "formOfTransfer": "bank", "amountPaid": "1155000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decodeInvoice(t, rec)
	assert.True(t, paid.IsPaid)
	assert.Equal(t, "2155000", paid.AmountPaid)

	rec = f.do(t, http.MethodPost, "/api/v1/invoices/collect", map[string]any{
		"invoiceId": inv.ID, "formOfTransfer": "cash", "amountPaid": "1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/invoices/collect", map[string]any{
		"invoiceId": inv.ID, "formOfTransfer": "cash", "amountPaid": "0",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/invoices/"+inv.ID+"/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payments []billinghttp.PaymentEventDto
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payments))
	require.Len(t, payments, 2)
	assert.Equal(t, "payment", payments[0].Kind)

	rec = f.do(t, http.MethodPost, "/api/v1/invoices/"+inv.ID+"/payments/"+payments[1].ID+"/reverse", map[string]any{"reason": "bounced"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reversed := decodeInvoice(t, rec)
	assert.False(t, reversed.IsPaid)
	assert.Equal(t, "1000000", reversed.AmountPaid)

	rec = f.do(t, http.MethodPost, "/api/v1/invoices/"+inv.ID+"/payments/"+payments[1].ID+"/reverse", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCollectMoneyRetryIsNotAppliedTwice(t *testing.T) {
	f := newAPIFixture(t)
	inv := buildMarch(t, f)

	body := map[string]any{
		"invoiceId": inv.ID, "formOfTransfer": "cash", "amountPaid": "500000", "dateOfSubmit": "2024-04-01T10:00:00Z",
	}
	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/api/v1/invoices/collect", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "500000", decodeInvoice(t, rec).AmountPaid)
	}

	keyed := map[string]any{
		"invoiceId": inv.ID, "formOfTransfer": "bank", "amountPaid": "200000", "idempotencyKey": "slip-7",
	}
	rec := f.do(t, http.MethodPost, "/api/v1/invoices/collect", keyed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	keyed["amountPaid"] = "250000"
	rec = f.do(t, http.MethodPost, "/api/v1/invoices/collect", keyed)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/invoices/"+inv.ID+"/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payments []billinghttp.PaymentEventDto
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payments))
	assert.Len(t, payments, 2)
}

func TestFinalizeExportAndUnknownInvoice(t *testing.T) {
	f := newAPIFixture(t)
	inv := buildMarch(t, f)

	rec := f.do(t, http.MethodPost, "/api/v1/invoices/"+inv.ID+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeInvoice(t, rec).SnapshotHash, 64)

	rec = f.do(t, http.MethodGet, "/api/v1/invoices/"+inv.ID+"/export.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = f.do(t, http.MethodGet, "/api/v1/invoices/"+inv.ID+"/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = f.do(t, http.MethodGet, "/api/v1/invoices/inv-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRebillListsVersions(t *testing.T) {
	f := newAPIFixture(t)
	inv := buildMarch(t, f)

	rec := f.do(t, http.MethodPost, "/api/v1/invoices/rebill", map[string]any{
		"roomId": roomID, "billingMonth": 3, "billingYear": 2024, "reason": "meter corrected",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	next := decodeInvoice(t, rec)
	assert.Equal(t, 2, next.Version)

	rec = f.do(t, http.MethodGet, "/api/v1/invoices/"+next.ID+"/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var versions []billinghttp.InvoiceResponseDto
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &versions))
	require.Len(t, versions, 2)
	assert.Equal(t, inv.ID, versions[0].ID)
	assert.Equal(t, "superseded", versions[0].Status)

	rec = f.do(t, http.MethodGet, "/api/v1/invoices?hostelId="+hostelID+"&from=2024-03&to=2024-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list billinghttp.ListInvoiceResponseDto
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, next.ID, list.Items[0].ID)

	rec = f.do(t, http.MethodGet, "/api/v1/invoices", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBillingRunAndRevenueReport(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/invoices/billing-runs", map[string]any{
		"hostelId": hostelID, "billingMonth": 3, "billingYear": 2024,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var run struct {
		Built  int `json:"built"`
		Failed int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 1, run.Built)
	assert.Equal(t, 0, run.Failed)

	inv := buildMarch(t, f)
	rec = f.do(t, http.MethodPost, "/api/v1/invoices/collect", map[string]any{
		"invoiceId": inv.ID, "formOfTransfer": "cash", "amountPaid": "2155000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/reports/revenue?scope=hostel&id="+hostelID+"&from=2024-03&to=2024-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report billing.RoomRevenueReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.TotalRoomRevenue.Equal(decimal.NewFromInt(2155000)))
	assert.Equal(t, 1, report.PaidInvoicesCount)

	rec = f.do(t, http.MethodGet, "/api/v1/reports/revenue.xlsx?scope=room&id="+roomID+"&from=2024-01&to=2024-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = f.do(t, http.MethodGet, "/api/v1/reports/revenue?scope=hostel&id="+hostelID+"&from=2024-03&to=2024-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/reports/revenue?scope=hostel&id=hostel-x&from=2024-03", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServiceCostsAndMeterReadings(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/service-costs", map[string]any{
		"hostelId": hostelID, "serviceId": "electricity", "unitCost": "3800", "unit": "kwh", "effectiveFrom": "2024-03-15",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/service-costs", map[string]any{
		"hostelId": hostelID, "serviceId": "electricity", "unitCost": "4000", "unit": "kwh", "effectiveFrom": "2024-02-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/service-costs?hostelId="+hostelID+"&serviceId=electricity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []billing.ServiceCostRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.NotNil(t, history[0].EffectiveTo)

	rec = f.do(t, http.MethodPost, "/api/v1/meter-readings", map[string]any{
		"roomId": roomID, "serviceId": "electricity", "reading": 180, "billingMonth": 4, "billingYear": 2024,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/meter-readings", map[string]any{
		"roomId": roomID, "serviceId": "electricity", "reading": 140, "billingMonth": 5, "billingYear": 2024,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/meter-readings?roomId="+roomID+"&period=2024-04", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var readings []billing.MeterReading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readings))
	require.Len(t, readings, 1)
	assert.Equal(t, int64(180), readings[0].Reading)

	actions := make([]string, 0)
	for _, e := range f.audit.Entries() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"price.change", "reading.record"}, actions)
}
