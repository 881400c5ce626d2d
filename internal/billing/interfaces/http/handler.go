package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"hostel-billing/internal/audit"
	"hostel-billing/internal/auth"
	"hostel-billing/internal/billing/application"
	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/billing/interfaces"
	"hostel-billing/internal/observability/metrics"
)

const maxBodyBytes = 1 << 20

// Deps wires the billing HTTP handler.
type Deps struct {
	Builder  *application.InvoiceBuilder
	Ledger   *application.PaymentLedger
	Reports  *application.RevenueAggregator
	Run      *application.BillingRun
	Prices   *application.PriceResolver
	Readings *application.MeterReadingService
	Rooms    application.RoomDirectory
	// HostelChecker is optional; without it ownership is not checked.
	HostelChecker *auth.HostelChecker
	AuditLogger   audit.Logger
	Logger        *zap.SugaredLogger
}

// Handler serves the billing API.
type Handler struct {
	builder  *application.InvoiceBuilder
	ledger   *application.PaymentLedger
	reports  *application.RevenueAggregator
	run      *application.BillingRun
	prices   *application.PriceResolver
	readings *application.MeterReadingService
	rooms    application.RoomDirectory
	checker  *auth.HostelChecker
	audit    audit.Logger
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

// NewHandler constructs a handler.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.Builder == nil:
		return nil, errors.New("billing handler: nil invoice builder")
	case deps.Ledger == nil:
		return nil, errors.New("billing handler: nil payment ledger")
	case deps.Reports == nil:
		return nil, errors.New("billing handler: nil revenue aggregator")
	case deps.Run == nil:
		return nil, errors.New("billing handler: nil billing run")
	case deps.Prices == nil:
		return nil, errors.New("billing handler: nil price resolver")
	case deps.Readings == nil:
		return nil, errors.New("billing handler: nil reading service")
	case deps.Rooms == nil:
		return nil, errors.New("billing handler: nil room directory")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return &Handler{
		builder:  deps.Builder,
		ledger:   deps.Ledger,
		reports:  deps.Reports,
		run:      deps.Run,
		prices:   deps.Prices,
		readings: deps.Readings,
		rooms:    deps.Rooms,
		checker:  deps.HostelChecker,
		audit:    deps.AuditLogger,
		validate: validate,
		logger:   deps.Logger,
	}, nil
}

// Register mounts the billing routes on r.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/invoices/build", h.buildInvoice).Methods(http.MethodPost)
	api.HandleFunc("/invoices/rebill", h.rebillInvoice).Methods(http.MethodPost)
	api.HandleFunc("/invoices/billing-runs", h.billingRun).Methods(http.MethodPost)
	api.HandleFunc("/invoices/collect", h.collectMoney).Methods(http.MethodPost)
	api.HandleFunc("/invoices", h.listInvoices).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id}", h.getInvoice).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id}/versions", h.invoiceVersions).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id}/finalize", h.finalizeInvoice).Methods(http.MethodPost)
	api.HandleFunc("/invoices/{id}/export.pdf", h.exportInvoice("pdf")).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id}/export.xlsx", h.exportInvoice("xlsx")).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id}/payments", h.listPayments).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id}/payments/{paymentId}/reverse", h.reversePayment).Methods(http.MethodPost)

	api.HandleFunc("/reports/revenue", h.revenueReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/revenue.xlsx", h.revenueReportXLSX).Methods(http.MethodGet)

	api.HandleFunc("/service-costs", h.changePrice).Methods(http.MethodPost)
	api.HandleFunc("/service-costs", h.priceHistory).Methods(http.MethodGet)

	api.HandleFunc("/meter-readings", h.recordReading).Methods(http.MethodPost)
	api.HandleFunc("/meter-readings", h.listReadings).Methods(http.MethodGet)
}

// IngestReading handles signed meter gateway pushes; the body matches POST /meter-readings.
func (h *Handler) IngestReading(w http.ResponseWriter, r *http.Request) {
	h.recordReading(w, r)
}

func (h *Handler) buildInvoice(w http.ResponseWriter, r *http.Request) {
	var req buildInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.ensureRoomAccess(r, req.RoomID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	invoice, err := h.builder.Build(r.Context(), req.RoomID, req.BillingMonth, req.BillingYear)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDto(invoice))
	h.logAudit(r, "invoice.build", "invoice", invoice.ID, invoice.HostelID, map[string]any{
		"room_id": invoice.RoomID, "period": invoice.Period().String(), "version": invoice.Version,
	})
}

func (h *Handler) rebillInvoice(w http.ResponseWriter, r *http.Request) {
	var req rebillInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.ensureRoomAccess(r, req.RoomID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	invoice, err := h.builder.Rebill(r.Context(), req.RoomID, req.BillingMonth, req.BillingYear, req.Reason)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDto(invoice))
	h.logAudit(r, "invoice.rebill", "invoice", invoice.ID, invoice.HostelID, map[string]any{
		"room_id": invoice.RoomID, "period": invoice.Period().String(), "version": invoice.Version, "reason": req.Reason,
	})
}

func (h *Handler) billingRun(w http.ResponseWriter, r *http.Request) {
	var req billingRunRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.ensureHostelAccess(r, req.HostelID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	result, err := h.run.BuildHostel(r.Context(), req.HostelID, req.BillingMonth, req.BillingYear)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(result))
	h.logAudit(r, "invoice.build", "hostel", req.HostelID, req.HostelID, map[string]any{
		"period": result.Period.String(), "built": result.Built, "failed": result.Failed,
	})
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := billing.InvoiceFilter{HostelID: q.Get("hostelId"), RoomID: q.Get("roomId")}
	if filter.HostelID == "" && filter.RoomID == "" {
		badRequest(w, "hostelId or roomId required")
		return
	}
	for name, target := range map[string]**billing.BillingPeriod{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(name); v != "" {
			p, err := billing.ParseBillingPeriod(v)
			if err != nil {
				h.respondServiceError(w, r, err)
				return
			}
			*target = &p
		}
	}
	if v := q.Get("paid"); v != "" {
		paid, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "paid must be a boolean")
			return
		}
		filter.Paid = &paid
	}
	filter.IncludeSuperseded = q.Get("includeSuperseded") == "true"
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	var err error
	if filter.HostelID != "" {
		err = h.ensureHostelAccess(r, filter.HostelID)
	} else {
		err = h.ensureRoomAccess(r, filter.RoomID)
	}
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	invoices, err := h.builder.List(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceList(invoices))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDto(invoice))
}

func (h *Handler) invoiceVersions(w http.ResponseWriter, r *http.Request) {
	invoice, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}
	versions, err := h.builder.History(r.Context(), invoice.RoomID, invoice.BillingMonth, invoice.BillingYear)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	out := make([]InvoiceResponseDto, 0, len(versions))
	for i := range versions {
		out = append(out, toInvoiceDto(&versions[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) finalizeInvoice(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}
	invoice, err := h.builder.Finalize(r.Context(), current.ID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDto(invoice))
	h.logAudit(r, "invoice.finalize", "invoice", invoice.ID, invoice.HostelID, map[string]any{
		"snapshot_hash": invoice.SnapshotHash,
	})
}

func (h *Handler) exportInvoice(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoice, ok := h.loadInvoice(w, r)
		if !ok {
			return
		}
		start := time.Now()
		var (
			data        []byte
			err         error
			contentType string
		)
		switch format {
		case "pdf":
			data, err = interfaces.BuildInvoicePDF(invoice)
			contentType = "application/pdf"
		default:
			data, err = interfaces.BuildInvoiceXLSX(invoice)
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		}
		if err != nil {
			metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
			h.respondServiceError(w, r, errors.Wrapf(err, "export invoice %s", invoice.ID))
			return
		}
		metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))

		filename := fmt.Sprintf("invoice_%s_%s_v%d.%s", invoice.RoomID, invoice.Period(), invoice.Version, format)
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
		_, _ = w.Write(data)
		h.logAudit(r, "invoice.export", "invoice", invoice.ID, invoice.HostelID, map[string]any{"format": format})
	}
}

func (h *Handler) collectMoney(w http.ResponseWriter, r *http.Request) {
	var req CollectMoneyInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	cmd := application.CollectMoneyCommand{
		InvoiceID:      req.InvoiceID,
		Amount:         req.AmountPaid,
		FormOfTransfer: req.FormOfTransfer,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	}
	if cmd.IdempotencyKey == "" {
		cmd.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	if req.DateOfSubmit != "" {
		submitted, err := parseDate(req.DateOfSubmit)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		cmd.SubmittedAt = submitted
	}
	if err := h.ensureInvoiceAccess(r, req.InvoiceID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	invoice, err := h.ledger.RecordPayment(r.Context(), cmd)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDto(invoice))
	h.logAudit(r, "payment.record", "invoice", invoice.ID, invoice.HostelID, map[string]any{
		"amount": req.AmountPaid.String(), "form_of_transfer": req.FormOfTransfer, "is_paid": invoice.IsPaid,
	})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	invoice, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}
	events, err := h.ledger.ListPayments(r.Context(), invoice.ID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDtos(events))
}

func (h *Handler) reversePayment(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}
	var req reversePaymentRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	paymentID := mux.Vars(r)["paymentId"]
	invoice, err := h.ledger.ReversePayment(r.Context(), current.ID, paymentID, req.Reason)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDto(invoice))
	h.logAudit(r, "payment.reverse", "payment", paymentID, invoice.HostelID, map[string]any{
		"invoice_id": invoice.ID, "reason": req.Reason,
	})
}

func (h *Handler) revenueReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.aggregate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) revenueReportXLSX(w http.ResponseWriter, r *http.Request) {
	report, ok := h.aggregate(w, r)
	if !ok {
		return
	}
	start := time.Now()
	data, err := interfaces.BuildRevenueXLSX(report)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		h.respondServiceError(w, r, errors.Wrap(err, "export revenue report"))
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(start))
	filename := fmt.Sprintf("revenue_%s_%s_%s_%s.xlsx", report.Scope.Kind, report.Scope.ID, report.Period.From, report.Period.To)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	_, _ = w.Write(data)
}

func (h *Handler) aggregate(w http.ResponseWriter, r *http.Request) (billing.RoomRevenueReport, bool) {
	q := r.URL.Query()
	scope := billing.Scope{Kind: billing.ScopeKind(q.Get("scope")), ID: q.Get("id")}
	if scope.Kind == "" {
		scope.Kind = billing.ScopeHostel
	}
	if err := scope.Validate(); err != nil {
		badRequest(w, err.Error())
		return billing.RoomRevenueReport{}, false
	}
	from, err := billing.ParseBillingPeriod(q.Get("from"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return billing.RoomRevenueReport{}, false
	}
	to := from
	if v := q.Get("to"); v != "" {
		if to, err = billing.ParseBillingPeriod(v); err != nil {
			h.respondServiceError(w, r, err)
			return billing.RoomRevenueReport{}, false
		}
	}
	if scope.Kind == billing.ScopeHostel {
		err = h.ensureHostelAccess(r, scope.ID)
	} else {
		err = h.ensureRoomAccess(r, scope.ID)
	}
	if err != nil {
		h.respondServiceError(w, r, err)
		return billing.RoomRevenueReport{}, false
	}
	report, err := h.reports.Aggregate(r.Context(), scope, billing.ReportPeriod{From: from, To: to})
	if err != nil {
		h.respondServiceError(w, r, err)
		return billing.RoomRevenueReport{}, false
	}
	return report, true
}

func (h *Handler) changePrice(w http.ResponseWriter, r *http.Request) {
	var req changePriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	effectiveFrom, err := parseDate(req.EffectiveFrom)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.ensureHostelAccess(r, req.HostelID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	record, err := h.prices.ChangePrice(r.Context(), billing.PriceChange{
		HostelID:      req.HostelID,
		ServiceID:     req.ServiceID,
		UnitCost:      req.UnitCost,
		Unit:          billing.Unit(req.Unit),
		EffectiveFrom: effectiveFrom,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
	h.logAudit(r, "price.change", "service_cost", record.ID, record.HostelID, map[string]any{
		"service_id": record.ServiceID, "unit_cost": record.UnitCost.String(), "effective_from": effectiveFrom.Format(dateLayout),
	})
}

func (h *Handler) priceHistory(w http.ResponseWriter, r *http.Request) {
	hostelID := r.URL.Query().Get("hostelId")
	serviceID := r.URL.Query().Get("serviceId")
	if hostelID == "" || serviceID == "" {
		badRequest(w, "hostelId and serviceId required")
		return
	}
	if err := h.ensureHostelAccess(r, hostelID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	history, err := h.prices.History(r.Context(), hostelID, serviceID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) recordReading(w http.ResponseWriter, r *http.Request) {
	var req recordReadingRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.ensureRoomAccess(r, req.RoomID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	reading, err := h.readings.Record(r.Context(), billing.MeterReading{
		RoomID:       req.RoomID,
		ServiceID:    req.ServiceID,
		Reading:      req.Reading,
		BillingMonth: req.BillingMonth,
		BillingYear:  req.BillingYear,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reading)
	h.logAudit(r, "reading.record", "meter_reading", reading.RoomID+":"+reading.ServiceID, "", map[string]any{
		"period": reading.Period().String(), "reading": reading.Reading,
	})
}

func (h *Handler) listReadings(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		badRequest(w, "roomId required")
		return
	}
	period, err := billing.ParseBillingPeriod(r.URL.Query().Get("period"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if err := h.ensureRoomAccess(r, roomID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	readings, err := h.readings.List(r.Context(), roomID, period)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid json")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondValidationError(w, err)
		return false
	}
	return true
}

// loadInvoice fetches the {id} invoice and checks the caller may see it.
func (h *Handler) loadInvoice(w http.ResponseWriter, r *http.Request) (*billing.Invoice, bool) {
	id := mux.Vars(r)["id"]
	invoice, err := h.builder.Get(r.Context(), id)
	if err == nil {
		err = h.ensureHostelAccess(r, invoice.HostelID)
	}
	if err != nil {
		h.respondServiceError(w, r, err)
		return nil, false
	}
	return invoice, true
}

func (h *Handler) ensureInvoiceAccess(r *http.Request, invoiceID string) error {
	invoice, err := h.builder.Get(r.Context(), invoiceID)
	if err != nil {
		return err
	}
	return h.ensureHostelAccess(r, invoice.HostelID)
}

func (h *Handler) ensureRoomAccess(r *http.Request, roomID string) error {
	if h.checker == nil {
		return nil
	}
	room, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return errors.Wrapf(billing.ErrRoomNotFound, "room %s", roomID)
	}
	return h.ensureHostelAccess(r, room.HostelID)
}

func (h *Handler) ensureHostelAccess(r *http.Request, hostelID string) error {
	return h.checker.EnsureHostelLandlord(r.Context(), auth.LandlordIDFromContext(r.Context()), hostelID)
}

func (h *Handler) logAudit(r *http.Request, action, resourceType, resourceID, hostelID string, meta map[string]any) {
	landlordID := auth.LandlordIDFromContext(r.Context())
	if h.audit == nil || landlordID == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	err := h.audit.Log(r.Context(), audit.Entry{
		LandlordID:    landlordID,
		Actor:         auth.SubjectFromContext(r.Context()),
		Role:          string(auth.RoleFromContext(r.Context())),
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		HostelID:      hostelID,
		Metadata:      payload,
		PayloadDigest: audit.DigestJSON(payload),
		IP:            audit.ClientIP(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		h.logger.Warnw("audit log failed", "action", action, "resource_id", resourceID, "error", err)
	}
}
