package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "hostel_billing_"

	resultSuccess = "success"
	resultError   = "error"
	resultCached  = "cached"
)

var (
	registerOnce sync.Once

	invoiceBuildTotal      *prometheus.CounterVec
	invoiceBuildLatency    *prometheus.HistogramVec
	invoiceRebillTotal     *prometheus.CounterVec
	invoiceFinalizeTotal   *prometheus.CounterVec
	invoiceExportTotal     *prometheus.CounterVec
	invoiceExportLatency   *prometheus.HistogramVec
	billingRunTotal        *prometheus.CounterVec
	billingRunLatency      *prometheus.HistogramVec
	billingRunRooms        *prometheus.CounterVec
	paymentTotal           *prometheus.CounterVec
	paymentLatency         *prometheus.HistogramVec
	revenueReportTotal     *prometheus.CounterVec
	revenueReportLatency   *prometheus.HistogramVec
	priceResolveTotal      *prometheus.CounterVec
	priceOverlapAnomalies  prometheus.Counter
	lockContentionRetries  prometheus.Counter
	outboxPublishTotal     *prometheus.CounterVec
	outboxPublishLatency   *prometheus.HistogramVec
	outboxDispatchTotal    *prometheus.CounterVec
	outboxDispatchLatency  *prometheus.HistogramVec
	outboxDispatchMessages *prometheus.CounterVec
	consumerLag            *prometheus.GaugeVec
)

// Init registers billing metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.SugaredLogger) {
	registerOnce.Do(func() {
		invoiceBuildTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_build_total",
				Help: "Total invoice build operations by result",
			},
			[]string{"result"},
		)
		invoiceBuildLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invoice_build_latency_seconds",
				Help:    "Invoice build latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		invoiceRebillTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_rebill_total",
				Help: "Total invoice rebill operations by result",
			},
			[]string{"result"},
		)
		invoiceFinalizeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_finalize_total",
				Help: "Total invoice finalize operations by result",
			},
			[]string{"result"},
		)
		invoiceExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total document exports by format and result",
			},
			[]string{"format", "result"},
		)
		invoiceExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Document export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		billingRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_run_total",
				Help: "Total hostel billing runs by result",
			},
			[]string{"result"},
		)
		billingRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "billing_run_latency_seconds",
				Help:    "Hostel billing run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		billingRunRooms = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_run_rooms_total",
				Help: "Rooms processed by billing runs by outcome",
			},
			[]string{"outcome"},
		)
		paymentTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_total",
				Help: "Total payment ledger operations by kind and result",
			},
			[]string{"kind", "result"},
		)
		paymentLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "payment_latency_seconds",
				Help:    "Payment ledger latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "result"},
		)
		revenueReportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "revenue_report_total",
				Help: "Total revenue reports by result",
			},
			[]string{"result"},
		)
		revenueReportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "revenue_report_latency_seconds",
				Help:    "Revenue report latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		priceResolveTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "price_resolve_total",
				Help: "Total price resolutions by result",
			},
			[]string{"result"},
		)
		priceOverlapAnomalies = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "price_overlap_anomalies_total",
				Help: "Price resolutions that matched more than one record",
			},
		)
		lockContentionRetries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "lock_contention_retries_total",
				Help: "Invoice key lock attempts that found the key held",
			},
		)
		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Total outbox inserts by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox insert latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_messages_total",
				Help: "Outbox messages by dispatch outcome",
			},
			[]string{"outcome"},
		)
		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		prometheus.MustRegister(
			invoiceBuildTotal,
			invoiceBuildLatency,
			invoiceRebillTotal,
			invoiceFinalizeTotal,
			invoiceExportTotal,
			invoiceExportLatency,
			billingRunTotal,
			billingRunLatency,
			billingRunRooms,
			paymentTotal,
			paymentLatency,
			revenueReportTotal,
			revenueReportLatency,
			priceResolveTotal,
			priceOverlapAnomalies,
			lockContentionRetries,
			outboxPublishTotal,
			outboxPublishLatency,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxDispatchMessages,
			consumerLag,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveInvoiceBuild records build latency and result.
func ObserveInvoiceBuild(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if invoiceBuildTotal != nil {
		invoiceBuildTotal.WithLabelValues(result).Inc()
	}
	if invoiceBuildLatency != nil {
		invoiceBuildLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncInvoiceRebill increments the rebill counter.
func IncInvoiceRebill(result string) {
	if result == "" {
		result = resultSuccess
	}
	if invoiceRebillTotal != nil {
		invoiceRebillTotal.WithLabelValues(result).Inc()
	}
}

// IncInvoiceFinalize increments the finalize counter.
func IncInvoiceFinalize(result string) {
	if result == "" {
		result = resultSuccess
	}
	if invoiceFinalizeTotal != nil {
		invoiceFinalizeTotal.WithLabelValues(result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if invoiceExportTotal != nil {
		invoiceExportTotal.WithLabelValues(format, result).Inc()
	}
	if invoiceExportLatency != nil {
		invoiceExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveBillingRun records a hostel billing run.
func ObserveBillingRun(result string, duration time.Duration, built, failed int) {
	if result == "" {
		result = resultSuccess
	}
	if billingRunTotal != nil {
		billingRunTotal.WithLabelValues(result).Inc()
	}
	if billingRunLatency != nil {
		billingRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if billingRunRooms != nil {
		if built > 0 {
			billingRunRooms.WithLabelValues("built").Add(float64(built))
		}
		if failed > 0 {
			billingRunRooms.WithLabelValues("failed").Add(float64(failed))
		}
	}
}

// ObservePayment records payment ledger latency and result.
func ObservePayment(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if paymentTotal != nil {
		paymentTotal.WithLabelValues(kind, result).Inc()
	}
	if paymentLatency != nil {
		paymentLatency.WithLabelValues(kind, result).Observe(duration.Seconds())
	}
}

// ObserveRevenueReport records report latency and result.
func ObserveRevenueReport(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if revenueReportTotal != nil {
		revenueReportTotal.WithLabelValues(result).Inc()
	}
	if revenueReportLatency != nil {
		revenueReportLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncPriceResolve increments the price resolution counter.
func IncPriceResolve(result string) {
	if result == "" {
		result = resultSuccess
	}
	if priceResolveTotal != nil {
		priceResolveTotal.WithLabelValues(result).Inc()
	}
}

// IncPriceOverlap counts a resolution that matched overlapping records.
func IncPriceOverlap() {
	if priceOverlapAnomalies != nil {
		priceOverlapAnomalies.Inc()
	}
}

// IncLockContention counts a lock attempt on a held key.
func IncLockContention() {
	if lockContentionRetries != nil {
		lockContentionRetries.Inc()
	}
}

// ObserveOutboxPublish records outbox insert latency and result.
func ObserveOutboxPublish(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outboxPublishTotal != nil {
		outboxPublishTotal.WithLabelValues(result).Inc()
	}
	if outboxPublishLatency != nil {
		outboxPublishLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveOutboxDispatch records a dispatch run.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxDispatchMessages == nil {
		return
	}
	if sent > 0 {
		outboxDispatchMessages.WithLabelValues("sent").Add(float64(sent))
	}
	if failed > 0 {
		outboxDispatchMessages.WithLabelValues("failed").Add(float64(failed))
	}
	if dlq > 0 {
		outboxDispatchMessages.WithLabelValues("dlq").Add(float64(dlq))
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultCached  = resultCached
)
