package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"hostel-billing/internal/audit"
	"hostel-billing/internal/auth"
	propertyadapter "hostel-billing/internal/billing/adapters/property"
	"hostel-billing/internal/billing/application"
	billing "hostel-billing/internal/billing/domain"
	billingcache "hostel-billing/internal/billing/infrastructure/cache"
	"hostel-billing/internal/billing/infrastructure/catalog"
	"hostel-billing/internal/billing/infrastructure/memory"
	billingrepo "hostel-billing/internal/billing/infrastructure/postgres"
	billingredis "hostel-billing/internal/billing/infrastructure/redis"
	billinginterfaces "hostel-billing/internal/billing/interfaces"
	billinghttp "hostel-billing/internal/billing/interfaces/http"
	"hostel-billing/internal/config"
	"hostel-billing/internal/eventing"
	eventingrepo "hostel-billing/internal/eventing/infrastructure/postgres"
	"hostel-billing/internal/logger"
	"hostel-billing/internal/observability/metrics"
	propertyrepo "hostel-billing/internal/property/infrastructure/postgres"
	propertyhttp "hostel-billing/internal/property/interfaces/http"
)

const meterIngestPath = "/api/v1/meter-readings/ingest"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.Init(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		log.Fatalw("db open error", "error", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalw("db ping error", "error", err)
	}

	metrics.Init(db, log)

	hostelRepo := propertyrepo.NewHostelRepository(db)
	directory, err := propertyadapter.NewDirectory(
		propertyrepo.NewRoomRepository(db),
		propertyrepo.NewContractRepository(db),
		propertyrepo.NewMaintenanceRepository(db),
	)
	if err != nil {
		log.Fatalw("property directory error", "error", err)
	}
	hostelChecker := auth.NewHostelChecker(hostelRepo)
	auditLogger := audit.Logger(audit.NewRepository(db))

	services, err := catalog.LoadFile(cfg.Billing.CatalogFile)
	if err != nil {
		log.Fatalw("service catalog error", "file", cfg.Billing.CatalogFile, "error", err)
	}

	// Events: outbox writes, periodic dispatch into the in-process bus.
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(application.EventSamples()...)
	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dispatcher := eventing.NewDispatcher(bus, outboxStore, registry, eventingrepo.NewDLQStore(db), log.Named("outbox"))
	publisher := billinginterfaces.NewOutboxPublisher(
		eventing.NewPublisher(outboxStore, cfg.LandlordID, bus, log.Named("outbox")),
		cfg.LandlordID,
	)
	billinginterfaces.RegisterEventLogging(bus, processedStore, log.Named("events"))

	locker, reportCache := keyLockerAndReportCache(ctx, cfg, log)
	locks := application.NewKeyedExecutor(locker, application.LockPolicy{
		MaxRetries:      cfg.Billing.LockMaxRetries,
		InitialInterval: cfg.Billing.LockInitialBackoff,
		MaxInterval:     cfg.Billing.LockTTL / 4,
	}, log.Named("locks"))

	invoices := billingrepo.NewInvoiceRepository(db)
	readings := billingrepo.NewMeterReadingRepository(db)
	prices := billingcache.NewPriceRepository(billingrepo.NewPriceRepository(db), cfg.Billing.PriceCacheTTL)
	tolerance, err := cfg.OverpaymentTolerance()
	if err != nil {
		log.Fatalw("overpayment tolerance error", "error", err)
	}
	reports, err := application.NewRevenueAggregator(invoices, directory, reportCache, log.Named("reports"))
	if err != nil {
		log.Fatalw("revenue aggregator error", "error", err)
	}

	resolver, err := application.NewPriceResolver(prices, log.Named("prices"))
	if err != nil {
		log.Fatalw("price resolver error", "error", err)
	}
	builder, err := application.NewInvoiceBuilder(application.InvoiceBuilderDeps{
		Invoices:   invoices,
		Readings:   readings,
		Prices:     resolver,
		Rooms:      directory,
		Contracts:  directory,
		Catalog:    services,
		Calculator: billing.NewLineItemCalculator(billing.NormalizeCurrency(cfg.Billing.Currency)),
		Locks:      locks,
		Publisher:  publisher,
		Reports:    reports,
		Logger:     log.Named("invoices"),
	})
	if err != nil {
		log.Fatalw("invoice builder error", "error", err)
	}
	ledger, err := application.NewPaymentLedger(invoices, locks, publisher, log.Named("payments"),
		application.WithOverpaymentTolerance(tolerance),
		application.WithReportInvalidator(reports))
	if err != nil {
		log.Fatalw("payment ledger error", "error", err)
	}
	run, err := application.NewBillingRun(builder, directory, cfg.Billing.RunConcurrency, log.Named("billing-run"))
	if err != nil {
		log.Fatalw("billing run error", "error", err)
	}
	readingService, err := application.NewMeterReadingService(readings, invoices, locks, log.Named("readings"))
	if err != nil {
		log.Fatalw("meter reading service error", "error", err)
	}

	billingHandler, err := billinghttp.NewHandler(billinghttp.Deps{
		Builder:       builder,
		Ledger:        ledger,
		Reports:       reports,
		Run:           run,
		Prices:        resolver,
		Readings:      readingService,
		Rooms:         directory,
		HostelChecker: hostelChecker,
		AuditLogger:   auditLogger,
		Logger:        log.Named("http"),
	})
	if err != nil {
		log.Fatalw("billing handler error", "error", err)
	}
	hostelHandler, err := propertyhttp.NewHostelHandler(hostelRepo, auditLogger)
	if err != nil {
		log.Fatalw("hostel handler error", "error", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", meterIngestPath}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy, log.Named("auth"))
	ingestAuth := auth.NewMeterIngestMiddleware([]byte(cfg.Auth.MeterIngestSecret), cfg.Auth.MeterMaxSkew)

	router := mux.NewRouter()
	router.Handle(meterIngestPath, ingestAuth.Wrap(http.HandlerFunc(billingHandler.IngestReading))).Methods(http.MethodPost)
	billingHandler.Register(router)
	hostelHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.CorsAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	go dispatcher.Run(ctx, cfg.Outbox.DispatchInterval, cfg.Outbox.BatchSize)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           corsHandler.Handler(loggingMiddleware(authMiddleware.Wrap(router), log.Named("http"))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("http listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("http shutdown error", "error", err)
	}
}

// keyLockerAndReportCache prefers Redis and falls back to process-local implementations.
func keyLockerAndReportCache(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (application.KeyLocker, application.ReportCache) {
	if cfg.Redis.Addr == "" {
		log.Infow("redis not configured, using in-process locks and report cache")
		return memory.NewKeyLocker(), billingcache.NewReportCache(cfg.Billing.ReportCacheTTL)
	}
	client, err := billingredis.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warnw("redis unavailable, using in-process locks and report cache", "addr", cfg.Redis.Addr, "error", err)
		return memory.NewKeyLocker(), billingcache.NewReportCache(cfg.Billing.ReportCacheTTL)
	}
	return billingredis.NewKeyLocker(client, cfg.Billing.LockTTL, log.Named("redis-lock")),
		billingredis.NewReportCache(client, cfg.Billing.ReportCacheTTL)
}

func loggingMiddleware(next http.Handler, log *zap.SugaredLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r.WithContext(eventing.WithCorrelationID(r.Context(), requestID)))
		log.Infow("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", resp.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
