package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hostel-billing/internal/billing/application"
	billing "hostel-billing/internal/billing/domain"
	billingrepo "hostel-billing/internal/billing/infrastructure/postgres"
	"hostel-billing/internal/logger"
	property "hostel-billing/internal/property/domain"
	propertyrepo "hostel-billing/internal/property/infrastructure/postgres"
)

type config struct {
	dsn        string
	landlordID string
	hostelID   string
	roomCount  int
	rent       string
	startMonth string
	months     int
}

type seedPrice struct {
	serviceID string
	unitCost  string
	unit      billing.Unit
}

var defaultPrices = []seedPrice{
	{serviceID: "electricity", unitCost: "3500", unit: billing.UnitKWh},
	{serviceID: "water", unitCost: "15000", unit: billing.UnitM3},
	{serviceID: "internet", unitCost: "100000", unit: billing.UnitFlat},
	{serviceID: "cleaning", unitCost: "20000", unit: billing.UnitPerson},
}

func main() {
	cfg := parseConfig()
	log, err := logger.New("info")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.roomCount <= 0 {
		log.Fatal("room-count must be > 0")
	}
	if cfg.months <= 0 {
		log.Fatal("months must be > 0")
	}
	start, err := billing.ParseBillingPeriod(cfg.startMonth)
	if err != nil {
		log.Fatalw("invalid start-month", "value", cfg.startMonth, "error", err)
	}
	rent, err := decimal.NewFromString(cfg.rent)
	if err != nil {
		log.Fatalw("invalid rent", "value", cfg.rent, "error", err)
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalw("db open error", "error", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalw("db ping error", "error", err)
	}

	hostel := &property.Hostel{
		ID:         cfg.hostelID,
		LandlordID: cfg.landlordID,
		Name:       "Demo hostel " + cfg.hostelID,
		Address:    "1 Demo street",
	}
	if err := propertyrepo.NewHostelRepository(db).Save(ctx, hostel); err != nil {
		log.Fatalw("seed hostel failed", "error", err)
	}

	rooms := buildRoomIDs(cfg.hostelID, cfg.roomCount)
	if err := seedRooms(ctx, db, cfg.hostelID, rooms, rent, start); err != nil {
		log.Fatalw("seed rooms failed", "error", err)
	}
	if err := seedPrices(ctx, db, cfg.hostelID, start, log); err != nil {
		log.Fatalw("seed prices failed", "error", err)
	}
	if err := seedReadings(ctx, db, rooms, start, cfg.months); err != nil {
		log.Fatalw("seed readings failed", "error", err)
	}
	if err := seedMaintenance(ctx, db, cfg.hostelID, rooms, start, cfg.months); err != nil {
		log.Fatalw("seed maintenance failed", "error", err)
	}
	log.Infow("seed completed", "hostel", cfg.hostelID, "rooms", len(rooms), "months", cfg.months)
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", os.Getenv("DATABASE_URL")), "postgres DSN")
	flag.StringVar(&cfg.landlordID, "landlord", envOrDefault("LANDLORD_ID", "landlord-demo"), "landlord id")
	flag.StringVar(&cfg.hostelID, "hostel", envOrDefault("HOSTEL_ID", "hostel-demo"), "hostel id")
	flag.IntVar(&cfg.roomCount, "room-count", envOrInt("ROOM_COUNT", 10), "number of rooms")
	flag.StringVar(&cfg.rent, "rent", envOrDefault("MONTHLY_RENT", "2000000"), "monthly rent per room")
	flag.StringVar(&cfg.startMonth, "start-month", envOrDefault("START_MONTH", time.Now().UTC().AddDate(0, -3, 0).Format("2006-01")), "first billing month (YYYY-MM)")
	flag.IntVar(&cfg.months, "months", envOrInt("MONTHS", 3), "months of readings to seed")
	flag.Parse()
	return cfg
}

func buildRoomIDs(hostelID string, count int) []string {
	list := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		list = append(list, fmt.Sprintf("%s-r%03d", hostelID, i))
	}
	return list
}

func seedRooms(ctx context.Context, db *sql.DB, hostelID string, rooms []string, rent decimal.Decimal, start billing.BillingPeriod) error {
	const roomSQL = `
INSERT INTO rooms (id, hostel_id, name, capacity, occupant_count)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`
	const contractSQL = `
INSERT INTO rental_contracts (id, room_id, tenant_name, monthly_rent, start_date, status)
VALUES ($1, $2, $3, $4, $5, 'active')
ON CONFLICT (id) DO NOTHING`

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for idx, roomID := range rooms {
		occupants := (idx % 3) + 1
		if _, err := tx.ExecContext(ctx, roomSQL, roomID, hostelID, fmt.Sprintf("Room %d", idx+1), 4, occupants); err != nil {
			return errors.Wrapf(err, "room %s", roomID)
		}
		if _, err := tx.ExecContext(ctx, contractSQL, "contract-"+roomID, roomID,
			fmt.Sprintf("Tenant %d", idx+1), rent.String(), start.Start()); err != nil {
			return errors.Wrapf(err, "contract %s", roomID)
		}
	}
	return tx.Commit()
}

// seedPrices opens the default prices once; services that already have history are left alone.
func seedPrices(ctx context.Context, db *sql.DB, hostelID string, start billing.BillingPeriod, log *zap.SugaredLogger) error {
	resolver, err := application.NewPriceResolver(billingrepo.NewPriceRepository(db), log.Named("prices"))
	if err != nil {
		return err
	}
	for _, price := range defaultPrices {
		history, err := resolver.History(ctx, hostelID, price.serviceID)
		if err != nil {
			return err
		}
		if len(history) > 0 {
			continue
		}
		cost, err := decimal.NewFromString(price.unitCost)
		if err != nil {
			return errors.Wrapf(err, "price %s", price.serviceID)
		}
		if _, err := resolver.ChangePrice(ctx, billing.PriceChange{
			HostelID:      hostelID,
			ServiceID:     price.serviceID,
			UnitCost:      cost,
			Unit:          price.unit,
			EffectiveFrom: start.Start(),
		}); err != nil {
			return errors.Wrapf(err, "price %s", price.serviceID)
		}
	}
	return nil
}

func seedReadings(ctx context.Context, db *sql.DB, rooms []string, start billing.BillingPeriod, months int) error {
	repo := billingrepo.NewMeterReadingRepository(db)
	now := time.Now().UTC()
	for idx, roomID := range rooms {
		electricity := int64(1000 + idx*50)
		water := int64(100 + idx*5)
		period := start
		for m := 0; m < months; m++ {
			electricity += int64(80 + (idx*7+m*13)%60)
			water += int64(3 + (idx+m)%5)
			for serviceID, value := range map[string]int64{"electricity": electricity, "water": water} {
				if err := repo.Upsert(ctx, billing.MeterReading{
					RoomID:       roomID,
					ServiceID:    serviceID,
					Reading:      value,
					BillingMonth: period.Month,
					BillingYear:  period.Year,
					RecordedAt:   now,
				}); err != nil {
					return errors.Wrapf(err, "reading %s %s %s", roomID, serviceID, period)
				}
			}
			period = period.Next()
		}
	}
	return nil
}

func seedMaintenance(ctx context.Context, db *sql.DB, hostelID string, rooms []string, start billing.BillingPeriod, months int) error {
	const insertSQL = `
INSERT INTO maintenance_costs (id, hostel_id, room_id, amount, description, incurred_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`

	period := start
	for m := 0; m < months; m++ {
		incurred := period.Start().AddDate(0, 0, 14)
		if _, err := db.ExecContext(ctx, insertSQL,
			fmt.Sprintf("maint-%s-%s", hostelID, period), hostelID, nil, "500000", "Common area upkeep", incurred); err != nil {
			return err
		}
		roomID := rooms[m%len(rooms)]
		if _, err := db.ExecContext(ctx, insertSQL,
			fmt.Sprintf("maint-%s-%s", roomID, period), hostelID, roomID, "150000", "Plumbing repair", incurred); err != nil {
			return err
		}
		period = period.Next()
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
