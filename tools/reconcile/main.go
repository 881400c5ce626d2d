// Command reconcile compares stored invoice totals and paid state with their details and
// payment logs, and writes the discrepancies as CSV. It exits 1 when any are found.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"

	"hostel-billing/internal/billing/application"
	billing "hostel-billing/internal/billing/domain"
	billingrepo "hostel-billing/internal/billing/infrastructure/postgres"
	"hostel-billing/internal/logger"
)

type options struct {
	dbURL             string
	hostelID          string
	roomID            string
	from              string
	to                string
	out               string
	includeSuperseded bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	log, err := logger.New("info")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}

	filter := billing.InvoiceFilter{
		HostelID:          opts.hostelID,
		RoomID:            opts.roomID,
		IncludeSuperseded: opts.includeSuperseded,
	}
	if opts.from != "" {
		p, err := billing.ParseBillingPeriod(opts.from)
		if err != nil {
			fmt.Fprintln(os.Stderr, "from:", err)
			os.Exit(2)
		}
		filter.From = &p
	}
	if opts.to != "" {
		p, err := billing.ParseBillingPeriod(opts.to)
		if err != nil {
			fmt.Fprintln(os.Stderr, "to:", err)
			os.Exit(2)
		}
		filter.To = &p
	}

	db, err := sql.Open("pgx", opts.dbURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	reconciler, err := application.NewReconciler(billingrepo.NewInvoiceRepository(db), log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	found, checked, err := reconciler.Reconcile(context.Background(), filter)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reconcile:", err)
		os.Exit(2)
	}

	out := io.Writer(os.Stdout)
	if opts.out != "" && opts.out != "-" {
		f, err := os.Create(opts.out)
		if err != nil {
			fmt.Fprintln(os.Stderr, "create output:", err)
			os.Exit(2)
		}
		defer f.Close()
		out = f
	}
	if err := writeCSV(out, found); err != nil {
		fmt.Fprintln(os.Stderr, "write csv:", err)
		os.Exit(2)
	}
	log.Infow("reconcile done", "invoices", checked, "discrepancies", len(found))
	if len(found) > 0 {
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	defaultDB := os.Getenv("DATABASE_URL")
	if defaultDB == "" {
		defaultDB = os.Getenv("PG_DSN")
	}
	flag.StringVar(&opts.dbURL, "db", defaultDB, "Postgres DSN (DATABASE_URL or PG_DSN)")
	flag.StringVar(&opts.hostelID, "hostel", "", "hostel id")
	flag.StringVar(&opts.roomID, "room", "", "room id")
	flag.StringVar(&opts.from, "from", "", "first period, YYYY-MM")
	flag.StringVar(&opts.to, "to", "", "last period, YYYY-MM")
	flag.StringVar(&opts.out, "out", "-", "CSV output path, - for stdout")
	flag.BoolVar(&opts.includeSuperseded, "include-superseded", false, "check superseded versions too")
	flag.Parse()

	if opts.dbURL == "" {
		return opts, errors.New("-db, DATABASE_URL or PG_DSN is required")
	}
	if opts.hostelID == "" && opts.roomID == "" {
		return opts, errors.New("-hostel or -room is required")
	}
	return opts, nil
}

func writeCSV(w io.Writer, found []application.Discrepancy) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"invoice_id", "room_id", "period", "kind", "stored", "derived"}); err != nil {
		return err
	}
	for _, d := range found {
		if err := cw.Write([]string{d.InvoiceID, d.RoomID, d.Period.String(), d.Kind, d.Stored, d.Derived}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
