package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	billing "hostel-billing/internal/billing/domain"
)

const invoiceColumns = `id, hostel_id, room_id, contract_id, billing_month, billing_year, version, status,
	currency, total_amount, amount_paid, is_paid, form_of_transfer, snapshot_hash, superseded_by,
	supersede_reason, created_at, updated_at, finalized_at, superseded_at`

// InvoiceRepository persists invoices, their details and payment logs.
// A partial unique index keeps one draft or finalized invoice per room and period.
type InvoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository constructs a repository.
func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) check() error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	return nil
}

// FindActive returns the draft or finalized invoice of key.
func (r *InvoiceRepository) FindActive(ctx context.Context, key billing.InvoiceKey) (*billing.Invoice, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE room_id = $1 AND billing_year = $2 AND billing_month = $3
	AND status IN ('draft','finalized')
ORDER BY version DESC
LIMIT 1`, key.RoomID, key.Period.Year, key.Period.Month)
	return r.scanWithDetails(ctx, row)
}

// Get loads an invoice by id.
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*billing.Invoice, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE id = $1`, id)
	return r.scanWithDetails(ctx, row)
}

// NextVersion returns one past the highest stored version of key.
func (r *InvoiceRepository) NextVersion(ctx context.Context, key billing.InvoiceKey) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	var maxVersion sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
SELECT MAX(version)
FROM invoices
WHERE room_id = $1 AND billing_year = $2 AND billing_month = $3`,
		key.RoomID, key.Period.Year, key.Period.Month).Scan(&maxVersion)
	if err != nil {
		return 0, err
	}
	if !maxVersion.Valid {
		return 1, nil
	}
	return int(maxVersion.Int64) + 1, nil
}

// Create inserts the invoice and its details in one transaction.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	if err := r.check(); err != nil {
		return err
	}
	if invoice == nil {
		return billing.ErrNilInvoice
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertInvoice(ctx, tx, invoice); err != nil {
		return conflictOr(err, invoice.Key().String())
	}
	return tx.Commit()
}

// Supersede stores prev as superseded and inserts next in one transaction.
func (r *InvoiceRepository) Supersede(ctx context.Context, prev *billing.Invoice, next *billing.Invoice) error {
	if err := r.check(); err != nil {
		return err
	}
	if prev == nil || next == nil {
		return billing.ErrNilInvoice
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE invoices
SET status = 'superseded', superseded_by = $2, supersede_reason = $3, superseded_at = $4, updated_at = $4
WHERE id = $1 AND status IN ('draft','finalized')`,
		prev.ID, prev.SupersededBy, prev.SupersedeReason, prev.SupersededAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &billing.ConcurrentModificationError{Key: prev.Key().String()}
	}
	if err := insertInvoice(ctx, tx, next); err != nil {
		return conflictOr(err, next.Key().String())
	}
	return tx.Commit()
}

// MarkFinalized sets the finalized status and snapshot hash of a draft.
func (r *InvoiceRepository) MarkFinalized(ctx context.Context, id, snapshotHash string, at time.Time) error {
	if err := r.check(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE invoices
SET status = 'finalized', snapshot_hash = $2, finalized_at = $3, updated_at = $3
WHERE id = $1 AND status = 'draft'`, id, snapshotHash, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(billing.ErrInvoiceNotFound, "draft invoice %s", id)
	}
	return nil
}

// AppendPayment updates the paid state guarded by expectedPaid and appends the event.
func (r *InvoiceRepository) AppendPayment(ctx context.Context, invoice *billing.Invoice, expectedPaid decimal.Decimal, event billing.PaymentEvent) error {
	if err := r.check(); err != nil {
		return err
	}
	if invoice == nil {
		return billing.ErrNilInvoice
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE invoices
SET amount_paid = $2, is_paid = $3, form_of_transfer = $4, updated_at = $5
WHERE id = $1 AND amount_paid = $6`,
		invoice.ID, invoice.AmountPaid, invoice.IsPaid, invoice.FormOfTransfer, invoice.UpdatedAt, expectedPaid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &billing.ConcurrentModificationError{Key: invoice.Key().String()}
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO invoice_payments (
	id, invoice_id, kind, amount, form_of_transfer, submitted_at, recorded_at, reverses_id, note, idempotency_key
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		event.ID, event.InvoiceID, string(event.Kind), event.Amount, event.FormOfTransfer,
		event.SubmittedAt, event.RecordedAt, nullString(event.ReversesID), event.Note, nullString(event.IdempotencyKey))
	if err != nil {
		return conflictOr(err, invoice.Key().String())
	}
	return tx.Commit()
}

// ListPayments returns the payment log in append order.
func (r *InvoiceRepository) ListPayments(ctx context.Context, invoiceID string) ([]billing.PaymentEvent, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, invoice_id, kind, amount, form_of_transfer, submitted_at, recorded_at, reverses_id, note, idempotency_key
FROM invoice_payments
WHERE invoice_id = $1
ORDER BY seq ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.PaymentEvent
	for rows.Next() {
		var (
			e         billing.PaymentEvent
			kind      string
			reverses  sql.NullString
			formOfPay sql.NullString
			note      sql.NullString
			idemKey   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.InvoiceID, &kind, &e.Amount, &formOfPay, &e.SubmittedAt, &e.RecordedAt, &reverses, &note, &idemKey); err != nil {
			return nil, err
		}
		e.Kind = billing.PaymentKind(kind)
		e.FormOfTransfer = formOfPay.String
		e.ReversesID = reverses.String
		e.Note = note.String
		e.IdempotencyKey = idemKey.String
		e.SubmittedAt = e.SubmittedAt.UTC()
		e.RecordedAt = e.RecordedAt.UTC()
		result = append(result, e)
	}
	return result, rows.Err()
}

// List returns invoices matching filter with details, ordered by period, room and version.
func (r *InvoiceRepository) List(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !filter.IncludeSuperseded {
		where = append(where, "status IN ('draft','finalized')")
	}
	if filter.HostelID != "" {
		add("hostel_id = $%d", filter.HostelID)
	}
	if filter.RoomID != "" {
		add("room_id = $%d", filter.RoomID)
	}
	if filter.From != nil {
		add("billing_year * 100 + billing_month >= $%d", filter.From.Ordinal())
	}
	if filter.To != nil {
		add("billing_year * 100 + billing_month <= $%d", filter.To.Ordinal())
	}
	if filter.Paid != nil {
		add("is_paid = $%d", *filter.Paid)
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY billing_year, billing_month, room_id, version"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.queryInvoices(ctx, query, args...)
}

// ListVersions returns every version of key, oldest first.
func (r *InvoiceRepository) ListVersions(ctx context.Context, key billing.InvoiceKey) ([]billing.Invoice, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.queryInvoices(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE room_id = $1 AND billing_year = $2 AND billing_month = $3
ORDER BY version ASC`, key.RoomID, key.Period.Year, key.Period.Month)
}

func (r *InvoiceRepository) queryInvoices(ctx context.Context, query string, args ...any) ([]billing.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var result []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, *inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		details, err := r.loadDetails(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Details = details
	}
	return result, nil
}

func (r *InvoiceRepository) scanWithDetails(ctx context.Context, row rowScanner) (*billing.Invoice, error) {
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inv.Details, err = r.loadDetails(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *InvoiceRepository) loadDetails(ctx context.Context, invoiceID string) ([]billing.InvoiceDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT service_id, service_name, charging_method, unit_cost, quantity, actual_cost,
	number_of_customer, previous_reading, current_reading, is_rent_room, billing_date
FROM invoice_details
WHERE invoice_id = $1
ORDER BY line_no ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []billing.InvoiceDetail
	for rows.Next() {
		var (
			d         billing.InvoiceDetail
			method    string
			customers sql.NullInt64
		)
		if err := rows.Scan(&d.ServiceID, &d.ServiceName, &method, &d.UnitCost, &d.Quantity, &d.ActualCost,
			&customers, &d.PreviousReading, &d.CurrentReading, &d.IsRentRoom, &d.BillingDate); err != nil {
			return nil, err
		}
		d.ChargingMethod = billing.ChargingMethod(method)
		if customers.Valid {
			n := int(customers.Int64)
			d.NumberOfCustomer = &n
		}
		d.BillingDate = d.BillingDate.UTC()
		details = append(details, d)
	}
	return details, rows.Err()
}

func insertInvoice(ctx context.Context, tx *sql.Tx, inv *billing.Invoice) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO invoices (
	id, hostel_id, room_id, contract_id, billing_month, billing_year, version, status,
	currency, total_amount, amount_paid, is_paid, form_of_transfer, snapshot_hash, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		inv.ID, inv.HostelID, inv.RoomID, inv.ContractID, inv.BillingMonth, inv.BillingYear, inv.Version,
		string(inv.Status), string(inv.Currency), inv.TotalAmount, inv.AmountPaid, inv.IsPaid,
		inv.FormOfTransfer, inv.SnapshotHash, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return err
	}
	for i, d := range inv.Details {
		var customers sql.NullInt64
		if d.NumberOfCustomer != nil {
			customers = sql.NullInt64{Int64: int64(*d.NumberOfCustomer), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO invoice_details (
	invoice_id, line_no, service_id, service_name, charging_method, unit_cost, quantity, actual_cost,
	number_of_customer, previous_reading, current_reading, is_rent_room, billing_date
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			inv.ID, i+1, d.ServiceID, d.ServiceName, string(d.ChargingMethod), d.UnitCost, d.Quantity, d.ActualCost,
			customers, d.PreviousReading, d.CurrentReading, d.IsRentRoom, d.BillingDate)
		if err != nil {
			return err
		}
	}
	return nil
}

func scanInvoice(row rowScanner) (*billing.Invoice, error) {
	var (
		inv          billing.Invoice
		status       string
		currency     string
		formOfPay    sql.NullString
		snapshot     sql.NullString
		supersededBy sql.NullString
		reason       sql.NullString
		finalizedAt  sql.NullTime
		supersededAt sql.NullTime
	)
	if err := row.Scan(&inv.ID, &inv.HostelID, &inv.RoomID, &inv.ContractID, &inv.BillingMonth, &inv.BillingYear,
		&inv.Version, &status, &currency, &inv.TotalAmount, &inv.AmountPaid, &inv.IsPaid, &formOfPay, &snapshot,
		&supersededBy, &reason, &inv.CreatedAt, &inv.UpdatedAt, &finalizedAt, &supersededAt); err != nil {
		return nil, err
	}
	inv.Status = billing.InvoiceStatus(status)
	inv.Currency = billing.Currency(currency)
	inv.FormOfTransfer = formOfPay.String
	inv.SnapshotHash = snapshot.String
	inv.SupersededBy = supersededBy.String
	inv.SupersedeReason = reason.String
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	if finalizedAt.Valid {
		inv.FinalizedAt = finalizedAt.Time.UTC()
	}
	if supersededAt.Valid {
		inv.SupersededAt = supersededAt.Time.UTC()
	}
	return &inv, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
