package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	billing "hostel-billing/internal/billing/domain"
)

// PriceRepository persists service price histories.
type PriceRepository struct {
	db *sql.DB
}

// NewPriceRepository constructs a repository.
func NewPriceRepository(db *sql.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// FindCovering returns records whose [effective_from, effective_to) contains date.
func (r *PriceRepository) FindCovering(ctx context.Context, hostelID, serviceID string, date time.Time) ([]billing.ServiceCostRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("price repo: nil db")
	}
	return r.query(ctx, `
SELECT id, hostel_id, service_id, unit_cost, unit, effective_from, effective_to, created_at
FROM service_costs
WHERE hostel_id = $1 AND service_id = $2
	AND effective_from <= $3 AND (effective_to IS NULL OR effective_to > $3)
ORDER BY effective_from DESC`, hostelID, serviceID, billing.DateOnly(date))
}

// History returns every record ordered by effective_from.
func (r *PriceRepository) History(ctx context.Context, hostelID, serviceID string) ([]billing.ServiceCostRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("price repo: nil db")
	}
	return r.query(ctx, `
SELECT id, hostel_id, service_id, unit_cost, unit, effective_from, effective_to, created_at
FROM service_costs
WHERE hostel_id = $1 AND service_id = $2
ORDER BY effective_from ASC`, hostelID, serviceID)
}

// ReplaceOpen closes the open record and inserts next in one transaction.
func (r *PriceRepository) ReplaceOpen(ctx context.Context, closed *billing.ServiceCostRecord, next billing.ServiceCostRecord) error {
	if r == nil || r.db == nil {
		return errors.New("price repo: nil db")
	}
	conflictKey := "price:" + next.HostelID + "|" + next.ServiceID
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var openID sql.NullString
	err = tx.QueryRowContext(ctx, `
SELECT id FROM service_costs
WHERE hostel_id = $1 AND service_id = $2 AND effective_to IS NULL
FOR UPDATE`, next.HostelID, next.ServiceID).Scan(&openID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	switch {
	case closed == nil && openID.Valid:
		return &billing.ConcurrentModificationError{Key: conflictKey}
	case closed != nil && (!openID.Valid || openID.String != closed.ID):
		return &billing.ConcurrentModificationError{Key: conflictKey}
	}
	if closed != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE service_costs SET effective_to = $2 WHERE id = $1`,
			closed.ID, *closed.EffectiveTo); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO service_costs (id, hostel_id, service_id, unit_cost, unit, effective_from, effective_to, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		next.ID, next.HostelID, next.ServiceID, next.UnitCost, string(next.Unit), next.EffectiveFrom,
		next.EffectiveTo, next.CreatedAt)
	if err != nil {
		return conflictOr(err, conflictKey)
	}
	return tx.Commit()
}

func (r *PriceRepository) query(ctx context.Context, query string, args ...any) ([]billing.ServiceCostRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.ServiceCostRecord
	for rows.Next() {
		var (
			rec  billing.ServiceCostRecord
			unit string
			to   sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.HostelID, &rec.ServiceID, &rec.UnitCost, &unit, &rec.EffectiveFrom, &to, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Unit = billing.Unit(unit)
		rec.EffectiveFrom = billing.DateOnly(rec.EffectiveFrom)
		if to.Valid {
			end := billing.DateOnly(to.Time)
			rec.EffectiveTo = &end
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
