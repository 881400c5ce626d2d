package postgres

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	billing "hostel-billing/internal/billing/domain"
)

const readingColumns = `room_id, service_id, reading, billing_month, billing_year, recorded_at`

// MeterReadingRepository persists meter readings, one per room, service and period.
type MeterReadingRepository struct {
	db DBTX
}

// NewMeterReadingRepository constructs a repository.
func NewMeterReadingRepository(db DBTX) *MeterReadingRepository {
	return &MeterReadingRepository{db: db}
}

func (r *MeterReadingRepository) Get(ctx context.Context, roomID, serviceID string, period billing.BillingPeriod) (*billing.MeterReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+readingColumns+`
FROM meter_readings
WHERE room_id = $1 AND service_id = $2 AND billing_year = $3 AND billing_month = $4`,
		roomID, serviceID, period.Year, period.Month)
	return scanReadingRow(row)
}

func (r *MeterReadingRepository) LatestBefore(ctx context.Context, roomID, serviceID string, period billing.BillingPeriod) (*billing.MeterReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+readingColumns+`
FROM meter_readings
WHERE room_id = $1 AND service_id = $2 AND billing_year * 100 + billing_month < $3
ORDER BY billing_year DESC, billing_month DESC
LIMIT 1`, roomID, serviceID, period.Ordinal())
	return scanReadingRow(row)
}

func (r *MeterReadingRepository) EarliestAfter(ctx context.Context, roomID, serviceID string, period billing.BillingPeriod) (*billing.MeterReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+readingColumns+`
FROM meter_readings
WHERE room_id = $1 AND service_id = $2 AND billing_year * 100 + billing_month > $3
ORDER BY billing_year ASC, billing_month ASC
LIMIT 1`, roomID, serviceID, period.Ordinal())
	return scanReadingRow(row)
}

// Upsert stores the reading, replacing one of the same period.
func (r *MeterReadingRepository) Upsert(ctx context.Context, reading billing.MeterReading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO meter_readings (`+readingColumns+`)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (room_id, service_id, billing_year, billing_month)
DO UPDATE SET reading = EXCLUDED.reading, recorded_at = EXCLUDED.recorded_at`,
		reading.RoomID, reading.ServiceID, reading.Reading, reading.BillingMonth, reading.BillingYear, reading.RecordedAt)
	return err
}

func (r *MeterReadingRepository) ListForRoom(ctx context.Context, roomID string, period billing.BillingPeriod) ([]billing.MeterReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+readingColumns+`
FROM meter_readings
WHERE room_id = $1 AND billing_year = $2 AND billing_month = $3
ORDER BY service_id ASC`, roomID, period.Year, period.Month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.MeterReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, reading)
	}
	return result, rows.Err()
}

func scanReadingRow(row rowScanner) (*billing.MeterReading, error) {
	reading, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reading, nil
}

func scanReading(row rowScanner) (billing.MeterReading, error) {
	var (
		m          billing.MeterReading
		recordedAt sql.NullTime
	)
	if err := row.Scan(&m.RoomID, &m.ServiceID, &m.Reading, &m.BillingMonth, &m.BillingYear, &recordedAt); err != nil {
		return billing.MeterReading{}, err
	}
	if recordedAt.Valid {
		m.RecordedAt = recordedAt.Time.UTC()
	}
	return m, nil
}
