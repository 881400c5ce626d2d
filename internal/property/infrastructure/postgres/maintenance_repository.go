package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	property "hostel-billing/internal/property/domain"
)

// MaintenanceRepository reads maintenance costs.
type MaintenanceRepository struct {
	db DBTX
}

// NewMaintenanceRepository constructs a repository.
func NewMaintenanceRepository(db DBTX) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

// List returns costs incurred in [from, to), oldest first.
func (r *MaintenanceRepository) List(ctx context.Context, hostelID, roomID string, from, to time.Time) ([]property.MaintenanceRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("maintenance repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, hostel_id, COALESCE(room_id, ''), amount::text, description, incurred_at
FROM maintenance_costs
WHERE hostel_id = $1
	AND ($2 = '' OR room_id = $2)
	AND incurred_at >= $3 AND incurred_at < $4
ORDER BY incurred_at ASC, id ASC`, hostelID, roomID, from.UTC(), to.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "maintenance repo: list")
	}
	defer rows.Close()

	var result []property.MaintenanceRecord
	for rows.Next() {
		var rec property.MaintenanceRecord
		var amount string
		if err := rows.Scan(&rec.ID, &rec.HostelID, &rec.RoomID, &amount, &rec.Description, &rec.IncurredAt); err != nil {
			return nil, err
		}
		if rec.Amount, err = parseDecimal(amount); err != nil {
			return nil, errors.Wrapf(err, "maintenance repo: amount of %s", rec.ID)
		}
		rec.IncurredAt = rec.IncurredAt.UTC()
		result = append(result, rec)
	}
	return result, rows.Err()
}

func parseDecimal(value string) (decimal.Decimal, error) {
	return decimal.NewFromString(value)
}
