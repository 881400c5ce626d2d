package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	property "hostel-billing/internal/property/domain"
)

// ContractRepository reads rental contracts.
type ContractRepository struct {
	db DBTX
}

// NewContractRepository constructs a repository.
func NewContractRepository(db DBTX) *ContractRepository {
	return &ContractRepository{db: db}
}

// ActiveForRoom returns the latest-starting contract overlapping [from, to).
func (r *ContractRepository) ActiveForRoom(ctx context.Context, roomID string, from, to time.Time) (*property.Contract, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("contract repo: nil db")
	}
	var contract property.Contract
	var end sql.NullTime
	var rent string
	err := r.db.QueryRowContext(ctx, `
SELECT id, room_id, tenant_name, monthly_rent::text, start_date, end_date
FROM rental_contracts
WHERE room_id = $1
	AND start_date < $3
	AND (end_date IS NULL OR end_date >= $2)
	AND status <> 'cancelled'
ORDER BY start_date DESC
LIMIT 1`, roomID, from.UTC(), to.UTC()).Scan(
		&contract.ID, &contract.RoomID, &contract.TenantName, &rent, &contract.StartDate, &end,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "contract repo: active for room")
	}
	if contract.MonthlyRent, err = parseDecimal(rent); err != nil {
		return nil, errors.Wrapf(err, "contract repo: rent of %s", contract.ID)
	}
	contract.StartDate = contract.StartDate.UTC()
	if end.Valid {
		t := end.Time.UTC()
		contract.EndDate = &t
	}
	return &contract, nil
}
