package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cockroachdb/errors"

	property "hostel-billing/internal/property/domain"
)

const defaultHostelsTable = "hostels"

// HostelRepository is a Postgres implementation for hostels.
type HostelRepository struct {
	db    DBTX
	table string
}

// NewHostelRepository constructs a repository.
func NewHostelRepository(db DBTX, opts ...HostelOption) *HostelRepository {
	repo := &HostelRepository{db: db, table: defaultHostelsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// HostelOption configures the repository.
type HostelOption func(*HostelRepository)

// WithHostelTable overrides the default table name.
func WithHostelTable(table string) HostelOption {
	return func(repo *HostelRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a hostel by id; nil when absent.
func (r *HostelRepository) Get(ctx context.Context, id string) (*property.Hostel, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("hostel repo: nil db")
	}
	if id == "" {
		return nil, errors.New("hostel repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, landlord_id, name, address, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var hostel property.Hostel
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&hostel.ID,
		&hostel.LandlordID,
		&hostel.Name,
		&hostel.Address,
		&hostel.CreatedAt,
		&hostel.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "hostel repo: get")
	}
	hostel.CreatedAt = hostel.CreatedAt.UTC()
	hostel.UpdatedAt = hostel.UpdatedAt.UTC()
	return &hostel, nil
}

// Save upserts a hostel.
func (r *HostelRepository) Save(ctx context.Context, hostel *property.Hostel) error {
	if r == nil || r.db == nil {
		return errors.New("hostel repo: nil db")
	}
	if hostel == nil {
		return errors.New("hostel repo: nil hostel")
	}
	if err := hostel.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, landlord_id, name, address)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id)
DO UPDATE SET
	landlord_id = EXCLUDED.landlord_id,
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	updated_at = NOW()`, r.table)
	_, err := r.db.ExecContext(ctx, query, hostel.ID, hostel.LandlordID, hostel.Name, hostel.Address)
	return errors.Wrap(err, "hostel repo: save")
}

// HostelLandlord reports the owning landlord of a hostel.
func (r *HostelRepository) HostelLandlord(ctx context.Context, hostelID string) (string, bool, error) {
	hostel, err := r.Get(ctx, hostelID)
	if err != nil || hostel == nil {
		return "", false, err
	}
	return hostel.LandlordID, true, nil
}
