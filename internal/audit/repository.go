package audit

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// Repository writes audit logs to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry.fillDefaults()

	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, landlord_id, actor, role, action, resource_type, resource_id, hostel_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, entry.ID, entry.LandlordID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID, entry.HostelID,
		nullableJSON(entry.Metadata), entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return errors.Wrap(err, "audit repo: insert")
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
