package postgres

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	property "hostel-billing/internal/property/domain"
)

// RoomRepository reads rooms together with their current occupant count.
type RoomRepository struct {
	db DBTX
}

// NewRoomRepository constructs a repository.
func NewRoomRepository(db DBTX) *RoomRepository {
	return &RoomRepository{db: db}
}

const roomColumns = `
SELECT r.id, r.hostel_id, r.name, r.capacity, r.occupant_count
FROM rooms r`

// Get loads a room by id; nil when absent.
func (r *RoomRepository) Get(ctx context.Context, id string) (*property.Room, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("room repo: nil db")
	}
	room, err := scanRoom(r.db.QueryRowContext(ctx, roomColumns+`
WHERE r.id = $1
LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "room repo: get")
	}
	return room, nil
}

// ListByHostel returns the rooms of a hostel ordered by id.
func (r *RoomRepository) ListByHostel(ctx context.Context, hostelID string) ([]property.Room, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("room repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, roomColumns+`
WHERE r.hostel_id = $1
ORDER BY r.id ASC`, hostelID)
	if err != nil {
		return nil, errors.Wrap(err, "room repo: list")
	}
	defer rows.Close()

	var result []property.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *room)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*property.Room, error) {
	var room property.Room
	var occupants sql.NullInt64
	if err := row.Scan(&room.ID, &room.HostelID, &room.Name, &room.Capacity, &occupants); err != nil {
		return nil, err
	}
	if occupants.Valid {
		n := int(occupants.Int64)
		room.OccupantCount = &n
	}
	return &room, nil
}
