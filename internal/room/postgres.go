package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DBTX lets the store run on a pool or inside a transaction
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db DBTX
}

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db}
}

const assignmentColumns = `room_id, user_id, object_id, is_active, joined_at, last_seen, toggled_at`

func scanAssignment(row pgx.Row) (*Assignment, error) {
	a := &Assignment{}
	err := row.Scan(
		&a.RoomID,
		&a.UserID,
		&a.ObjectID,
		&a.IsActive,
		&a.JoinedAt,
		&a.LastSeen,
		&a.ToggledAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// CreateRoom inserts a room. The primary key is the uniqueness source of truth
func (s *PostgresStore) CreateRoom(ctx context.Context, room *Room) error {
	query := `
		INSERT INTO rooms (id, theme, created_at)
		VALUES ($1, $2, $3)
	`

	_, err := s.db.Exec(ctx, query, room.ID, string(room.Theme), room.CreatedAt)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateRoomID, room.ID)
		}
		return fmt.Errorf("failed to create room: %w", err)
	}

	return nil
}

// GetRoomByID retrieves a room by its exact code
func (s *PostgresStore) GetRoomByID(ctx context.Context, roomID string) (*Room, error) {
	query := `
		SELECT id, theme, created_at
		FROM rooms
		WHERE id = $1
	`

	room := &Room{}
	err := s.db.QueryRow(ctx, query, roomID).Scan(
		&room.ID,
		&room.Theme,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return room, nil
}

// ListAssignments gets the assignments of a room seen after onlineSince
func (s *PostgresStore) ListAssignments(ctx context.Context, roomID string, onlineSince time.Time) ([]*Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM room_users
		WHERE room_id = $1 AND last_seen > $2
		ORDER BY joined_at ASC, user_id ASC
	`

	rows, err := s.db.Query(ctx, query, roomID, onlineSince)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments: %w", err)
	}
	defer rows.Close()

	assignments := []*Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assignments, nil
}

// GetAssignment looks a row up directly, online or not
func (s *PostgresStore) GetAssignment(ctx context.Context, roomID, userID string) (*Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM room_users
		WHERE room_id = $1 AND user_id = $2
	`

	a, err := scanAssignment(s.db.QueryRow(ctx, query, roomID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotInRoom
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return a, nil
}

// InsertAssignment inserts a new assignment or refreshes an existing one
func (s *PostgresStore) InsertAssignment(ctx context.Context, a *Assignment) error {
	query := `
		INSERT INTO room_users (room_id, user_id, object_id, is_active, joined_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, user_id)
		DO UPDATE SET last_seen = GREATEST(room_users.last_seen, EXCLUDED.last_seen)
		RETURNING ` + assignmentColumns

	stored, err := scanAssignment(s.db.QueryRow(ctx, query,
		a.RoomID,
		a.UserID,
		a.ObjectID,
		a.IsActive,
		a.JoinedAt,
		a.LastSeen,
	))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		if pgCode(err) == pgForeignKeyViolation {
			return ErrRoomNotFound
		}
		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	*a = *stored
	return nil
}

// TouchAssignment refreshes last_seen. last_seen never moves backwards, so a
// late heartbeat cannot undo a newer one
func (s *PostgresStore) TouchAssignment(ctx context.Context, roomID, userID string, at time.Time) error {
	query := `
		UPDATE room_users
		SET last_seen = GREATEST(last_seen, $3)
		WHERE room_id = $1 AND user_id = $2
	`

	result, err := s.db.Exec(ctx, query, roomID, userID, at)
	if err != nil {
		return fmt.Errorf("failed to update last_seen: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotInRoom
	}

	return nil
}

// ToggleAssignment flips is_active in one statement
func (s *PostgresStore) ToggleAssignment(ctx context.Context, roomID, userID string, at time.Time) (*Assignment, error) {
	query := `
		UPDATE room_users
		SET is_active = NOT is_active, toggled_at = $3
		WHERE room_id = $1 AND user_id = $2
		RETURNING ` + assignmentColumns

	a, err := scanAssignment(s.db.QueryRow(ctx, query, roomID, userID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotInRoom
		}
		return nil, fmt.Errorf("failed to toggle assignment: %w", err)
	}

	return a, nil
}

// DeleteStaleAssignments removes rows not seen since staleBefore
func (s *PostgresStore) DeleteStaleAssignments(ctx context.Context, staleBefore time.Time) (int64, error) {
	query := `DELETE FROM room_users WHERE last_seen <= $1`

	result, err := s.db.Exec(ctx, query, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale assignments: %w", err)
	}

	return result.RowsAffected(), nil
}
