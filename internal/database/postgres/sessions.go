package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/facemark/facemark/internal/database"
)

// SessionRepository provides PostgreSQL-backed session storage.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, course_id, date::text, starts_at, ends_at, active, created_by, created_at`

func scanSession(row interface{ Scan(...any) error }) (*database.Session, error) {
	var s database.Session
	err := row.Scan(
		&s.ID,
		&s.CourseID,
		&s.Date,
		&s.StartsAt,
		&s.EndsAt,
		&s.Active,
		&s.CreatedBy,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession retrieves a session by ID.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*database.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1", sessionColumns)
	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return s, nil
}

// GetSessionByCourseDate retrieves the session for a course on a date.
func (r *SessionRepository) GetSessionByCourseDate(ctx context.Context, courseID int64, date string) (*database.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE course_id = $1 AND date = $2", sessionColumns)
	s, err := scanSession(r.pool.QueryRow(ctx, query, courseID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session by course and date: %w", err)
	}
	return s, nil
}

// ListSessionsByCourse returns sessions for a course, newest first.
func (r *SessionRepository) ListSessionsByCourse(ctx context.Context, courseID int64) ([]database.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE course_id = $1 ORDER BY date DESC", sessionColumns)

	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListActiveSessions returns sessions that have not been closed.
func (r *SessionRepository) ListActiveSessions(ctx context.Context) ([]database.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE active ORDER BY date DESC", sessionColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]database.Session, error) {
	var sessions []database.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// CreateSession stores a new session.
func (r *SessionRepository) CreateSession(ctx context.Context, s *database.Session) error {
	query := `
		INSERT INTO sessions (id, course_id, date, starts_at, ends_at, active, created_by)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`

	_, err := r.pool.Exec(ctx, query, s.ID, s.CourseID, s.Date, s.StartsAt, s.EndsAt, s.CreatedBy)
	if isUniqueViolation(err) {
		return database.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// CloseSession sets the end time and deactivates the session.
func (r *SessionRepository) CloseSession(ctx context.Context, id string, endedAt time.Time) error {
	result, err := r.pool.Exec(ctx,
		"UPDATE sessions SET active = FALSE, ends_at = $2 WHERE id = $1",
		id, endedAt,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close session rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}
