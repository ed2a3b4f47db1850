package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/facemark/facemark/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance record storage.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const recordColumns = `id, session_id, student_id, status, check_in_at, method, confidence, liveness_verified, recorded_by, created_at`

func scanRecord(row interface{ Scan(...any) error }) (*database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.StudentID,
		&rec.Status,
		&rec.CheckInAt,
		&rec.Method,
		&rec.Confidence,
		&rec.LivenessVerified,
		&rec.RecordedBy,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetRecord retrieves the record for (session, student).
func (r *AttendanceRepository) GetRecord(ctx context.Context, sessionID string, studentID int64) (*database.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE session_id = $1 AND student_id = $2", recordColumns)
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, sessionID, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query attendance record: %w", err)
	}
	return rec, nil
}

// ListBySession returns all records for a session ordered by check-in time.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]database.AttendanceRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM attendance_records
		WHERE session_id = $1
		ORDER BY check_in_at NULLS LAST, created_at
	`, recordColumns)

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListByStudent returns a student's records, newest first.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID int64, limit int) ([]database.AttendanceRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM attendance_records
		WHERE student_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recordColumns)

	rows, err := r.pool.Query(ctx, query, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query student records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]database.AttendanceRecord, error) {
	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

// CreateRecord stores a new record.
func (r *AttendanceRepository) CreateRecord(ctx context.Context, rec *database.AttendanceRecord) error {
	query := `
		INSERT INTO attendance_records
			(id, session_id, student_id, status, check_in_at, method, confidence, liveness_verified, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.StudentID, rec.Status, rec.CheckInAt,
		rec.Method, rec.Confidence, rec.LivenessVerified, rec.RecordedBy,
	)
	if isUniqueViolation(err) {
		return database.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// UpdateRecordStatus changes the status of an existing record.
func (r *AttendanceRepository) UpdateRecordStatus(ctx context.Context, id string, status database.AttendanceStatus) error {
	result, err := r.pool.Exec(ctx, "UPDATE attendance_records SET status = $2 WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record status rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// CountByStatus returns record counts per status for a session.
func (r *AttendanceRepository) CountByStatus(ctx context.Context, sessionID string) (map[database.AttendanceStatus]int, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT status, COUNT(*) FROM attendance_records WHERE session_id = $1 GROUP BY status",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("count records by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[database.AttendanceStatus]int)
	for rows.Next() {
		var status database.AttendanceStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// ListByStudentCourse returns a student's records in a course between two
// dates (inclusive), oldest first. Empty bounds mean unbounded.
func (r *AttendanceRepository) ListByStudentCourse(ctx context.Context, studentID, courseID int64, from, to string) ([]database.AttendanceRecord, error) {
	query := `
		SELECT ar.id, ar.session_id, ar.student_id, ar.status, ar.check_in_at,
		       ar.method, ar.confidence, ar.liveness_verified, ar.recorded_by, ar.created_at
		FROM attendance_records ar
		JOIN sessions s ON s.id = ar.session_id
		WHERE ar.student_id = $1
		  AND s.course_id = $2
		  AND ($3 = '' OR s.date >= $3::date)
		  AND ($4 = '' OR s.date <= $4::date)
		ORDER BY s.date
	`

	rows, err := r.pool.Query(ctx, query, studentID, courseID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query student course records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}
