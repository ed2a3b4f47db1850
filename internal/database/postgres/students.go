package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/facemark/facemark/internal/database"
)

// StudentRepository provides PostgreSQL-backed roster storage.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

const studentColumns = `id, roll_number, full_name, email, department, semester, face_registered, active, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (*database.Student, error) {
	var s database.Student
	err := row.Scan(
		&s.ID,
		&s.RollNumber,
		&s.FullName,
		&s.Email,
		&s.Department,
		&s.Semester,
		&s.FaceRegistered,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetStudent retrieves a student by ID.
func (r *StudentRepository) GetStudent(ctx context.Context, id int64) (*database.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	s, err := scanStudent(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return s, nil
}

// GetStudentByRoll retrieves a student by roll number.
func (r *StudentRepository) GetStudentByRoll(ctx context.Context, rollNumber string) (*database.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE roll_number = $1", studentColumns)
	s, err := scanStudent(r.pool.QueryRow(ctx, query, rollNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query student by roll: %w", err)
	}
	return s, nil
}

// ListStudents returns active students ordered by roll number.
func (r *StudentRepository) ListStudents(ctx context.Context, limit, offset int) ([]database.Student, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM students
		WHERE active
		ORDER BY roll_number
		LIMIT $1 OFFSET $2
	`, studentColumns)

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// CountStudents returns the number of active students.
func (r *StudentRepository) CountStudents(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM students WHERE active").Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// CreateStudent stores a new student and returns its ID.
func (r *StudentRepository) CreateStudent(ctx context.Context, s *database.Student) (int64, error) {
	query := `
		INSERT INTO students (roll_number, full_name, email, department, semester, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query, s.RollNumber, s.FullName, s.Email, s.Department, s.Semester).Scan(&id)
	if isUniqueViolation(err) {
		return 0, database.ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert student: %w", err)
	}
	s.ID = id
	return id, nil
}

// UpdateStudent updates a student's mutable fields.
func (r *StudentRepository) UpdateStudent(ctx context.Context, s *database.Student) error {
	query := `
		UPDATE students
		SET roll_number = $2, full_name = $3, email = $4, department = $5,
		    semester = $6, active = $7, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, s.ID, s.RollNumber, s.FullName, s.Email, s.Department, s.Semester, s.Active)
	if isUniqueViolation(err) {
		return database.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// DeleteStudent deactivates a student (soft delete).
func (r *StudentRepository) DeleteStudent(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, "UPDATE students SET active = FALSE, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate student rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// SetFaceRegistered flips the face-registered flag.
func (r *StudentRepository) SetFaceRegistered(ctx context.Context, id int64, registered bool) error {
	result, err := r.pool.Exec(ctx, "UPDATE students SET face_registered = $2, updated_at = NOW() WHERE id = $1", id, registered)
	if err != nil {
		return fmt.Errorf("update face registered: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update face registered rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}
