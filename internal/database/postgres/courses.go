package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/facemark/facemark/internal/database"
)

// CourseRepository provides PostgreSQL-backed course and enrollment storage.
type CourseRepository struct {
	pool *Pool
}

// NewCourseRepository creates a new PostgreSQL course repository.
func NewCourseRepository(pool *Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

const courseColumns = `id, code, name, description, instructor_id, max_students, active, created_at`

func scanCourse(row interface{ Scan(...any) error }) (*database.Course, error) {
	var c database.Course
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Name,
		&c.Description,
		&c.InstructorID,
		&c.MaxStudents,
		&c.Active,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCourse retrieves a course by ID.
func (r *CourseRepository) GetCourse(ctx context.Context, id int64) (*database.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	c, err := scanCourse(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query course: %w", err)
	}
	return c, nil
}

// GetCourseByCode retrieves a course by code.
func (r *CourseRepository) GetCourseByCode(ctx context.Context, code string) (*database.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE code = $1", courseColumns)
	c, err := scanCourse(r.pool.QueryRow(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query course by code: %w", err)
	}
	return c, nil
}

// ListCourses returns active courses ordered by code.
func (r *CourseRepository) ListCourses(ctx context.Context) ([]database.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE active ORDER BY code", courseColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var courses []database.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return courses, nil
}

// CreateCourse stores a new course and returns its ID.
func (r *CourseRepository) CreateCourse(ctx context.Context, c *database.Course) (int64, error) {
	query := `
		INSERT INTO courses (code, name, description, instructor_id, max_students, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query, c.Code, c.Name, c.Description, c.InstructorID, c.MaxStudents).Scan(&id)
	if isUniqueViolation(err) {
		return 0, database.ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert course: %w", err)
	}
	c.ID = id
	return id, nil
}

// UpdateCourse updates a course's mutable fields.
func (r *CourseRepository) UpdateCourse(ctx context.Context, c *database.Course) error {
	query := `
		UPDATE courses
		SET code = $2, name = $3, description = $4, instructor_id = $5,
		    max_students = $6, active = $7
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, c.ID, c.Code, c.Name, c.Description, c.InstructorID, c.MaxStudents, c.Active)
	if isUniqueViolation(err) {
		return database.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// DeleteCourse deactivates a course (soft delete).
func (r *CourseRepository) DeleteCourse(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, "UPDATE courses SET active = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deactivate course: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate course rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// EnrolledStudents returns active students enrolled in a course.
func (r *CourseRepository) EnrolledStudents(ctx context.Context, courseID int64) ([]database.Student, error) {
	query := `
		SELECT s.id, s.roll_number, s.full_name, s.email, s.department, s.semester,
		       s.face_registered, s.active, s.created_at, s.updated_at
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		WHERE e.course_id = $1 AND e.active AND s.active
		ORDER BY s.roll_number
	`

	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("query enrolled students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrolled student: %w", err)
		}
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrolled students: %w", err)
	}
	return students, nil
}

// Enroll links a student to a course. Re-enrolling reactivates a previously
// deactivated enrollment.
func (r *CourseRepository) Enroll(ctx context.Context, studentID, courseID int64) error {
	var active bool
	err := r.pool.QueryRow(ctx,
		"SELECT active FROM enrollments WHERE student_id = $1 AND course_id = $2",
		studentID, courseID,
	).Scan(&active)
	if err == nil {
		if active {
			return database.ErrDuplicate
		}
		if _, err := r.pool.Exec(ctx,
			"UPDATE enrollments SET active = TRUE, enrolled_at = NOW() WHERE student_id = $1 AND course_id = $2",
			studentID, courseID,
		); err != nil {
			return fmt.Errorf("reactivate enrollment: %w", err)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check enrollment: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		"INSERT INTO enrollments (student_id, course_id, active) VALUES ($1, $2, TRUE)",
		studentID, courseID,
	)
	if isUniqueViolation(err) {
		return database.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// Unenroll deactivates an enrollment.
func (r *CourseRepository) Unenroll(ctx context.Context, studentID, courseID int64) error {
	result, err := r.pool.Exec(ctx,
		"UPDATE enrollments SET active = FALSE WHERE student_id = $1 AND course_id = $2 AND active",
		studentID, courseID,
	)
	if err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate enrollment rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}
