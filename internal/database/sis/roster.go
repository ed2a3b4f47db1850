package sis

import (
	"context"
	"fmt"
)

// RosterStudent is a student row as the SIS stores it.
type RosterStudent struct {
	RollNumber string
	FullName   string
	Email      string
	Department string
	Semester   int
	Active     bool
}

// RosterCourse is a course row as the SIS stores it.
type RosterCourse struct {
	Code        string
	Name        string
	Description string
	MaxStudents int
	Active      bool
}

// RosterEnrollment links a student roll number to a course code.
type RosterEnrollment struct {
	RollNumber string
	CourseCode string
}

// GetStudents returns all students from the SIS, ordered by roll number.
func (p *Pool) GetStudents(ctx context.Context) ([]RosterStudent, error) {
	query := `
		SELECT roll_number, full_name, email, department, semester, active
		FROM students
		ORDER BY roll_number
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query SIS students: %w", err)
	}
	defer rows.Close()

	var students []RosterStudent
	for rows.Next() {
		var s RosterStudent
		if err := rows.Scan(&s.RollNumber, &s.FullName, &s.Email, &s.Department, &s.Semester, &s.Active); err != nil {
			return nil, fmt.Errorf("scan SIS student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate SIS students: %w", err)
	}
	return students, nil
}

// GetCourses returns all courses from the SIS, ordered by code.
func (p *Pool) GetCourses(ctx context.Context) ([]RosterCourse, error) {
	query := `
		SELECT code, name, description, max_students, active
		FROM courses
		ORDER BY code
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query SIS courses: %w", err)
	}
	defer rows.Close()

	var courses []RosterCourse
	for rows.Next() {
		var c RosterCourse
		if err := rows.Scan(&c.Code, &c.Name, &c.Description, &c.MaxStudents, &c.Active); err != nil {
			return nil, fmt.Errorf("scan SIS course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate SIS courses: %w", err)
	}
	return courses, nil
}

// GetEnrollments returns active enrollments from the SIS as roll/code pairs.
func (p *Pool) GetEnrollments(ctx context.Context) ([]RosterEnrollment, error) {
	query := `
		SELECT s.roll_number, c.code
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		JOIN courses c ON c.id = e.course_id
		WHERE e.active = 1
		ORDER BY s.roll_number, c.code
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query SIS enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []RosterEnrollment
	for rows.Next() {
		var e RosterEnrollment
		if err := rows.Scan(&e.RollNumber, &e.CourseCode); err != nil {
			return nil, fmt.Errorf("scan SIS enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate SIS enrollments: %w", err)
	}
	return enrollments, nil
}
