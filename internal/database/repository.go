package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint would be violated.
var ErrDuplicate = errors.New("already exists")

// UserStore provides access to API accounts.
type UserStore interface {
	// GetUserByUsername retrieves an account, ErrNotFound if missing
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// CreateUser stores a new account and returns its ID
	CreateUser(ctx context.Context, user *User) (int64, error)
}

// StudentReader provides read-only access to the roster.
type StudentReader interface {
	// GetStudent retrieves a student by ID, ErrNotFound if missing
	GetStudent(ctx context.Context, id int64) (*Student, error)
	// GetStudentByRoll retrieves a student by roll number, ErrNotFound if missing
	GetStudentByRoll(ctx context.Context, rollNumber string) (*Student, error)
	// ListStudents returns active students ordered by roll number
	ListStudents(ctx context.Context, limit, offset int) ([]Student, error)
	// CountStudents returns the number of active students
	CountStudents(ctx context.Context) (int, error)
}

// StudentWriter provides write access to the roster.
type StudentWriter interface {
	StudentReader

	// CreateStudent stores a new student and returns its ID
	CreateStudent(ctx context.Context, s *Student) (int64, error)
	// UpdateStudent updates a student's mutable fields
	UpdateStudent(ctx context.Context, s *Student) error
	// DeleteStudent deactivates a student (soft delete)
	DeleteStudent(ctx context.Context, id int64) error
	// SetFaceRegistered flips the face-registered flag
	SetFaceRegistered(ctx context.Context, id int64, registered bool) error
}

// CourseStore provides access to courses and enrollments.
type CourseStore interface {
	// GetCourse retrieves a course by ID, ErrNotFound if missing
	GetCourse(ctx context.Context, id int64) (*Course, error)
	// GetCourseByCode retrieves a course by code, ErrNotFound if missing
	GetCourseByCode(ctx context.Context, code string) (*Course, error)
	// ListCourses returns active courses ordered by code
	ListCourses(ctx context.Context) ([]Course, error)
	// CreateCourse stores a new course and returns its ID
	CreateCourse(ctx context.Context, c *Course) (int64, error)
	// UpdateCourse updates a course's mutable fields
	UpdateCourse(ctx context.Context, c *Course) error
	// DeleteCourse deactivates a course (soft delete)
	DeleteCourse(ctx context.Context, id int64) error
	// EnrolledStudents returns active students enrolled in a course
	EnrolledStudents(ctx context.Context, courseID int64) ([]Student, error)
	// Enroll links a student to a course, ErrDuplicate if already enrolled
	Enroll(ctx context.Context, studentID, courseID int64) error
	// Unenroll deactivates an enrollment
	Unenroll(ctx context.Context, studentID, courseID int64) error
}

// SessionStore provides access to attendance sessions.
type SessionStore interface {
	// GetSession retrieves a session by ID, ErrNotFound if missing
	GetSession(ctx context.Context, id string) (*Session, error)
	// GetSessionByCourseDate retrieves the session for a course on a date, ErrNotFound if missing
	GetSessionByCourseDate(ctx context.Context, courseID int64, date string) (*Session, error)
	// ListSessionsByCourse returns sessions for a course, newest first
	ListSessionsByCourse(ctx context.Context, courseID int64) ([]Session, error)
	// ListActiveSessions returns sessions that have not been closed
	ListActiveSessions(ctx context.Context) ([]Session, error)
	// CreateSession stores a new session, ErrDuplicate when the course
	// already has one on that date
	CreateSession(ctx context.Context, s *Session) error
	// CloseSession sets the end time and deactivates the session
	CloseSession(ctx context.Context, id string, endedAt time.Time) error
}

// AttendanceStore provides access to attendance records.
type AttendanceStore interface {
	// GetRecord retrieves the record for (session, student), ErrNotFound if missing
	GetRecord(ctx context.Context, sessionID string, studentID int64) (*AttendanceRecord, error)
	// ListBySession returns all records for a session ordered by check-in time
	ListBySession(ctx context.Context, sessionID string) ([]AttendanceRecord, error)
	// ListByStudent returns a student's records, newest first
	ListByStudent(ctx context.Context, studentID int64, limit int) ([]AttendanceRecord, error)
	// CreateRecord stores a new record, ErrDuplicate when (session, student)
	// already has one
	CreateRecord(ctx context.Context, r *AttendanceRecord) error
	// UpdateRecordStatus changes the status of an existing record
	UpdateRecordStatus(ctx context.Context, id string, status AttendanceStatus) error
	// CountByStatus returns record counts per status for a session
	CountByStatus(ctx context.Context, sessionID string) (map[AttendanceStatus]int, error)
	// ListByStudentCourse returns a student's records in a course between two
	// dates (inclusive), oldest first; used for stats
	ListByStudentCourse(ctx context.Context, studentID, courseID int64, from, to string) ([]AttendanceRecord, error)
}

// FaceSampleReader provides read-only access to registered face embeddings.
type FaceSampleReader interface {
	// GetSamplesByStudent retrieves all samples for a student
	GetSamplesByStudent(ctx context.Context, studentID int64) ([]FaceSample, error)
	// CountSamplesByStudent returns the number of samples a student has
	CountSamplesByStudent(ctx context.Context, studentID int64) (int, error)
	// AllSamples returns every registered sample; used to build the HNSW index
	AllSamples(ctx context.Context) ([]FaceSample, error)
	// FindSimilarWithDistance finds samples near the probe embedding and
	// returns cosine distances, nearest first, filtered to maxDistance
	FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]FaceSample, []float64, error)
}

// FaceSampleWriter provides write access to registered face embeddings.
type FaceSampleWriter interface {
	FaceSampleReader

	// SaveSample appends a sample for a student and returns its ID
	SaveSample(ctx context.Context, sample *FaceSample) (int64, error)
	// DeleteSamplesByStudent removes all samples for a student.
	// Returns the deleted sample IDs for HNSW cleanup.
	DeleteSamplesByStudent(ctx context.Context, studentID int64) ([]int64, error)
}
