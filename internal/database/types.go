package database

import (
	"time"
)

// Role is an API user role.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// User is an API account. Students additionally have a Student row linked by
// StudentID; admins and teachers do not.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	FullName     string
	Email        string
	StudentID    *int64
	CreatedAt    time.Time
}

// Student is a roster entry. Face embeddings live in FaceSample rows, one per
// registered angle, so a student can have several samples.
type Student struct {
	ID             int64
	RollNumber     string
	FullName       string
	Email          string
	Department     string
	Semester       int
	FaceRegistered bool
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Course groups sessions and enrollments.
type Course struct {
	ID           int64
	Code         string
	Name         string
	Description  string
	InstructorID *int64
	MaxStudents  int
	Active       bool
	CreatedAt    time.Time
}

// Enrollment links a student to a course.
type Enrollment struct {
	ID         int64
	StudentID  int64
	CourseID   int64
	Active     bool
	EnrolledAt time.Time
}

// Session is a scheduled attendance-taking window for a course.
// A course has at most one session per date.
type Session struct {
	ID        string // UUID
	CourseID  int64
	Date      string // YYYY-MM-DD
	StartsAt  *time.Time
	EndsAt    *time.Time
	Active    bool
	CreatedBy string
	CreatedAt time.Time
}

// AttendanceStatus is the recorded status for a student in a session.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
	StatusExcused AttendanceStatus = "excused"
)

// CheckInMethod records how an attendance event was produced.
type CheckInMethod string

const (
	MethodFace   CheckInMethod = "face"
	MethodManual CheckInMethod = "manual"
	MethodAPI    CheckInMethod = "api"
)

// AttendanceRecord is one student's attendance in one session.
// (session, student) is unique.
type AttendanceRecord struct {
	ID               string // UUID
	SessionID        string
	StudentID        int64
	Status           AttendanceStatus
	CheckInAt        *time.Time
	Method           CheckInMethod
	Confidence       float64
	LivenessVerified bool
	RecordedBy       string
	CreatedAt        time.Time
}

// Present reports whether the record counts toward attendance.
func (r *AttendanceRecord) Present() bool {
	return r.Status == StatusPresent || r.Status == StatusLate
}

// FaceSample is one registered face embedding for a student. Samples are
// append-only; registering again adds another angle instead of replacing.
type FaceSample struct {
	ID        int64
	StudentID int64
	Embedding []float32
	Dim       int
	Model     string
	DetScore  float64
	CreatedAt time.Time

	// Cached roster data so similarity hits resolve without a second query
	StudentRoll string
	StudentName string
}
