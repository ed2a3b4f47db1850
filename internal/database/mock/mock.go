// Package mock provides in-memory implementations of the database interfaces
// for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/facemark/facemark/internal/database"
)

// MockUserStore is an in-memory implementation of database.UserStore
type MockUserStore struct {
	mu     sync.RWMutex
	users  map[string]*database.User
	nextID int64

	// Error injection
	GetError    error
	CreateError error
}

// NewMockUserStore creates a new mock user store
func NewMockUserStore() *MockUserStore {
	return &MockUserStore{users: make(map[string]*database.User), nextID: 1}
}

// AddUser adds a user to the mock store
func (m *MockUserStore) AddUser(user database.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == 0 {
		user.ID = m.nextID
		m.nextID++
	}
	m.users[user.Username] = &user
}

// GetUserByUsername retrieves an account by username
func (m *MockUserStore) GetUserByUsername(ctx context.Context, username string) (*database.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[username]
	if !ok {
		return nil, database.ErrNotFound
	}
	u := *user
	return &u, nil
}

// CreateUser stores a new account
func (m *MockUserStore) CreateUser(ctx context.Context, user *database.User) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return 0, database.ErrDuplicate
	}
	user.ID = m.nextID
	m.nextID++
	u := *user
	m.users[user.Username] = &u
	return user.ID, nil
}

// MockStudentStore is an in-memory implementation of database.StudentWriter
type MockStudentStore struct {
	mu       sync.RWMutex
	students map[int64]*database.Student
	nextID   int64

	// Error injection
	GetError    error
	ListError   error
	CreateError error
	UpdateError error
	DeleteError error
}

// NewMockStudentStore creates a new mock student store
func NewMockStudentStore() *MockStudentStore {
	return &MockStudentStore{students: make(map[int64]*database.Student), nextID: 1}
}

// AddStudent adds a student to the mock store
func (m *MockStudentStore) AddStudent(s database.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.nextID
	}
	if s.ID >= m.nextID {
		m.nextID = s.ID + 1
	}
	m.students[s.ID] = &s
}

// GetStudent retrieves a student by ID
func (m *MockStudentStore) GetStudent(ctx context.Context, id int64) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// GetStudentByRoll retrieves a student by roll number
func (m *MockStudentStore) GetStudentByRoll(ctx context.Context, rollNumber string) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.students {
		if s.RollNumber == rollNumber {
			cp := *s
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

// ListStudents returns active students ordered by roll number
func (m *MockStudentStore) ListStudents(ctx context.Context, limit, offset int) ([]database.Student, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Student
	for _, s := range m.students {
		if s.Active {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RollNumber < out[j].RollNumber })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// CountStudents returns the number of active students
func (m *MockStudentStore) CountStudents(ctx context.Context) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.students {
		if s.Active {
			count++
		}
	}
	return count, nil
}

// CreateStudent stores a new student
func (m *MockStudentStore) CreateStudent(ctx context.Context, s *database.Student) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.students {
		if existing.RollNumber == s.RollNumber {
			return 0, database.ErrDuplicate
		}
	}
	s.ID = m.nextID
	m.nextID++
	cp := *s
	m.students[s.ID] = &cp
	return s.ID, nil
}

// UpdateStudent updates a student's mutable fields
func (m *MockStudentStore) UpdateStudent(ctx context.Context, s *database.Student) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[s.ID]; !ok {
		return database.ErrNotFound
	}
	cp := *s
	m.students[s.ID] = &cp
	return nil
}

// DeleteStudent deactivates a student
func (m *MockStudentStore) DeleteStudent(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return database.ErrNotFound
	}
	s.Active = false
	return nil
}

// SetFaceRegistered flips the face-registered flag
func (m *MockStudentStore) SetFaceRegistered(ctx context.Context, id int64, registered bool) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return database.ErrNotFound
	}
	s.FaceRegistered = registered
	return nil
}

// MockCourseStore is an in-memory implementation of database.CourseStore
type MockCourseStore struct {
	mu          sync.RWMutex
	courses     map[int64]*database.Course
	enrollments map[int64][]int64 // courseID -> studentIDs
	students    *MockStudentStore
	nextID      int64

	// Error injection
	GetError    error
	ListError   error
	CreateError error
	UpdateError error
	DeleteError error
	EnrollError error
}

// NewMockCourseStore creates a new mock course store. The student store is
// used to resolve enrolled students.
func NewMockCourseStore(students *MockStudentStore) *MockCourseStore {
	return &MockCourseStore{
		courses:     make(map[int64]*database.Course),
		enrollments: make(map[int64][]int64),
		students:    students,
		nextID:      1,
	}
}

// AddCourse adds a course to the mock store
func (m *MockCourseStore) AddCourse(c database.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.nextID
	}
	if c.ID >= m.nextID {
		m.nextID = c.ID + 1
	}
	m.courses[c.ID] = &c
}

// GetCourse retrieves a course by ID
func (m *MockCourseStore) GetCourse(ctx context.Context, id int64) (*database.Course, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// GetCourseByCode retrieves a course by code
func (m *MockCourseStore) GetCourseByCode(ctx context.Context, code string) (*database.Course, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.courses {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

// ListCourses returns active courses ordered by code
func (m *MockCourseStore) ListCourses(ctx context.Context) ([]database.Course, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Course
	for _, c := range m.courses {
		if c.Active {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// CreateCourse stores a new course
func (m *MockCourseStore) CreateCourse(ctx context.Context, c *database.Course) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.courses {
		if existing.Code == c.Code {
			return 0, database.ErrDuplicate
		}
	}
	c.ID = m.nextID
	m.nextID++
	cp := *c
	m.courses[c.ID] = &cp
	return c.ID, nil
}

// UpdateCourse updates a course's mutable fields
func (m *MockCourseStore) UpdateCourse(ctx context.Context, c *database.Course) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[c.ID]; !ok {
		return database.ErrNotFound
	}
	cp := *c
	m.courses[c.ID] = &cp
	return nil
}

// DeleteCourse deactivates a course
func (m *MockCourseStore) DeleteCourse(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return database.ErrNotFound
	}
	c.Active = false
	return nil
}

// EnrolledStudents returns active students enrolled in a course
func (m *MockCourseStore) EnrolledStudents(ctx context.Context, courseID int64) ([]database.Student, error) {
	if m.EnrollError != nil {
		return nil, m.EnrollError
	}
	m.mu.RLock()
	ids := append([]int64(nil), m.enrollments[courseID]...)
	m.mu.RUnlock()

	var out []database.Student
	for _, id := range ids {
		s, err := m.students.GetStudent(ctx, id)
		if err != nil {
			continue
		}
		if s.Active {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RollNumber < out[j].RollNumber })
	return out, nil
}

// Enroll links a student to a course
func (m *MockCourseStore) Enroll(ctx context.Context, studentID, courseID int64) error {
	if m.EnrollError != nil {
		return m.EnrollError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.enrollments[courseID] {
		if id == studentID {
			return database.ErrDuplicate
		}
	}
	m.enrollments[courseID] = append(m.enrollments[courseID], studentID)
	return nil
}

// Unenroll removes a student from a course
func (m *MockCourseStore) Unenroll(ctx context.Context, studentID, courseID int64) error {
	if m.EnrollError != nil {
		return m.EnrollError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.enrollments[courseID]
	for i, id := range ids {
		if id == studentID {
			m.enrollments[courseID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return database.ErrNotFound
}

// MockSessionStore is an in-memory implementation of database.SessionStore
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*database.Session

	// Error injection
	GetError    error
	ListError   error
	CreateError error
	CloseError  error
}

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{sessions: make(map[string]*database.Session)}
}

// AddSession adds a session to the mock store
func (m *MockSessionStore) AddSession(s database.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &s
}

// GetSession retrieves a session by ID
func (m *MockSessionStore) GetSession(ctx context.Context, id string) (*database.Session, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// GetSessionByCourseDate retrieves the session for a course on a date
func (m *MockSessionStore) GetSessionByCourseDate(ctx context.Context, courseID int64, date string) (*database.Session, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.CourseID == courseID && s.Date == date {
			cp := *s
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

// ListSessionsByCourse returns sessions for a course, newest first
func (m *MockSessionStore) ListSessionsByCourse(ctx context.Context, courseID int64) ([]database.Session, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Session
	for _, s := range m.sessions {
		if s.CourseID == courseID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// ListActiveSessions returns sessions that have not been closed
func (m *MockSessionStore) ListActiveSessions(ctx context.Context) ([]database.Session, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Session
	for _, s := range m.sessions {
		if s.Active {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateSession stores a new session
func (m *MockSessionStore) CreateSession(ctx context.Context, s *database.Session) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.CourseID == s.CourseID && existing.Date == s.Date {
			return database.ErrDuplicate
		}
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

// CloseSession sets the end time and deactivates the session
func (m *MockSessionStore) CloseSession(ctx context.Context, id string, endedAt time.Time) error {
	if m.CloseError != nil {
		return m.CloseError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return database.ErrNotFound
	}
	s.Active = false
	s.EndsAt = &endedAt
	return nil
}

// MockAttendanceStore is an in-memory implementation of database.AttendanceStore
type MockAttendanceStore struct {
	mu      sync.RWMutex
	records map[string]*database.AttendanceRecord // keyed by record ID
	// dates maps sessionID to course/date for ListByStudentCourse filtering
	sessions *MockSessionStore

	// Error injection
	GetError    error
	ListError   error
	CreateError error
	UpdateError error
}

// NewMockAttendanceStore creates a new mock attendance store. The session
// store is used to resolve session dates for course filtering.
func NewMockAttendanceStore(sessions *MockSessionStore) *MockAttendanceStore {
	return &MockAttendanceStore{
		records:  make(map[string]*database.AttendanceRecord),
		sessions: sessions,
	}
}

// GetRecord retrieves the record for (session, student)
func (m *MockAttendanceStore) GetRecord(ctx context.Context, sessionID string, studentID int64) (*database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.SessionID == sessionID && r.StudentID == studentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

// ListBySession returns all records for a session
func (m *MockAttendanceStore) ListBySession(ctx context.Context, sessionID string) ([]database.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CheckInAt, out[j].CheckInAt
		if ti == nil {
			return false
		}
		if tj == nil {
			return true
		}
		return ti.Before(*tj)
	})
	return out, nil
}

// ListByStudent returns a student's records, newest first
func (m *MockAttendanceStore) ListByStudent(ctx context.Context, studentID int64, limit int) ([]database.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for _, r := range m.records {
		if r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// CreateRecord stores a new record
func (m *MockAttendanceStore) CreateRecord(ctx context.Context, r *database.AttendanceRecord) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.SessionID == r.SessionID && existing.StudentID == r.StudentID {
			return database.ErrDuplicate
		}
	}
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

// UpdateRecordStatus changes the status of an existing record
func (m *MockAttendanceStore) UpdateRecordStatus(ctx context.Context, id string, status database.AttendanceStatus) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return database.ErrNotFound
	}
	r.Status = status
	return nil
}

// CountByStatus returns record counts per status for a session
func (m *MockAttendanceStore) CountByStatus(ctx context.Context, sessionID string) (map[database.AttendanceStatus]int, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[database.AttendanceStatus]int)
	for _, r := range m.records {
		if r.SessionID == sessionID {
			counts[r.Status]++
		}
	}
	return counts, nil
}

// ListByStudentCourse returns a student's records in a course between two dates
func (m *MockAttendanceStore) ListByStudentCourse(ctx context.Context, studentID, courseID int64, from, to string) ([]database.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for _, r := range m.records {
		if r.StudentID != studentID {
			continue
		}
		session, ok := m.sessions.sessions[r.SessionID]
		if !ok || session.CourseID != courseID {
			continue
		}
		if from != "" && session.Date < from {
			continue
		}
		if to != "" && session.Date > to {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.sessions.sessions[out[i].SessionID].Date < m.sessions.sessions[out[j].SessionID].Date
	})
	return out, nil
}
