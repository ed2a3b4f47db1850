// Package attendance applies the check-in rules on top of the stores: one
// record per student per session, late cutoffs, duplicate suppression and
// absent back-fill when a session closes.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/facemark/facemark/internal/constants"
	"github.com/facemark/facemark/internal/database"
	"github.com/google/uuid"
)

// Options tunes the marking rules.
type Options struct {
	// LateArrivalMinutes after session start a check-in counts as late
	LateArrivalMinutes int
	// DuplicateWindowMinutes within which a repeat check-in is ignored
	DuplicateWindowMinutes int
}

func (o Options) withDefaults() Options {
	if o.LateArrivalMinutes <= 0 {
		o.LateArrivalMinutes = constants.DefaultLateArrivalMinutes
	}
	if o.DuplicateWindowMinutes <= 0 {
		o.DuplicateWindowMinutes = constants.DefaultDuplicateWindowMinutes
	}
	return o
}

// MarkResult reports what happened to a check-in attempt.
type MarkResult struct {
	Record  *database.AttendanceRecord
	Created bool // false when the record already existed
}

// Service coordinates attendance records for sessions.
type Service struct {
	sessions database.SessionStore
	records  database.AttendanceStore
	courses  database.CourseStore
	opts     Options
	now      func() time.Time
}

// NewService creates an attendance service over the given stores.
func NewService(sessions database.SessionStore, records database.AttendanceStore, courses database.CourseStore, opts Options) *Service {
	return &Service{
		sessions: sessions,
		records:  records,
		courses:  courses,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// Mark records a check-in for studentID in the given session. The operation
// is idempotent on (session, student): a repeat check-in returns the existing
// record with Created=false and never downgrades the stored status.
func (s *Service) Mark(ctx context.Context, sessionID string, studentID int64, method database.CheckInMethod, confidence float64, liveness bool, recordedBy string) (*MarkResult, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.Active {
		return nil, fmt.Errorf("session %s is closed", sessionID)
	}

	existing, err := s.records.GetRecord(ctx, sessionID, studentID)
	if err == nil {
		return &MarkResult{Record: existing, Created: false}, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing record: %w", err)
	}

	now := s.now()
	record := &database.AttendanceRecord{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		StudentID:        studentID,
		Status:           s.statusFor(session, now),
		CheckInAt:        &now,
		Method:           method,
		Confidence:       confidence,
		LivenessVerified: liveness,
		RecordedBy:       recordedBy,
	}

	if err := s.records.CreateRecord(ctx, record); err != nil {
		// Lost a race against a concurrent check-in for the same student.
		if errors.Is(err, database.ErrDuplicate) {
			existing, getErr := s.records.GetRecord(ctx, sessionID, studentID)
			if getErr != nil {
				return nil, fmt.Errorf("failed to load record after duplicate: %w", getErr)
			}
			return &MarkResult{Record: existing, Created: false}, nil
		}
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	return &MarkResult{Record: record, Created: true}, nil
}

// IsRecentDuplicate reports whether the student already checked in within the
// duplicate window. Kiosks use it to suppress repeat announcements while a
// student lingers in front of the camera.
func (s *Service) IsRecentDuplicate(ctx context.Context, sessionID string, studentID int64) (bool, error) {
	record, err := s.records.GetRecord(ctx, sessionID, studentID)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load record: %w", err)
	}
	if record.CheckInAt == nil {
		return false, nil
	}
	window := time.Duration(s.opts.DuplicateWindowMinutes) * time.Minute
	return s.now().Sub(*record.CheckInAt) < window, nil
}

// SetStatus overrides a record's status, e.g. a teacher excusing an absence.
func (s *Service) SetStatus(ctx context.Context, sessionID string, studentID int64, status database.AttendanceStatus, recordedBy string) (*database.AttendanceRecord, error) {
	record, err := s.records.GetRecord(ctx, sessionID, studentID)
	if errors.Is(err, database.ErrNotFound) {
		record = &database.AttendanceRecord{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			StudentID:  studentID,
			Status:     status,
			Method:     database.MethodManual,
			RecordedBy: recordedBy,
		}
		if createErr := s.records.CreateRecord(ctx, record); createErr != nil {
			return nil, fmt.Errorf("failed to create record: %w", createErr)
		}
		return record, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	if err := s.records.UpdateRecordStatus(ctx, record.ID, status); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	record.Status = status
	record.RecordedBy = recordedBy
	return record, nil
}

// OpenSession creates a session for a course on a date, enforcing one session
// per (course, date).
func (s *Service) OpenSession(ctx context.Context, courseID int64, date string, startsAt, endsAt *time.Time, createdBy string) (*database.Session, error) {
	if _, err := s.courses.GetCourse(ctx, courseID); err != nil {
		return nil, fmt.Errorf("failed to load course: %w", err)
	}

	if existing, err := s.sessions.GetSessionByCourseDate(ctx, courseID, date); err == nil {
		return existing, nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing session: %w", err)
	}

	session := &database.Session{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		Date:      date,
		StartsAt:  startsAt,
		EndsAt:    endsAt,
		Active:    true,
		CreatedBy: createdBy,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return s.sessions.GetSessionByCourseDate(ctx, courseID, date)
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// CloseSession deactivates a session and back-fills an absent record for
// every enrolled student who never checked in.
func (s *Service) CloseSession(ctx context.Context, sessionID string, closedBy string) (int, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.Active {
		return 0, nil
	}

	now := s.now()
	if err := s.sessions.CloseSession(ctx, sessionID, now); err != nil {
		return 0, fmt.Errorf("failed to close session: %w", err)
	}

	enrolled, err := s.courses.EnrolledStudents(ctx, session.CourseID)
	if err != nil {
		return 0, fmt.Errorf("failed to list enrolled students: %w", err)
	}

	recorded, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to list session records: %w", err)
	}
	seen := make(map[int64]bool, len(recorded))
	for _, r := range recorded {
		seen[r.StudentID] = true
	}

	absents := 0
	for _, student := range enrolled {
		if seen[student.ID] {
			continue
		}
		record := &database.AttendanceRecord{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			StudentID:  student.ID,
			Status:     database.StatusAbsent,
			Method:     database.MethodManual,
			RecordedBy: closedBy,
		}
		if err := s.records.CreateRecord(ctx, record); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				continue
			}
			return absents, fmt.Errorf("failed to back-fill absence for student %d: %w", student.ID, err)
		}
		absents++
	}

	log.Printf("closed session %s, back-filled %d absences", sessionID, absents)
	return absents, nil
}

// statusFor decides present vs late from the session start and cutoff.
func (s *Service) statusFor(session *database.Session, checkIn time.Time) database.AttendanceStatus {
	if session.StartsAt == nil {
		return database.StatusPresent
	}
	cutoff := session.StartsAt.Add(time.Duration(s.opts.LateArrivalMinutes) * time.Minute)
	if checkIn.After(cutoff) {
		return database.StatusLate
	}
	return database.StatusPresent
}
