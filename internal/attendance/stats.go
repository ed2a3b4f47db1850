package attendance

import (
	"context"
	"fmt"

	"github.com/facemark/facemark/internal/database"
	"gonum.org/v1/gonum/stat"
)

// SessionStats summarizes one session.
type SessionStats struct {
	SessionID     string  `json:"session_id"`
	Total         int     `json:"total"`
	Present       int     `json:"present"`
	Late          int     `json:"late"`
	Absent        int     `json:"absent"`
	Excused       int     `json:"excused"`
	AttendancePct float64 `json:"attendance_pct"`
	// MeanConfidence over face check-ins, 0 when none
	MeanConfidence float64 `json:"mean_confidence"`
	StdConfidence  float64 `json:"std_confidence"`
}

// StudentCourseStats summarizes one student's record in a course.
type StudentCourseStats struct {
	StudentID     int64   `json:"student_id"`
	CourseID      int64   `json:"course_id"`
	Sessions      int     `json:"sessions"`
	Present       int     `json:"present"`
	Late          int     `json:"late"`
	Absent        int     `json:"absent"`
	Excused       int     `json:"excused"`
	AttendancePct float64 `json:"attendance_pct"`
}

// SessionStats aggregates the records of a session.
func (s *Service) SessionStats(ctx context.Context, sessionID string) (*SessionStats, error) {
	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}

	stats := &SessionStats{SessionID: sessionID, Total: len(records)}
	var confidences []float64
	for _, r := range records {
		switch r.Status {
		case database.StatusPresent:
			stats.Present++
		case database.StatusLate:
			stats.Late++
		case database.StatusAbsent:
			stats.Absent++
		case database.StatusExcused:
			stats.Excused++
		}
		if r.Method == database.MethodFace && r.Confidence > 0 {
			confidences = append(confidences, r.Confidence)
		}
	}

	if stats.Total > 0 {
		stats.AttendancePct = float64(stats.Present+stats.Late) / float64(stats.Total) * 100
	}
	if len(confidences) > 0 {
		stats.MeanConfidence = stat.Mean(confidences, nil)
		if len(confidences) > 1 {
			stats.StdConfidence = stat.StdDev(confidences, nil)
		}
	}
	return stats, nil
}

// StudentCourseStats aggregates a student's records in a course over a date
// range (YYYY-MM-DD, inclusive). Empty bounds mean unbounded.
func (s *Service) StudentCourseStats(ctx context.Context, studentID, courseID int64, from, to string) (*StudentCourseStats, error) {
	records, err := s.records.ListByStudentCourse(ctx, studentID, courseID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list student records: %w", err)
	}

	stats := &StudentCourseStats{StudentID: studentID, CourseID: courseID, Sessions: len(records)}
	for _, r := range records {
		switch r.Status {
		case database.StatusPresent:
			stats.Present++
		case database.StatusLate:
			stats.Late++
		case database.StatusAbsent:
			stats.Absent++
		case database.StatusExcused:
			stats.Excused++
		}
	}
	if stats.Sessions > 0 {
		stats.AttendancePct = float64(stats.Present+stats.Late) / float64(stats.Sessions) * 100
	}
	return stats, nil
}
