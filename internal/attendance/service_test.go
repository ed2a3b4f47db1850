package attendance

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/mock"
)

type fixture struct {
	students *mock.MockStudentStore
	courses  *mock.MockCourseStore
	sessions *mock.MockSessionStore
	records  *mock.MockAttendanceStore
	service  *Service
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	students := mock.NewMockStudentStore()
	courses := mock.NewMockCourseStore(students)
	sessions := mock.NewMockSessionStore()
	records := mock.NewMockAttendanceStore(sessions)

	service := NewService(sessions, records, courses, Options{})
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	f := &fixture{students: students, courses: courses, sessions: sessions, records: records, service: service, now: now}

	students.AddStudent(database.Student{ID: 10, RollNumber: "CS-001", FullName: "Jan Novak", Active: true})
	students.AddStudent(database.Student{ID: 20, RollNumber: "CS-002", FullName: "Petra Svoboda", Active: true})
	courses.AddCourse(database.Course{ID: 1, Code: "CS101", Name: "Intro", Active: true})
	courses.Enroll(context.Background(), 10, 1)
	courses.Enroll(context.Background(), 20, 1)

	startsAt := now.Add(-5 * time.Minute)
	sessions.AddSession(database.Session{
		ID: "sess-1", CourseID: 1, Date: "2026-03-02", StartsAt: &startsAt, Active: true,
	})
	return f
}

func TestMark_Present(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Mark(context.Background(), "sess-1", 10, database.MethodFace, 0.92, true, "kiosk")
	if err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	if !result.Created {
		t.Error("expected a new record")
	}
	if result.Record.Status != database.StatusPresent {
		t.Errorf("expected present, got %s", result.Record.Status)
	}
	if result.Record.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %v", result.Record.Confidence)
	}
}

func TestMark_LateAfterCutoff(t *testing.T) {
	f := newFixture(t)

	// Session started 5 minutes ago; jump past the 15 minute cutoff.
	f.service.now = func() time.Time { return f.now.Add(20 * time.Minute) }

	result, err := f.service.Mark(context.Background(), "sess-1", 10, database.MethodFace, 0.9, true, "kiosk")
	if err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	if result.Record.Status != database.StatusLate {
		t.Errorf("expected late, got %s", result.Record.Status)
	}
}

func TestMark_Idempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.service.Mark(context.Background(), "sess-1", 10, database.MethodFace, 0.9, true, "kiosk")
	if err != nil {
		t.Fatalf("first Mark failed: %v", err)
	}

	second, err := f.service.Mark(context.Background(), "sess-1", 10, database.MethodFace, 0.8, true, "kiosk")
	if err != nil {
		t.Fatalf("second Mark failed: %v", err)
	}
	if second.Created {
		t.Error("expected repeat check-in to reuse the record")
	}
	if second.Record.ID != first.Record.ID {
		t.Errorf("expected record %s, got %s", first.Record.ID, second.Record.ID)
	}
	// The original confidence must survive the repeat.
	if second.Record.Confidence != 0.9 {
		t.Errorf("expected original confidence 0.9, got %v", second.Record.Confidence)
	}
}

func TestMark_ClosedSession(t *testing.T) {
	f := newFixture(t)
	f.sessions.AddSession(database.Session{ID: "sess-closed", CourseID: 1, Date: "2026-03-01", Active: false})

	if _, err := f.service.Mark(context.Background(), "sess-closed", 10, database.MethodFace, 0.9, true, "kiosk"); err == nil {
		t.Error("expected error for closed session")
	}
}

func TestMark_UnknownSession(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service.Mark(context.Background(), "nope", 10, database.MethodFace, 0.9, true, "kiosk"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestIsRecentDuplicate(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service.Mark(context.Background(), "sess-1", 10, database.MethodFace, 0.9, true, "kiosk"); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}

	dup, err := f.service.IsRecentDuplicate(context.Background(), "sess-1", 10)
	if err != nil {
		t.Fatalf("IsRecentDuplicate failed: %v", err)
	}
	if !dup {
		t.Error("expected duplicate right after check-in")
	}

	// Outside the 5 minute window.
	f.service.now = func() time.Time { return f.now.Add(10 * time.Minute) }
	dup, err = f.service.IsRecentDuplicate(context.Background(), "sess-1", 10)
	if err != nil {
		t.Fatalf("IsRecentDuplicate failed: %v", err)
	}
	if dup {
		t.Error("expected no duplicate outside the window")
	}

	dup, err = f.service.IsRecentDuplicate(context.Background(), "sess-1", 20)
	if err != nil {
		t.Fatalf("IsRecentDuplicate failed: %v", err)
	}
	if dup {
		t.Error("expected no duplicate for a student who never checked in")
	}
}

func TestSetStatus_Excuse(t *testing.T) {
	f := newFixture(t)

	record, err := f.service.SetStatus(context.Background(), "sess-1", 10, database.StatusExcused, "teacher1")
	if err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if record.Status != database.StatusExcused {
		t.Errorf("expected excused, got %s", record.Status)
	}
	if record.Method != database.MethodManual {
		t.Errorf("expected manual method, got %s", record.Method)
	}

	stored, err := f.records.GetRecord(context.Background(), "sess-1", 10)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if stored.Status != database.StatusExcused {
		t.Errorf("expected stored excused, got %s", stored.Status)
	}
}

func TestOpenSession_OnePerCourseDate(t *testing.T) {
	f := newFixture(t)

	first, err := f.service.OpenSession(context.Background(), 1, "2026-03-03", nil, nil, "teacher1")
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	second, err := f.service.OpenSession(context.Background(), 1, "2026-03-03", nil, nil, "teacher1")
	if err != nil {
		t.Fatalf("second OpenSession failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the same session, got %s and %s", first.ID, second.ID)
	}
}

func TestOpenSession_UnknownCourse(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service.OpenSession(context.Background(), 999, "2026-03-03", nil, nil, "teacher1"); err == nil {
		t.Error("expected error for unknown course")
	}
}

func TestCloseSession_BackfillsAbsent(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service.Mark(context.Background(), "sess-1", 10, database.MethodFace, 0.9, true, "kiosk"); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}

	absents, err := f.service.CloseSession(context.Background(), "sess-1", "teacher1")
	if err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	if absents != 1 {
		t.Fatalf("expected 1 back-filled absence, got %d", absents)
	}

	record, err := f.records.GetRecord(context.Background(), "sess-1", 20)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record.Status != database.StatusAbsent {
		t.Errorf("expected absent, got %s", record.Status)
	}

	session, _ := f.sessions.GetSession(context.Background(), "sess-1")
	if session.Active {
		t.Error("expected session to be closed")
	}
}

func TestCloseSession_AlreadyClosed(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service.CloseSession(context.Background(), "sess-1", "teacher1"); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}

	absents, err := f.service.CloseSession(context.Background(), "sess-1", "teacher1")
	if err != nil {
		t.Fatalf("second CloseSession failed: %v", err)
	}
	if absents != 0 {
		t.Errorf("expected no back-fill on repeat close, got %d", absents)
	}
}

func TestSessionStats(t *testing.T) {
	f := newFixture(t)

	f.service.Mark(context.Background(), "sess-1", 10, database.MethodFace, 0.9, true, "kiosk")
	f.service.now = func() time.Time { return f.now.Add(20 * time.Minute) }
	f.service.Mark(context.Background(), "sess-1", 20, database.MethodFace, 0.7, true, "kiosk")

	stats, err := f.service.SessionStats(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("SessionStats failed: %v", err)
	}
	if stats.Total != 2 || stats.Present != 1 || stats.Late != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.AttendancePct != 100 {
		t.Errorf("expected 100%% attendance, got %v", stats.AttendancePct)
	}
	if stats.MeanConfidence < 0.79 || stats.MeanConfidence > 0.81 {
		t.Errorf("expected mean confidence ~0.8, got %v", stats.MeanConfidence)
	}
}

func TestStudentCourseStats(t *testing.T) {
	f := newFixture(t)

	f.service.Mark(context.Background(), "sess-1", 10, database.MethodFace, 0.9, true, "kiosk")
	f.service.CloseSession(context.Background(), "sess-1", "teacher1")

	stats, err := f.service.StudentCourseStats(context.Background(), 20, 1, "", "")
	if err != nil {
		t.Fatalf("StudentCourseStats failed: %v", err)
	}
	if stats.Sessions != 1 || stats.Absent != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.AttendancePct != 0 {
		t.Errorf("expected 0%% attendance, got %v", stats.AttendancePct)
	}
}

func TestExportSessionCSV(t *testing.T) {
	f := newFixture(t)

	f.service.Mark(context.Background(), "sess-1", 10, database.MethodFace, 0.9123, true, "kiosk")

	var buf bytes.Buffer
	if err := f.service.ExportSessionCSV(context.Background(), "sess-1", f.students, &buf); err != nil {
		t.Fatalf("ExportSessionCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "roll_number,name,status") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "CS-001") || !strings.Contains(lines[1], "present") {
		t.Errorf("unexpected row: %s", lines[1])
	}
	if !strings.Contains(lines[1], "0.9123") {
		t.Errorf("expected confidence in row: %s", lines[1])
	}
}
