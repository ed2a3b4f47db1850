package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/facemark/facemark/internal/attendance"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/mock"
	"github.com/facemark/facemark/internal/embedding"
	"github.com/facemark/facemark/internal/recognition"
	"github.com/facemark/facemark/internal/voice"
)

type recognizeFixture struct {
	handler  *RecognizeHandler
	notifier *recordingNotifier
	students *mock.MockStudentStore
	sessions *mock.MockSessionStore
	records  *mock.MockAttendanceStore
	samples  *mock.MockFaceSampleStore
}

// newRecognizeFixture wires the pipeline with one registered student whose
// face the provider will report.
func newRecognizeFixture(provider embedding.Provider) *recognizeFixture {
	students := mock.NewMockStudentStore()
	courses := mock.NewMockCourseStore(students)
	sessions := mock.NewMockSessionStore()
	records := mock.NewMockAttendanceStore(sessions)
	samples := mock.NewMockFaceSampleStore()
	notifier := &recordingNotifier{}

	students.AddStudent(database.Student{
		ID: 1, RollNumber: "CS-101", FullName: "Ada Example",
		Active: true, FaceRegistered: true,
	})
	samples.AddSample(database.FaceSample{
		StudentID: 1, Embedding: []float32{1, 0, 0},
		StudentRoll: "CS-101", StudentName: "Ada Example",
	})
	sessions.AddSession(database.Session{ID: "sess-1", CourseID: 1, Date: "2026-03-02", Active: true})

	recognizer := recognition.NewService(provider, samples, recognition.Options{})
	att := attendance.NewService(sessions, records, courses, attendance.Options{})

	return &recognizeFixture{
		handler:  NewRecognizeHandler(recognizer, att, students, notifier),
		notifier: notifier,
		students: students,
		sessions: sessions,
		records:  records,
		samples:  samples,
	}
}

func TestRecognize_Match(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{goodFace([]float32{1, 0, 0})}}
	f := newRecognizeFixture(provider)

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize", []byte("fake-jpeg"), nil)
	rec := httptest.NewRecorder()
	f.handler.Recognize(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp recognizeResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Outcome != "match" {
		t.Fatalf("expected match, got %s (%s)", resp.Outcome, resp.Reason)
	}
	if resp.StudentID != 1 || resp.RollNumber != "CS-101" {
		t.Errorf("unexpected identity: id=%d roll=%s", resp.StudentID, resp.RollNumber)
	}
	if resp.FullName != "Ada Example" {
		t.Errorf("expected full name, got '%s'", resp.FullName)
	}
	if resp.Confidence < 0.99 {
		t.Errorf("expected near-perfect confidence, got %f", resp.Confidence)
	}
}

func TestRecognize_NoFace(t *testing.T) {
	f := newRecognizeFixture(&fakeProvider{})

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize", []byte("fake-jpeg"), nil)
	rec := httptest.NewRecorder()
	f.handler.Recognize(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp recognizeResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Outcome != "no_face" {
		t.Errorf("expected no_face, got %s", resp.Outcome)
	}
}

func TestRecognize_UnknownFace(t *testing.T) {
	// Orthogonal to the registered sample, similarity 0
	provider := &fakeProvider{faces: []embedding.DetectedFace{goodFace([]float32{0, 1, 0})}}
	f := newRecognizeFixture(provider)

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize", []byte("fake-jpeg"), nil)
	rec := httptest.NewRecorder()
	f.handler.Recognize(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp recognizeResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Outcome != "unknown_face" {
		t.Errorf("expected unknown_face, got %s", resp.Outcome)
	}
}

func TestRecognizeAttendance_MarksPresent(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{goodFace([]float32{1, 0, 0})}}
	f := newRecognizeFixture(provider)

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize/attendance", []byte("fake-jpeg"),
		map[string]string{"session_id": "sess-1"})
	rec := httptest.NewRecorder()
	f.handler.RecognizeAttendance(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp recognizeResponse
	parseJSONResponse(t, rec, &resp)
	if !resp.Marked {
		t.Fatal("expected the check-in to be marked")
	}
	if resp.Status != "present" {
		t.Errorf("expected status present, got %s", resp.Status)
	}

	record, err := f.records.GetRecord(req.Context(), "sess-1", 1)
	if err != nil {
		t.Fatalf("expected a stored record: %v", err)
	}
	if record.Method != database.MethodFace {
		t.Errorf("expected face method, got %s", record.Method)
	}

	keys := f.notifier.announced()
	if len(keys) != 1 || keys[0] != voice.MsgPresent {
		t.Errorf("expected a present announcement, got %v", keys)
	}
}

func TestRecognizeAttendance_LateAfterCutoff(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{goodFace([]float32{1, 0, 0})}}
	f := newRecognizeFixture(provider)

	start := time.Now().Add(-time.Hour)
	f.sessions.AddSession(database.Session{
		ID: "sess-late", CourseID: 2, Date: "2026-03-02",
		StartsAt: &start, Active: true,
	})

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize/attendance", []byte("fake-jpeg"),
		map[string]string{"session_id": "sess-late"})
	rec := httptest.NewRecorder()
	f.handler.RecognizeAttendance(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp recognizeResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Status != "late" {
		t.Errorf("expected status late, got %s", resp.Status)
	}

	keys := f.notifier.announced()
	if len(keys) != 1 || keys[0] != voice.MsgLate {
		t.Errorf("expected a late announcement, got %v", keys)
	}
}

func TestRecognizeAttendance_DuplicateSuppressed(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{goodFace([]float32{1, 0, 0})}}
	f := newRecognizeFixture(provider)

	now := time.Now()
	f.records.CreateRecord(t.Context(), &database.AttendanceRecord{
		ID: "r1", SessionID: "sess-1", StudentID: 1,
		Status: database.StatusPresent, Method: database.MethodFace,
		CheckInAt: &now,
	})

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize/attendance", []byte("fake-jpeg"),
		map[string]string{"session_id": "sess-1"})
	rec := httptest.NewRecorder()
	f.handler.RecognizeAttendance(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp recognizeResponse
	parseJSONResponse(t, rec, &resp)
	if !resp.Duplicate {
		t.Error("expected the sighting to be flagged as duplicate")
	}
	if resp.Marked {
		t.Error("expected no new record for a duplicate sighting")
	}
	if keys := f.notifier.announced(); len(keys) != 0 {
		t.Errorf("expected silence for a duplicate sighting, got %v", keys)
	}
}

func TestRecognizeAttendance_StaleCheckInMarksAgain(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{goodFace([]float32{1, 0, 0})}}
	f := newRecognizeFixture(provider)

	// Checked in long before the duplicate window
	old := time.Now().Add(-time.Hour)
	f.records.CreateRecord(t.Context(), &database.AttendanceRecord{
		ID: "r1", SessionID: "sess-1", StudentID: 1,
		Status: database.StatusPresent, Method: database.MethodFace,
		CheckInAt: &old,
	})

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize/attendance", []byte("fake-jpeg"),
		map[string]string{"session_id": "sess-1"})
	rec := httptest.NewRecorder()
	f.handler.RecognizeAttendance(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp recognizeResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Duplicate {
		t.Error("expected stale check-in not to count as duplicate")
	}
	// Marking is idempotent, so the existing record is acknowledged
	if resp.Marked {
		t.Error("expected Created=false for an existing record")
	}
	if keys := f.notifier.announced(); len(keys) != 1 || keys[0] != voice.MsgAlreadyRecorded {
		t.Errorf("expected an already-recorded announcement, got %v", keys)
	}
}

func TestRecognizeAttendance_UnknownFaceAnnounces(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{goodFace([]float32{0, 1, 0})}}
	f := newRecognizeFixture(provider)

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize/attendance", []byte("fake-jpeg"),
		map[string]string{"session_id": "sess-1"})
	rec := httptest.NewRecorder()
	f.handler.RecognizeAttendance(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp recognizeResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Outcome != "unknown_face" {
		t.Errorf("expected unknown_face, got %s", resp.Outcome)
	}
	if keys := f.notifier.announced(); len(keys) != 1 || keys[0] != voice.MsgFaceNotRecognized {
		t.Errorf("expected a not-recognized announcement, got %v", keys)
	}
}

func TestRecognizeAttendance_MultipleFaces(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{
		goodFace([]float32{1, 0, 0}),
		goodFace([]float32{0, 1, 0}),
	}}
	f := newRecognizeFixture(provider)

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize/attendance", []byte("fake-jpeg"),
		map[string]string{"session_id": "sess-1"})
	rec := httptest.NewRecorder()
	f.handler.RecognizeAttendance(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp recognizeResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Outcome != "multiple_faces" {
		t.Errorf("expected multiple_faces, got %s", resp.Outcome)
	}
	if keys := f.notifier.announced(); len(keys) != 1 || keys[0] != voice.MsgMultipleFaces {
		t.Errorf("expected a multiple-faces announcement, got %v", keys)
	}
}

func TestRecognizeAttendance_MissingSession(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{goodFace([]float32{1, 0, 0})}}
	f := newRecognizeFixture(provider)

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize/attendance", []byte("fake-jpeg"), nil)
	rec := httptest.NewRecorder()
	f.handler.RecognizeAttendance(rec, req)

	assertStatusCode(t, rec, http.StatusBadRequest)
	assertJSONError(t, rec, "session_id is required")
}
