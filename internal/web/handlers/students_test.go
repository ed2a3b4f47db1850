package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/mock"
	"github.com/facemark/facemark/internal/embedding"
)

func studentsFixture(provider embedding.Provider) (*StudentsHandler, *mock.MockStudentStore, *mock.MockFaceSampleStore) {
	students := mock.NewMockStudentStore()
	samples := mock.NewMockFaceSampleStore()
	return NewStudentsHandler(students, samples, provider), students, samples
}

func TestStudents_CreateAndGet(t *testing.T) {
	handler, _, _ := studentsFixture(&fakeProvider{})

	req := jsonRequest(t, http.MethodPost, "/api/v1/students", studentRequest{
		RollNumber: "CS-101",
		FullName:   "Ada Example",
		Department: "CS",
		Semester:   3,
	})
	rec := httptest.NewRecorder()
	handler.Create(rec, req)
	assertStatusCode(t, rec, http.StatusCreated)

	var created studentResponse
	parseJSONResponse(t, rec, &created)
	if created.ID == 0 {
		t.Fatal("expected a student ID")
	}
	if !created.Active {
		t.Error("expected new student to be active")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/students/1", nil)
	getReq = requestWithChiParams(getReq, map[string]string{"id": "1"})
	getRec := httptest.NewRecorder()
	handler.Get(getRec, getReq)
	assertStatusCode(t, getRec, http.StatusOK)

	var fetched studentResponse
	parseJSONResponse(t, getRec, &fetched)
	if fetched.RollNumber != "CS-101" {
		t.Errorf("expected roll CS-101, got %s", fetched.RollNumber)
	}
}

func TestStudents_CreateDuplicateRoll(t *testing.T) {
	handler, students, _ := studentsFixture(&fakeProvider{})
	students.AddStudent(database.Student{RollNumber: "CS-101", FullName: "First", Active: true})

	req := jsonRequest(t, http.MethodPost, "/api/v1/students", studentRequest{
		RollNumber: "CS-101",
		FullName:   "Second",
	})
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	assertStatusCode(t, rec, http.StatusConflict)
	assertJSONError(t, rec, "roll number already exists")
}

func TestStudents_List(t *testing.T) {
	handler, students, _ := studentsFixture(&fakeProvider{})
	students.AddStudent(database.Student{RollNumber: "CS-101", FullName: "A", Active: true})
	students.AddStudent(database.Student{RollNumber: "CS-102", FullName: "B", Active: true})
	students.AddStudent(database.Student{RollNumber: "CS-103", FullName: "C", Active: false})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp struct {
		Students []studentResponse `json:"students"`
		Total    int               `json:"total"`
	}
	parseJSONResponse(t, rec, &resp)
	if resp.Total != 2 {
		t.Errorf("expected 2 active students, got %d", resp.Total)
	}
}

func TestStudents_SearchIgnoresDiacritics(t *testing.T) {
	handler, students, _ := studentsFixture(&fakeProvider{})
	students.AddStudent(database.Student{RollNumber: "CS-101", FullName: "Jiří Novák", Active: true})
	students.AddStudent(database.Student{RollNumber: "CS-102", FullName: "Ada Example", Active: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students?q=jiri", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp struct {
		Students []studentResponse `json:"students"`
		Total    int               `json:"total"`
	}
	parseJSONResponse(t, rec, &resp)
	if resp.Total != 1 {
		t.Fatalf("expected 1 hit, got %d", resp.Total)
	}
	if resp.Students[0].RollNumber != "CS-101" {
		t.Errorf("expected CS-101, got %s", resp.Students[0].RollNumber)
	}
}

func TestStudents_Update(t *testing.T) {
	handler, students, _ := studentsFixture(&fakeProvider{})
	students.AddStudent(database.Student{ID: 1, RollNumber: "CS-101", FullName: "Old Name", Active: true})

	req := jsonRequest(t, http.MethodPut, "/api/v1/students/1", studentRequest{FullName: "New Name"})
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	handler.Update(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp studentResponse
	parseJSONResponse(t, rec, &resp)
	if resp.FullName != "New Name" {
		t.Errorf("expected updated name, got %s", resp.FullName)
	}
	if resp.RollNumber != "CS-101" {
		t.Errorf("expected roll number to survive partial update, got %s", resp.RollNumber)
	}
}

func TestStudents_DeleteRemovesSamples(t *testing.T) {
	handler, students, samples := studentsFixture(&fakeProvider{})
	students.AddStudent(database.Student{ID: 1, RollNumber: "CS-101", FullName: "A", Active: true, FaceRegistered: true})
	samples.AddSample(database.FaceSample{StudentID: 1, Embedding: []float32{1, 0, 0}})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/students/1", nil)
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	handler.Delete(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	count, _ := samples.CountSamplesByStudent(req.Context(), 1)
	if count != 0 {
		t.Errorf("expected samples to be deleted, %d remain", count)
	}
}

func TestStudents_NotFound(t *testing.T) {
	handler, _, _ := studentsFixture(&fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/99", nil)
	req = requestWithChiParams(req, map[string]string{"id": "99"})
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	assertStatusCode(t, rec, http.StatusNotFound)
}

func TestRegisterFace(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{goodFace([]float32{1, 0, 0})}}
	handler, students, samples := studentsFixture(provider)
	students.AddStudent(database.Student{ID: 1, RollNumber: "CS-101", FullName: "A", Active: true})

	req := multipartRequest(t, http.MethodPost, "/api/v1/students/1/face", []byte("fake-jpeg"), nil)
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	handler.RegisterFace(rec, req)

	assertStatusCode(t, rec, http.StatusCreated)
	var resp map[string]any
	parseJSONResponse(t, rec, &resp)
	if resp["sample_count"].(float64) != 1 {
		t.Errorf("expected sample_count 1, got %v", resp["sample_count"])
	}

	student, err := students.GetStudent(req.Context(), 1)
	if err != nil {
		t.Fatalf("failed to get student: %v", err)
	}
	if !student.FaceRegistered {
		t.Error("expected face_registered to be set")
	}

	stored, _ := samples.GetSamplesByStudent(req.Context(), 1)
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored sample, got %d", len(stored))
	}
	if stored[0].Model != "insightface" {
		t.Errorf("expected model 'insightface', got '%s'", stored[0].Model)
	}
}

func TestRegisterFace_SecondSampleAppends(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{goodFace([]float32{1, 0, 0})}}
	handler, students, samples := studentsFixture(provider)
	students.AddStudent(database.Student{ID: 1, RollNumber: "CS-101", FullName: "A", Active: true, FaceRegistered: true})
	samples.AddSample(database.FaceSample{StudentID: 1, Embedding: []float32{0, 1, 0}})

	req := multipartRequest(t, http.MethodPost, "/api/v1/students/1/face", []byte("fake-jpeg"), nil)
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	handler.RegisterFace(rec, req)

	assertStatusCode(t, rec, http.StatusCreated)
	count, _ := samples.CountSamplesByStudent(req.Context(), 1)
	if count != 2 {
		t.Errorf("expected 2 samples after re-registration, got %d", count)
	}
}

func TestRegisterFace_NoFace(t *testing.T) {
	handler, students, _ := studentsFixture(&fakeProvider{})
	students.AddStudent(database.Student{ID: 1, RollNumber: "CS-101", FullName: "A", Active: true})

	req := multipartRequest(t, http.MethodPost, "/api/v1/students/1/face", []byte("fake-jpeg"), nil)
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	handler.RegisterFace(rec, req)

	assertStatusCode(t, rec, http.StatusUnprocessableEntity)
}

func TestRegisterFace_MultipleFaces(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{
		goodFace([]float32{1, 0, 0}),
		goodFace([]float32{0, 1, 0}),
	}}
	handler, students, _ := studentsFixture(provider)
	students.AddStudent(database.Student{ID: 1, RollNumber: "CS-101", FullName: "A", Active: true})

	req := multipartRequest(t, http.MethodPost, "/api/v1/students/1/face", []byte("fake-jpeg"), nil)
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	handler.RegisterFace(rec, req)

	assertStatusCode(t, rec, http.StatusUnprocessableEntity)
}

func TestRegisterFace_LowQuality(t *testing.T) {
	provider := &fakeProvider{faces: []embedding.DetectedFace{{
		BBox:      []float64{0, 0, 120, 120},
		DetScore:  0.2,
		Embedding: []float32{1, 0, 0},
	}}}
	handler, students, _ := studentsFixture(provider)
	students.AddStudent(database.Student{ID: 1, RollNumber: "CS-101", FullName: "A", Active: true})

	req := multipartRequest(t, http.MethodPost, "/api/v1/students/1/face", []byte("fake-jpeg"), nil)
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	handler.RegisterFace(rec, req)

	assertStatusCode(t, rec, http.StatusUnprocessableEntity)
}

func TestDeleteFace(t *testing.T) {
	handler, students, samples := studentsFixture(&fakeProvider{})
	students.AddStudent(database.Student{ID: 1, RollNumber: "CS-101", FullName: "A", Active: true, FaceRegistered: true})
	samples.AddSample(database.FaceSample{StudentID: 1, Embedding: []float32{1, 0, 0}})
	samples.AddSample(database.FaceSample{StudentID: 1, Embedding: []float32{0, 1, 0}})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/students/1/face", nil)
	req = requestWithChiParams(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	handler.DeleteFace(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp map[string]any
	parseJSONResponse(t, rec, &resp)
	if resp["deleted_samples"].(float64) != 2 {
		t.Errorf("expected 2 deleted samples, got %v", resp["deleted_samples"])
	}

	student, _ := students.GetStudent(req.Context(), 1)
	if student.FaceRegistered {
		t.Error("expected face_registered to be cleared")
	}
}
