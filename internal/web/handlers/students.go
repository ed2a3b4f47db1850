package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/facemark/facemark/internal/constants"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/embedding"
	"github.com/facemark/facemark/internal/recognition"
)

// StudentsHandler handles roster CRUD and face registration.
type StudentsHandler struct {
	students database.StudentWriter
	samples  database.FaceSampleWriter
	provider embedding.Provider
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(students database.StudentWriter, samples database.FaceSampleWriter, provider embedding.Provider) *StudentsHandler {
	return &StudentsHandler{students: students, samples: samples, provider: provider}
}

type studentResponse struct {
	ID             int64  `json:"id"`
	RollNumber     string `json:"roll_number"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Department     string `json:"department"`
	Semester       int    `json:"semester"`
	FaceRegistered bool   `json:"face_registered"`
	Active         bool   `json:"active"`
	CreatedAt      string `json:"created_at"`
}

func toStudentResponse(s *database.Student) studentResponse {
	return studentResponse{
		ID:             s.ID,
		RollNumber:     s.RollNumber,
		FullName:       s.FullName,
		Email:          s.Email,
		Department:     s.Department,
		Semester:       s.Semester,
		FaceRegistered: s.FaceRegistered,
		Active:         s.Active,
		CreatedAt:      s.CreatedAt.Format(time.RFC3339),
	}
}

// searchScanLimit bounds how many students a name search walks through.
const searchScanLimit = 10000

// List returns active students with pagination. A q parameter filters by
// roll number or diacritics-insensitive name match.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("q"); q != "" {
		h.search(w, r, q)
		return
	}

	limit, offset := pagination(r)

	students, err := h.students.ListStudents(r.Context(), limit, offset)
	if err != nil {
		log.Printf("failed to list students: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}
	total, err := h.students.CountStudents(r.Context())
	if err != nil {
		log.Printf("failed to count students: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}

	out := make([]studentResponse, 0, len(students))
	for i := range students {
		out = append(out, toStudentResponse(&students[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"students": out,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// search filters students by roll number or normalized full name, so
// "jiri" finds "Jiří".
func (h *StudentsHandler) search(w http.ResponseWriter, r *http.Request, q string) {
	students, err := h.students.ListStudents(r.Context(), searchScanLimit, 0)
	if err != nil {
		log.Printf("failed to list students: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to search students")
		return
	}

	needle := recognition.NormalizeStudentName(q)
	out := make([]studentResponse, 0)
	for i := range students {
		s := &students[i]
		if strings.Contains(strings.ToLower(s.RollNumber), strings.ToLower(q)) ||
			strings.Contains(recognition.NormalizeStudentName(s.FullName), needle) {
			out = append(out, toStudentResponse(s))
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"students": out, "total": len(out)})
}

// Get returns one student.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	student, err := h.students.GetStudent(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		log.Printf("failed to get student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to get student")
		return
	}
	respondJSON(w, http.StatusOK, toStudentResponse(student))
}

type studentRequest struct {
	RollNumber string `json:"roll_number"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Semester   int    `json:"semester"`
	Active     *bool  `json:"active,omitempty"`
}

// Create adds a student to the roster.
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.RollNumber == "" || req.FullName == "" {
		respondError(w, http.StatusBadRequest, "roll_number and full_name are required")
		return
	}

	student := &database.Student{
		RollNumber: req.RollNumber,
		FullName:   req.FullName,
		Email:      req.Email,
		Department: req.Department,
		Semester:   req.Semester,
		Active:     true,
	}
	if _, err := h.students.CreateStudent(r.Context(), student); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			respondError(w, http.StatusConflict, "roll number already exists")
			return
		}
		log.Printf("failed to create student: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create student")
		return
	}
	respondJSON(w, http.StatusCreated, toStudentResponse(student))
}

// Update modifies a student's mutable fields.
func (h *StudentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	var req studentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	student, err := h.students.GetStudent(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		log.Printf("failed to get student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to update student")
		return
	}

	if req.RollNumber != "" {
		student.RollNumber = req.RollNumber
	}
	if req.FullName != "" {
		student.FullName = req.FullName
	}
	if req.Email != "" {
		student.Email = req.Email
	}
	if req.Department != "" {
		student.Department = req.Department
	}
	if req.Semester > 0 {
		student.Semester = req.Semester
	}
	if req.Active != nil {
		student.Active = *req.Active
	}

	if err := h.students.UpdateStudent(r.Context(), student); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			respondError(w, http.StatusConflict, "roll number already exists")
			return
		}
		log.Printf("failed to update student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to update student")
		return
	}
	respondJSON(w, http.StatusOK, toStudentResponse(student))
}

// Delete deactivates a student and drops their face samples.
func (h *StudentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	if err := h.students.DeleteStudent(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "student not found")
			return
		}
		log.Printf("failed to delete student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to delete student")
		return
	}

	if _, err := h.samples.DeleteSamplesByStudent(r.Context(), id); err != nil {
		log.Printf("failed to delete face samples for student %d: %v", id, err)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// RegisterFace adds a face sample for a student. Samples are append-only:
// registering again adds another angle.
func (h *StudentsHandler) RegisterFace(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	student, err := h.students.GetStudent(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		log.Printf("failed to get student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to register face")
		return
	}

	imageData, err := readUploadedImage(r)
	if err != nil || len(imageData) == 0 {
		respondError(w, http.StatusBadRequest, "image upload is required")
		return
	}

	faces, err := h.provider.DetectFaces(r.Context(), imageData)
	if err != nil {
		log.Printf("face detection failed for student %d: %v", id, err)
		respondError(w, http.StatusBadGateway, "face detection failed")
		return
	}
	if len(faces) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "no face detected in image")
		return
	}
	if len(faces) > 1 {
		respondError(w, http.StatusUnprocessableEntity, "multiple faces detected, use a photo with one face")
		return
	}

	face := faces[0]
	if face.DetScore < constants.DefaultDetectionConfidence {
		respondError(w, http.StatusUnprocessableEntity, "face quality too low for registration")
		return
	}

	sample := &database.FaceSample{
		StudentID: student.ID,
		Embedding: face.Embedding,
		Dim:       len(face.Embedding),
		Model:     "insightface",
		DetScore:  face.DetScore,
	}
	if _, err := h.samples.SaveSample(r.Context(), sample); err != nil {
		log.Printf("failed to save face sample for student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to register face")
		return
	}

	if !student.FaceRegistered {
		if err := h.students.SetFaceRegistered(r.Context(), student.ID, true); err != nil {
			log.Printf("failed to flag face registration for student %d: %v", id, err)
		}
	}

	count, err := h.samples.CountSamplesByStudent(r.Context(), student.ID)
	if err != nil {
		count = 0
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"student_id":   student.ID,
		"sample_id":    sample.ID,
		"det_score":    face.DetScore,
		"sample_count": count,
	})
}

// FaceStatus reports whether a student has registered samples.
func (h *StudentsHandler) FaceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	student, err := h.students.GetStudent(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		log.Printf("failed to get student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to get face status")
		return
	}

	count, err := h.samples.CountSamplesByStudent(r.Context(), id)
	if err != nil {
		log.Printf("failed to count face samples for student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to get face status")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"student_id":      student.ID,
		"face_registered": student.FaceRegistered,
		"sample_count":    count,
	})
}

// DeleteFace removes all face samples for a student.
func (h *StudentsHandler) DeleteFace(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	if _, err := h.students.GetStudent(r.Context(), id); errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	} else if err != nil {
		log.Printf("failed to get student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to delete face")
		return
	}

	deleted, err := h.samples.DeleteSamplesByStudent(r.Context(), id)
	if err != nil {
		log.Printf("failed to delete face samples for student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to delete face")
		return
	}

	if err := h.students.SetFaceRegistered(r.Context(), id, false); err != nil {
		log.Printf("failed to clear face registration for student %d: %v", id, err)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"student_id":      id,
		"deleted_samples": len(deleted),
	})
}
