package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/facemark/facemark/internal/database"
)

// CoursesHandler handles course CRUD and enrollments.
type CoursesHandler struct {
	courses database.CourseStore
}

// NewCoursesHandler creates a new courses handler.
func NewCoursesHandler(courses database.CourseStore) *CoursesHandler {
	return &CoursesHandler{courses: courses}
}

type courseRequest struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	InstructorID *int64 `json:"instructor_id,omitempty"`
	MaxStudents  int    `json:"max_students"`
	Active       *bool  `json:"active,omitempty"`
}

// List returns active courses.
func (h *CoursesHandler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.ListCourses(r.Context())
	if err != nil {
		log.Printf("failed to list courses: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list courses")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"courses": courses, "total": len(courses)})
}

// Get returns one course.
func (h *CoursesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid course ID")
		return
	}

	course, err := h.courses.GetCourse(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "course not found")
		return
	}
	if err != nil {
		log.Printf("failed to get course %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to get course")
		return
	}
	respondJSON(w, http.StatusOK, course)
}

// Create adds a course.
func (h *CoursesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Code == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "code and name are required")
		return
	}

	course := &database.Course{
		Code:         req.Code,
		Name:         req.Name,
		Description:  req.Description,
		InstructorID: req.InstructorID,
		MaxStudents:  req.MaxStudents,
		Active:       true,
	}
	if _, err := h.courses.CreateCourse(r.Context(), course); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			respondError(w, http.StatusConflict, "course code already exists")
			return
		}
		log.Printf("failed to create course: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create course")
		return
	}
	respondJSON(w, http.StatusCreated, course)
}

// Update modifies a course.
func (h *CoursesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid course ID")
		return
	}

	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	course, err := h.courses.GetCourse(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "course not found")
		return
	}
	if err != nil {
		log.Printf("failed to get course %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to update course")
		return
	}

	if req.Code != "" {
		course.Code = req.Code
	}
	if req.Name != "" {
		course.Name = req.Name
	}
	if req.Description != "" {
		course.Description = req.Description
	}
	if req.InstructorID != nil {
		course.InstructorID = req.InstructorID
	}
	if req.MaxStudents > 0 {
		course.MaxStudents = req.MaxStudents
	}
	if req.Active != nil {
		course.Active = *req.Active
	}

	if err := h.courses.UpdateCourse(r.Context(), course); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			respondError(w, http.StatusConflict, "course code already exists")
			return
		}
		log.Printf("failed to update course %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to update course")
		return
	}
	respondJSON(w, http.StatusOK, course)
}

// Delete deactivates a course.
func (h *CoursesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid course ID")
		return
	}

	if err := h.courses.DeleteCourse(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "course not found")
			return
		}
		log.Printf("failed to delete course %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to delete course")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Students returns active students enrolled in a course.
func (h *CoursesHandler) Students(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid course ID")
		return
	}

	if _, err := h.courses.GetCourse(r.Context(), id); errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "course not found")
		return
	} else if err != nil {
		log.Printf("failed to get course %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to list enrolled students")
		return
	}

	students, err := h.courses.EnrolledStudents(r.Context(), id)
	if err != nil {
		log.Printf("failed to list enrolled students for course %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to list enrolled students")
		return
	}

	out := make([]studentResponse, 0, len(students))
	for i := range students {
		out = append(out, toStudentResponse(&students[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"students": out, "total": len(out)})
}

type enrollRequest struct {
	StudentID int64 `json:"student_id"`
}

// Enroll links a student to a course.
func (h *CoursesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid course ID")
		return
	}

	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID <= 0 {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if err := h.courses.Enroll(r.Context(), req.StudentID, id); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			respondError(w, http.StatusConflict, "student already enrolled")
			return
		}
		log.Printf("failed to enroll student %d in course %d: %v", req.StudentID, id, err)
		respondError(w, http.StatusInternalServerError, "failed to enroll student")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "enrolled"})
}

// Unenroll removes a student from a course.
func (h *CoursesHandler) Unenroll(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid course ID")
		return
	}
	studentID, ok := urlParamInt64(r, "studentID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	if err := h.courses.Unenroll(r.Context(), studentID, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "enrollment not found")
			return
		}
		log.Printf("failed to unenroll student %d from course %d: %v", studentID, id, err)
		respondError(w, http.StatusInternalServerError, "failed to unenroll student")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "unenrolled"})
}
