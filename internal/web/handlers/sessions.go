package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facemark/facemark/internal/attendance"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/web/middleware"
)

// SessionsHandler handles session lifecycle, records and exports.
type SessionsHandler struct {
	service  *attendance.Service
	sessions database.SessionStore
	students database.StudentReader
	records  database.AttendanceStore
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(service *attendance.Service, sessions database.SessionStore, students database.StudentReader, records database.AttendanceStore) *SessionsHandler {
	return &SessionsHandler{
		service:  service,
		sessions: sessions,
		students: students,
		records:  records,
	}
}

type openSessionRequest struct {
	CourseID int64  `json:"course_id"`
	Date     string `json:"date"`      // YYYY-MM-DD, defaults to today
	StartsAt string `json:"starts_at"` // RFC 3339, optional
	EndsAt   string `json:"ends_at"`   // RFC 3339, optional
}

func actor(r *http.Request) string {
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		return claims.Username
	}
	return "system"
}

// Open creates a session for a course. One session per course per date;
// opening again returns the existing one.
func (h *SessionsHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.CourseID <= 0 {
		respondError(w, http.StatusBadRequest, "course_id is required")
		return
	}

	date := req.Date
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	startsAt, err := parseOptionalTime(req.StartsAt)
	if err != nil {
		respondError(w, http.StatusBadRequest, "starts_at must be RFC 3339")
		return
	}
	endsAt, err := parseOptionalTime(req.EndsAt)
	if err != nil {
		respondError(w, http.StatusBadRequest, "ends_at must be RFC 3339")
		return
	}

	session, err := h.service.OpenSession(r.Context(), req.CourseID, date, startsAt, endsAt, actor(r))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "course not found")
			return
		}
		log.Printf("failed to open session for course %d: %v", req.CourseID, err)
		respondError(w, http.StatusInternalServerError, "failed to open session")
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func parseOptionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Get returns one session.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.sessions.GetSession(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		log.Printf("failed to get session %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// ListByCourse returns a course's sessions, newest first.
func (h *SessionsHandler) ListByCourse(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid course ID")
		return
	}

	sessions, err := h.sessions.ListSessionsByCourse(r.Context(), courseID)
	if err != nil {
		log.Printf("failed to list sessions for course %d: %v", courseID, err)
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "total": len(sessions)})
}

// ListActive returns all open sessions.
func (h *SessionsHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListActiveSessions(r.Context())
	if err != nil {
		log.Printf("failed to list active sessions: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "total": len(sessions)})
}

// Close deactivates a session, back-fills absences and reports the final
// per-status tally.
func (h *SessionsHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	absents, err := h.service.CloseSession(r.Context(), id, actor(r))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("failed to close session %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to close session")
		return
	}

	counts, err := h.records.CountByStatus(r.Context(), id)
	if err != nil {
		log.Printf("failed to count records for session %s: %v", sanitizeForLog(id), err)
		counts = nil
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session_id":         id,
		"absents_backfilled": absents,
		"counts":             counts,
	})
}

// Records lists a session's attendance records.
func (h *SessionsHandler) Records(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.sessions.GetSession(r.Context(), id); errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	} else if err != nil {
		log.Printf("failed to get session %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	records, err := h.records.ListBySession(r.Context(), id)
	if err != nil {
		log.Printf("failed to list records for session %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records, "total": len(records)})
}

type setStatusRequest struct {
	StudentID int64  `json:"student_id"`
	Status    string `json:"status"`
}

// SetStatus lets a teacher override a record's status, creating a manual
// record when the student has none.
func (h *SessionsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID <= 0 {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	status := database.AttendanceStatus(req.Status)
	switch status {
	case database.StatusPresent, database.StatusLate, database.StatusAbsent, database.StatusExcused:
	default:
		respondError(w, http.StatusBadRequest, "status must be present, late, absent or excused")
		return
	}

	record, err := h.service.SetStatus(r.Context(), id, req.StudentID, status, actor(r))
	if err != nil {
		log.Printf("failed to set status for student %d in session %s: %v", req.StudentID, sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to set status")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// Stats returns the per-status counts and face confidence summary of a session.
func (h *SessionsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.sessions.GetSession(r.Context(), id); errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	} else if err != nil {
		log.Printf("failed to get session %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	stats, err := h.service.SessionStats(r.Context(), id)
	if err != nil {
		log.Printf("failed to compute stats for session %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Export streams a session's attendance as CSV.
func (h *SessionsHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.sessions.GetSession(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		log.Printf("failed to get session %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to export session")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=attendance_%s.csv", session.Date))
	if err := h.service.ExportSessionCSV(r.Context(), id, h.students, w); err != nil {
		// Headers are gone, nothing useful left to send.
		log.Printf("failed to export session %s: %v", sanitizeForLog(id), err)
	}
}

// StudentCourseStats returns one student's summary in a course.
func (h *SessionsHandler) StudentCourseStats(w http.ResponseWriter, r *http.Request) {
	studentID, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid student ID")
		return
	}
	courseID, ok := urlParamInt64(r, "courseID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid course ID")
		return
	}

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	for _, bound := range []string{from, to} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", bound); err != nil {
			respondError(w, http.StatusBadRequest, "from/to must be YYYY-MM-DD")
			return
		}
	}

	stats, err := h.service.StudentCourseStats(r.Context(), studentID, courseID, from, to)
	if err != nil {
		log.Printf("failed to compute stats for student %d in course %d: %v", studentID, courseID, err)
		respondError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// StudentHistory lists a student's recent attendance records. Accounts with
// the student role may only read their own history.
func (h *SessionsHandler) StudentHistory(w http.ResponseWriter, r *http.Request) {
	studentID, ok := urlParamInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil &&
		claims.Role == string(database.RoleStudent) {
		if claims.StudentID == nil || *claims.StudentID != studentID {
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}
	}

	limit, _ := pagination(r)

	records, err := h.records.ListByStudent(r.Context(), studentID, limit)
	if err != nil {
		log.Printf("failed to list records for student %d: %v", studentID, err)
		respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records, "total": len(records)})
}
