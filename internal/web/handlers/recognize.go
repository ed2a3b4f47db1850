package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/facemark/facemark/internal/attendance"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/recognition"
	"github.com/facemark/facemark/internal/voice"
)

// RecognizeHandler runs camera frames through the identification pipeline and
// optionally marks attendance for the match.
type RecognizeHandler struct {
	recognizer *recognition.Service
	attendance *attendance.Service
	students   database.StudentReader
	notifier   voice.Notifier
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(recognizer *recognition.Service, att *attendance.Service, students database.StudentReader, notifier voice.Notifier) *RecognizeHandler {
	return &RecognizeHandler{
		recognizer: recognizer,
		attendance: att,
		students:   students,
		notifier:   notifier,
	}
}

type recognizeResponse struct {
	Outcome    string  `json:"outcome"`
	StudentID  int64   `json:"student_id,omitempty"`
	RollNumber string  `json:"roll_number,omitempty"`
	FullName   string  `json:"full_name,omitempty"`
	Confidence float64 `json:"confidence"`
	Liveness   float64 `json:"liveness,omitempty"`
	Reason     string  `json:"reason,omitempty"`

	// Attendance marking fields, set by RecognizeAttendance.
	Status    string `json:"status,omitempty"`
	Marked    bool   `json:"marked,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func toRecognizeResponse(decision *recognition.Decision, probe *recognition.Probe) recognizeResponse {
	resp := recognizeResponse{
		Outcome:    string(decision.Outcome),
		Confidence: decision.Confidence,
		Reason:     decision.Reason,
	}
	if decision.Matched() {
		resp.StudentID = decision.StudentID
		resp.RollNumber = decision.RollNumber
	}
	if probe != nil {
		resp.Liveness = probe.Liveness
	}
	return resp
}

// Recognize identifies the face in a frame without touching attendance.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	frame, err := readUploadedImage(r)
	if err != nil || len(frame) == 0 {
		respondError(w, http.StatusBadRequest, "image upload is required")
		return
	}

	decision, probe, err := h.recognizer.Identify(r.Context(), frame)
	if err != nil {
		log.Printf("recognition failed: %v", err)
		respondError(w, http.StatusBadGateway, "recognition failed")
		return
	}

	resp := toRecognizeResponse(decision, probe)
	if decision.Matched() {
		if student, err := h.students.GetStudent(r.Context(), decision.StudentID); err == nil {
			resp.FullName = student.FullName
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// RecognizeAttendance identifies the face in a frame and marks attendance in
// the given session. The kiosk posts here on every captured frame, so repeat
// sightings within the duplicate window are acknowledged quietly.
func (h *RecognizeHandler) RecognizeAttendance(w http.ResponseWriter, r *http.Request) {
	frame, err := readUploadedImage(r)
	if err != nil || len(frame) == 0 {
		respondError(w, http.StatusBadRequest, "image upload is required")
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session_id")
	}
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	decision, probe, err := h.recognizer.Identify(r.Context(), frame)
	if err != nil {
		log.Printf("recognition failed: %v", err)
		respondError(w, http.StatusBadGateway, "recognition failed")
		return
	}

	resp := toRecognizeResponse(decision, probe)
	if !decision.Matched() {
		h.announceOutcome(decision.Outcome)
		respondJSON(w, http.StatusOK, resp)
		return
	}

	if student, err := h.students.GetStudent(r.Context(), decision.StudentID); err == nil {
		resp.FullName = student.FullName
	}

	recent, err := h.attendance.IsRecentDuplicate(r.Context(), sessionID, decision.StudentID)
	if err != nil {
		log.Printf("duplicate check failed for student %d: %v", decision.StudentID, err)
	}
	if recent {
		resp.Duplicate = true
		respondJSON(w, http.StatusOK, resp)
		return
	}

	liveness := probe != nil && probe.Liveness > 0
	result, err := h.attendance.Mark(r.Context(), sessionID, decision.StudentID, database.MethodFace, decision.Confidence, liveness, actor(r))
	if err != nil {
		log.Printf("failed to mark attendance for student %d: %v", decision.StudentID, err)
		respondError(w, http.StatusConflict, "failed to mark attendance")
		return
	}

	resp.Status = string(result.Record.Status)
	resp.Marked = result.Created
	h.announceMark(result)
	respondJSON(w, http.StatusOK, resp)
}

func (h *RecognizeHandler) announceOutcome(outcome recognition.Outcome) {
	var key voice.MessageKey
	switch outcome {
	case recognition.OutcomeUnknownFace, recognition.OutcomeAmbiguous:
		key = voice.MsgFaceNotRecognized
	case recognition.OutcomeMultipleFaces:
		key = voice.MsgMultipleFaces
	case recognition.OutcomeLivenessFailed:
		key = voice.MsgLivenessFailed
	default:
		return // silence on no-face and low-quality frames
	}
	h.announce(key)
}

func (h *RecognizeHandler) announceMark(result *attendance.MarkResult) {
	key := voice.MsgAlreadyRecorded
	if result.Created {
		key = voice.MsgPresent
		if result.Record.Status == database.StatusLate {
			key = voice.MsgLate
		}
	}
	h.announce(key)
}

func (h *RecognizeHandler) announce(key voice.MessageKey) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := h.notifier.Announce(ctx, key); err != nil {
		log.Printf("voice announcement failed: %v", err)
	}
}
