package handlers

import (
	"encoding/base64"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/facemark/facemark/internal/constants"
	"github.com/facemark/facemark/internal/database"
)

// StreamHandler runs a kiosk's live camera feed over a websocket. The client
// picks a session once and then pushes frames; every frame gets a decision
// back on the same connection.
type StreamHandler struct {
	rec      *RecognizeHandler
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a websocket handler over the recognize pipeline.
func NewStreamHandler(rec *RecognizeHandler) *StreamHandler {
	return &StreamHandler{
		rec: rec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Kiosks connect from file:// and LAN origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type streamMessage struct {
	Type      string `json:"type"` // set_session | recognize
	SessionID string `json:"session_id,omitempty"`
	Frame     string `json:"frame,omitempty"` // base64-encoded JPEG/PNG
}

type streamResponse struct {
	Type  string `json:"type"` // session_set | decision | error
	Error string `json:"error,omitempty"`
	recognizeResponse
}

// Serve upgrades the connection and processes messages until the client
// disconnects.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(constants.StreamMaxFrameBytes)
	recordedBy := actor(r)
	sessionID := r.URL.Query().Get("session_id")

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read failed: %v", err)
			}
			return
		}

		switch msg.Type {
		case "set_session":
			if msg.SessionID == "" {
				h.writeError(conn, "session_id is required")
				continue
			}
			sessionID = msg.SessionID
			h.write(conn, streamResponse{Type: "session_set"})

		case "recognize":
			resp := h.handleFrame(r, sessionID, recordedBy, msg.Frame)
			h.write(conn, resp)

		default:
			h.writeError(conn, "unknown message type")
		}
	}
}

func (h *StreamHandler) handleFrame(r *http.Request, sessionID, recordedBy, encoded string) streamResponse {
	if sessionID == "" {
		return streamResponse{Type: "error", Error: "no session set"}
	}
	if encoded == "" {
		return streamResponse{Type: "error", Error: "frame is required"}
	}

	frame, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return streamResponse{Type: "error", Error: "frame must be base64"}
	}

	ctx := r.Context()
	decision, probe, err := h.rec.recognizer.Identify(ctx, frame)
	if err != nil {
		log.Printf("recognition failed on stream: %v", err)
		return streamResponse{Type: "error", Error: "recognition failed"}
	}

	resp := streamResponse{Type: "decision", recognizeResponse: toRecognizeResponse(decision, probe)}
	if !decision.Matched() {
		h.rec.announceOutcome(decision.Outcome)
		return resp
	}

	if student, err := h.rec.students.GetStudent(ctx, decision.StudentID); err == nil {
		resp.FullName = student.FullName
	}

	recent, err := h.rec.attendance.IsRecentDuplicate(ctx, sessionID, decision.StudentID)
	if err != nil {
		log.Printf("duplicate check failed for student %d: %v", decision.StudentID, err)
	}
	if recent {
		resp.Duplicate = true
		return resp
	}

	result, err := h.rec.attendance.Mark(ctx, sessionID, decision.StudentID, database.MethodFace, decision.Confidence, probe != nil && probe.Liveness > 0, recordedBy)
	if err != nil {
		log.Printf("failed to mark attendance for student %d: %v", decision.StudentID, err)
		return streamResponse{Type: "error", Error: "failed to mark attendance"}
	}

	resp.Status = string(result.Record.Status)
	resp.Marked = result.Created
	h.rec.announceMark(result)
	return resp
}

func (h *StreamHandler) write(conn *websocket.Conn, resp streamResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		log.Printf("websocket write failed: %v", err)
	}
}

func (h *StreamHandler) writeError(conn *websocket.Conn, message string) {
	h.write(conn, streamResponse{Type: "error", Error: message})
}
