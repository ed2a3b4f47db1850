package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/facemark/facemark/internal/embedding"
	"github.com/facemark/facemark/internal/voice"
)

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest creates a request with an image file part and optional
// extra form fields
func multipartRequest(t *testing.T, method, path string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "frame.jpg")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(image); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// fakeProvider returns canned detections without calling the embedding service
type fakeProvider struct {
	faces []embedding.DetectedFace
	err   error
	dim   int
}

func (f *fakeProvider) DetectFaces(ctx context.Context, image []byte) ([]embedding.DetectedFace, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.faces, nil
}

func (f *fakeProvider) Dim() int {
	if f.dim > 0 {
		return f.dim
	}
	return 3
}

// goodFace builds a detection that passes the quality gates
func goodFace(embeddingVec []float32) embedding.DetectedFace {
	return embedding.DetectedFace{
		BBox:      []float64{0, 0, 120, 120},
		DetScore:  0.95,
		Embedding: embeddingVec,
	}
}

// recordingNotifier captures announced message keys
type recordingNotifier struct {
	mu   sync.Mutex
	keys []voice.MessageKey
}

func (n *recordingNotifier) Announce(ctx context.Context, key voice.MessageKey) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keys = append(n.keys, key)
	return nil
}

func (n *recordingNotifier) Say(ctx context.Context, text string) error { return nil }

func (n *recordingNotifier) announced() []voice.MessageKey {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]voice.MessageKey(nil), n.keys...)
}
