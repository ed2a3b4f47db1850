package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func detectServer(t *testing.T, faces []DetectedFace) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file part", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(detectResponse{Faces: faces, Model: "test", Dim: 4})
	}))
}

func TestDetectFaces(t *testing.T) {
	faces := []DetectedFace{
		{BBox: []float64{10, 10, 50, 50}, DetScore: 0.4, Embedding: []float32{0, 1, 0, 0}},
		{BBox: []float64{100, 100, 200, 200}, DetScore: 0.95, Embedding: []float32{1, 0, 0, 0}},
	}
	srv := detectServer(t, faces)
	defer srv.Close()

	client := NewClient(srv.URL, "test", 4)

	got, err := client.DetectFaces(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3, 4})
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(got))
	}
	if got[0].DetScore != 0.95 {
		t.Errorf("expected best detection first, got score %v", got[0].DetScore)
	}
}

func TestDetectFaces_DimMismatch(t *testing.T) {
	srv := detectServer(t, []DetectedFace{
		{DetScore: 0.9, Embedding: []float32{1, 0}},
	})
	defer srv.Close()

	client := NewClient(srv.URL, "test", 4)

	if _, err := client.DetectFaces(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3, 4}); err == nil {
		t.Error("expected dim mismatch error")
	}
}

func TestDetectFaces_EmptyImage(t *testing.T) {
	client := NewClient("http://localhost:1", "test", 4)

	if _, err := client.DetectFaces(context.Background(), nil); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestDetectFaces_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test", 4)

	if _, err := client.DetectFaces(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3, 4}); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"webp", []byte{0x52, 0x49, 0x46, 0x46, 0, 0, 0, 0, 0x57, 0x45, 0x42, 0x50}, "image/webp"},
		{"unknown", []byte{0, 1, 2, 3, 4, 5, 6, 7}, "application/octet-stream"},
		{"short", []byte{0xFF}, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.expected {
				t.Errorf("detectMIMEType() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test", 4)
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
