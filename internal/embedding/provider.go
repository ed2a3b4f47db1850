// Package embedding talks to the external face-embedding service. The app
// never runs a face model itself; detection and encoding are delegated to an
// InsightFace-style HTTP server and only the resulting vectors come back.
package embedding

import "context"

// DetectedFace is one face found in a frame by the embedding service.
type DetectedFace struct {
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	DetScore  float64   `json:"det_score"`
	Embedding []float32 `json:"embedding"`
}

// Provider detects faces and returns their embeddings.
type Provider interface {
	// DetectFaces returns every face found in the image, best detection first
	DetectFaces(ctx context.Context, imageData []byte) ([]DetectedFace, error)
	// Dim returns the embedding dimension the provider produces
	Dim() int
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
