package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
	"time"
)

const (
	defaultServiceURL = "http://localhost:8000"
	defaultModel      = "insightface" // model name for reference only
	defaultDim        = 512
)

// Client calls the face-embedding server over HTTP.
type Client struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// NewClient creates a client for the embedding server.
func NewClient(baseURL, model string, dim int) *Client {
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	if model == "" {
		model = defaultModel
	}
	if dim <= 0 {
		dim = defaultDim
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		dim:     dim,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Dim returns the embedding dimension the server produces.
func (c *Client) Dim() int {
	return c.dim
}

// detectResponse is the embedding server's answer to /detect.
type detectResponse struct {
	Faces []DetectedFace `json:"faces"`
	Model string         `json:"model"`
	Dim   int            `json:"dim"`
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint. The part carries an explicit Content-Type
// header based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectFaces posts a frame to the embedding server and returns every face it
// found, best detection score first.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]DetectedFace, error) {
	if len(imageData) == 0 {
		return nil, errors.New("empty image data")
	}

	body, err := c.postMultipartImage(ctx, "/detect", imageData)
	if err != nil {
		return nil, err
	}

	var detResp detectResponse
	if err := json.Unmarshal(body, &detResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := detResp.Faces
	for i := range faces {
		if len(faces[i].Embedding) > 0 && len(faces[i].Embedding) != c.dim {
			return nil, fmt.Errorf("embedding dim mismatch: got %d, expected %d", len(faces[i].Embedding), c.dim)
		}
	}

	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].DetScore > faces[j].DetScore
	})

	return faces, nil
}

// Ping checks whether the embedding server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}
