package database

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	SampleCount int64     `json:"sample_count"`
	MaxSampleID int64     `json:"max_sample_id"`
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"` // For future compatibility
}

const hnswMetadataVersion = 1

// HNSWIndex wraps the HNSW graph for roster embedding search. It maps graph
// node IDs back to face samples so a probe lookup resolves to a student
// without touching the database.
type HNSWIndex struct {
	graph      *hnsw.Graph[int64]
	idToSample map[int64]*FaceSample
	mu         sync.RWMutex
	path       string // Path to save/load index
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToSample: make(map[int64]*FaceSample),
	}
}

// BuildFromSamples builds the index from a slice of face samples.
func (h *HNSWIndex) BuildFromSamples(samples []FaceSample) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(samples) == 0 {
		h.graph = nil
		h.idToSample = make(map[int64]*FaceSample)
		return nil
	}

	// Create new graph with cosine distance.
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	h.idToSample = make(map[int64]*FaceSample, len(samples))

	for i := range samples {
		sample := &samples[i]
		if len(sample.Embedding) == 0 {
			continue
		}

		g.Add(hnsw.MakeNode(sample.ID, sample.Embedding))
		h.idToSample[sample.ID] = sample
	}

	h.graph = g
	return nil
}

// Search finds the k nearest neighbors to the query embedding.
// Returns sample IDs and their cosine distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)

	ids := make([]int64, len(neighbors))
	distances := make([]float64, len(neighbors))

	for i, n := range neighbors {
		ids[i] = n.Key
		// Compute the exact cosine distance from the node's embedding rather
		// than trusting the graph's internal ordering metric.
		if len(n.Value) > 0 {
			distances[i] = CosineDistance(query, n.Value)
		}
	}

	return ids, distances, nil
}

// GetSample returns the sample for a given ID, nil if unknown.
func (h *HNSWIndex) GetSample(id int64) *FaceSample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idToSample[id]
}

// Add adds a single sample to the index.
func (h *HNSWIndex) Add(sample *FaceSample) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(sample.Embedding) == 0 {
		return nil
	}

	if h.graph == nil {
		h.graph = hnsw.NewGraph[int64]()
		h.graph.M = HNSWMaxNeighbors
		h.graph.Ml = 1.0 / float64(HNSWMaxNeighbors)
		h.graph.Distance = hnsw.CosineDistance
	}

	h.graph.Add(hnsw.MakeNode(sample.ID, sample.Embedding))
	h.idToSample[sample.ID] = sample

	return nil
}

// Remove deletes samples from the index by ID (marks as deleted).
// The graph keeps the nodes, but removing them from idToSample drops them
// from search results since hits are resolved by lookup.
func (h *HNSWIndex) Remove(ids []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range ids {
		delete(h.idToSample, id)
	}
}

// Count returns the number of samples in the index.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToSample)
}

// SetPath configures the file path used by Save and Load.
func (h *HNSWIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// savedIndex is the gob-serialized form of the index.
type savedIndex struct {
	Metadata HNSWIndexMetadata
	Samples  []FaceSample
}

// Save persists the samples backing the index to the configured path.
// The graph itself is rebuilt on load; only the samples and metadata are
// written, which keeps the format independent of the hnsw library version.
func (h *HNSWIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil
	}

	var maxID int64
	samples := make([]FaceSample, 0, len(h.idToSample))
	for id, s := range h.idToSample {
		samples = append(samples, *s)
		if id > maxID {
			maxID = id
		}
	}

	saved := savedIndex{
		Metadata: HNSWIndexMetadata{
			SampleCount: int64(len(samples)),
			MaxSampleID: maxID,
			BuildTime:   time.Now(),
			Version:     hnswMetadataVersion,
		},
		Samples: samples,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(saved); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	if err := os.WriteFile(h.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write index file: %w", err)
	}
	return nil
}

// Load reads a previously saved index from the configured path and rebuilds
// the graph. Returns false when no usable file exists.
func (h *HNSWIndex) Load() (bool, error) {
	h.mu.RLock()
	path := h.path
	h.mu.RUnlock()

	if path == "" {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read index file: %w", err)
	}

	var saved savedIndex
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&saved); err != nil {
		return false, fmt.Errorf("decode index: %w", err)
	}
	if saved.Metadata.Version != hnswMetadataVersion {
		return false, nil
	}

	if err := h.BuildFromSamples(saved.Samples); err != nil {
		return false, err
	}
	return true, nil
}
