package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/facemark/facemark/internal/database"
)

// MockFaceSampleStore is an in-memory implementation of database.FaceSampleWriter
type MockFaceSampleStore struct {
	mu      sync.RWMutex
	samples map[int64]*database.FaceSample
	nextID  int64

	// Error injection
	GetError    error
	SaveError   error
	DeleteError error
	FindError   error
}

// NewMockFaceSampleStore creates a new mock face sample store
func NewMockFaceSampleStore() *MockFaceSampleStore {
	return &MockFaceSampleStore{samples: make(map[int64]*database.FaceSample), nextID: 1}
}

// AddSample adds a sample to the mock store
func (m *MockFaceSampleStore) AddSample(s database.FaceSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.nextID
	}
	if s.ID >= m.nextID {
		m.nextID = s.ID + 1
	}
	m.samples[s.ID] = &s
}

// GetSamplesByStudent retrieves all samples for a student
func (m *MockFaceSampleStore) GetSamplesByStudent(ctx context.Context, studentID int64) ([]database.FaceSample, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.FaceSample
	for _, s := range m.samples {
		if s.StudentID == studentID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountSamplesByStudent returns the number of samples a student has
func (m *MockFaceSampleStore) CountSamplesByStudent(ctx context.Context, studentID int64) (int, error) {
	if m.GetError != nil {
		return 0, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.samples {
		if s.StudentID == studentID {
			count++
		}
	}
	return count, nil
}

// AllSamples returns every registered sample
func (m *MockFaceSampleStore) AllSamples(ctx context.Context) ([]database.FaceSample, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.FaceSample, 0, len(m.samples))
	for _, s := range m.samples {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindSimilarWithDistance finds samples near the probe embedding using exact
// cosine distance over the whole store
func (m *MockFaceSampleStore) FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.FaceSample, []float64, error) {
	if m.FindError != nil {
		return nil, nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		sample   database.FaceSample
		distance float64
	}
	var matches []scored
	for _, s := range m.samples {
		d := database.CosineDistance(embedding, s.Embedding)
		if d <= maxDistance {
			matches = append(matches, scored{*s, d})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].distance < matches[j].distance })
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}

	samples := make([]database.FaceSample, len(matches))
	distances := make([]float64, len(matches))
	for i, match := range matches {
		samples[i] = match.sample
		distances[i] = match.distance
	}
	return samples, distances, nil
}

// SaveSample appends a sample for a student
func (m *MockFaceSampleStore) SaveSample(ctx context.Context, sample *database.FaceSample) (int64, error) {
	if m.SaveError != nil {
		return 0, m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sample.ID = m.nextID
	m.nextID++
	cp := *sample
	m.samples[sample.ID] = &cp
	return sample.ID, nil
}

// DeleteSamplesByStudent removes all samples for a student
func (m *MockFaceSampleStore) DeleteSamplesByStudent(ctx context.Context, studentID int64) ([]int64, error) {
	if m.DeleteError != nil {
		return nil, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted []int64
	for id, s := range m.samples {
		if s.StudentID == studentID {
			deleted = append(deleted, id)
			delete(m.samples, id)
		}
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i] < deleted[j] })
	return deleted, nil
}
