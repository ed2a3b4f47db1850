package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/facemark/facemark/internal/database"
)

// FaceSampleRepository provides PostgreSQL-backed face sample storage with an
// optional in-memory HNSW index for roster similarity search.
type FaceSampleRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMu        sync.RWMutex
}

// NewFaceSampleRepository creates a new PostgreSQL face sample repository.
func NewFaceSampleRepository(pool *Pool) *FaceSampleRepository {
	return &FaceSampleRepository{pool: pool}
}

const sampleColumns = `fs.id, fs.student_id, fs.embedding, fs.dim, fs.model, fs.det_score, fs.created_at,
	       s.roll_number, s.full_name`

func scanSample(row interface{ Scan(...any) error }) (*database.FaceSample, error) {
	var sample database.FaceSample
	var vec pgvector.Vector

	err := row.Scan(
		&sample.ID,
		&sample.StudentID,
		&vec,
		&sample.Dim,
		&sample.Model,
		&sample.DetScore,
		&sample.CreatedAt,
		&sample.StudentRoll,
		&sample.StudentName,
	)
	if err != nil {
		return nil, err
	}
	sample.Embedding = vec.Slice()
	return &sample, nil
}

func collectSamples(rows *sql.Rows) ([]database.FaceSample, error) {
	var samples []database.FaceSample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan face sample: %w", err)
		}
		samples = append(samples, *sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face samples: %w", err)
	}
	return samples, nil
}

// GetSamplesByStudent retrieves all samples for a student.
func (r *FaceSampleRepository) GetSamplesByStudent(ctx context.Context, studentID int64) ([]database.FaceSample, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM face_samples fs
		JOIN students s ON s.id = fs.student_id
		WHERE fs.student_id = $1
		ORDER BY fs.id
	`, sampleColumns)

	rows, err := r.pool.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("query face samples: %w", err)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// CountSamplesByStudent returns the number of samples a student has.
func (r *FaceSampleRepository) CountSamplesByStudent(ctx context.Context, studentID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_samples WHERE student_id = $1", studentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count face samples: %w", err)
	}
	return count, nil
}

// AllSamples returns every sample of an active student; used to build the
// HNSW index on startup.
func (r *FaceSampleRepository) AllSamples(ctx context.Context) ([]database.FaceSample, error) {
	return r.allSamplesLocked(ctx)
}

// FindSimilarWithDistance finds samples near the probe embedding and returns
// cosine distances, nearest first, filtered to maxDistance.
// Uses the in-memory HNSW index if enabled, otherwise falls back to PostgreSQL.
func (r *FaceSampleRepository) FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.FaceSample, []float64, error) {
	r.hnswMu.RLock()
	hnswEnabled := r.hnswEnabled && r.hnswIndex != nil
	r.hnswMu.RUnlock()

	if hnswEnabled {
		return r.findSimilarHNSW(embedding, limit, maxDistance)
	}

	return r.findSimilarPostgres(ctx, embedding, limit, maxDistance)
}

// findSimilarHNSW uses the in-memory HNSW index for similarity search.
func (r *FaceSampleRepository) findSimilarHNSW(embedding []float32, limit int, maxDistance float64) ([]database.FaceSample, []float64, error) {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	// Request more candidates to ensure we have enough after distance filtering.
	searchK := limit * database.HNSWSearchMultiplier
	searchK = max(searchK, 100)

	ids, distances, err := r.hnswIndex.Search(embedding, searchK)
	if err != nil {
		return nil, nil, fmt.Errorf("HNSW search: %w", err)
	}

	samples := make([]database.FaceSample, 0, limit)
	distancesOut := make([]float64, 0, limit)

	for i, id := range ids {
		if distances[i] > maxDistance {
			continue
		}
		sample := r.hnswIndex.GetSample(id)
		if sample == nil {
			continue
		}
		samples = append(samples, *sample)
		distancesOut = append(distancesOut, distances[i])
		if len(samples) >= limit {
			break
		}
	}

	return samples, distancesOut, nil
}

// findSimilarPostgres uses pgvector for similarity search with ef_search tuning.
func (r *FaceSampleRepository) findSimilarPostgres(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.FaceSample, []float64, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT fs.id, fs.student_id, fs.embedding, fs.dim, fs.model, fs.det_score, fs.created_at,
		       s.roll_number, s.full_name,
		       fs.embedding <=> $1::vector AS distance
		FROM face_samples fs
		JOIN students s ON s.id = fs.student_id
		WHERE s.active AND fs.embedding <=> $1::vector < $2
		ORDER BY distance
		LIMIT $3
	`

	vec := pgvector.NewVector(embedding)
	rows, err := tx.QueryContext(ctx, query, vec, maxDistance, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar samples: %w", err)
	}
	defer rows.Close()

	var samples []database.FaceSample
	var distances []float64

	for rows.Next() {
		var sample database.FaceSample
		var v pgvector.Vector
		var dist float64

		if err := rows.Scan(
			&sample.ID,
			&sample.StudentID,
			&v,
			&sample.Dim,
			&sample.Model,
			&sample.DetScore,
			&sample.CreatedAt,
			&sample.StudentRoll,
			&sample.StudentName,
			&dist,
		); err != nil {
			return nil, nil, fmt.Errorf("scan similar sample: %w", err)
		}

		sample.Embedding = v.Slice()
		samples = append(samples, sample)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate similar samples: %w", err)
	}

	return samples, distances, nil
}

// SaveSample appends a sample for a student and returns its ID.
// The in-memory index is updated when enabled.
func (r *FaceSampleRepository) SaveSample(ctx context.Context, sample *database.FaceSample) (int64, error) {
	query := `
		INSERT INTO face_samples (student_id, embedding, dim, model, det_score)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	vec := pgvector.NewVector(sample.Embedding)
	err := r.pool.QueryRow(ctx, query,
		sample.StudentID, vec, sample.Dim, sample.Model, sample.DetScore,
	).Scan(&sample.ID, &sample.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert face sample: %w", err)
	}

	r.hnswMu.Lock()
	if r.hnswEnabled && r.hnswIndex != nil {
		cp := *sample
		if err := r.hnswIndex.Add(&cp); err != nil {
			fmt.Printf("Face index: failed to add sample %d: %v\n", sample.ID, err)
		}
	}
	r.hnswMu.Unlock()

	return sample.ID, nil
}

// DeleteSamplesByStudent removes all samples for a student and returns the
// deleted sample IDs. The in-memory index drops them as well.
func (r *FaceSampleRepository) DeleteSamplesByStudent(ctx context.Context, studentID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, "DELETE FROM face_samples WHERE student_id = $1 RETURNING id", studentID)
	if err != nil {
		return nil, fmt.Errorf("delete face samples: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted sample ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted samples: %w", err)
	}

	r.hnswMu.Lock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Remove(ids)
	}
	r.hnswMu.Unlock()

	return ids, nil
}

// CountSamplesByStudents returns the number of samples whose student is in
// the given list.
func (r *FaceSampleRepository) CountSamplesByStudents(ctx context.Context, studentIDs []int64) (int, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM face_samples WHERE student_id = ANY($1)",
		pq.Array(studentIDs),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count samples by students: %w", err)
	}
	return count, nil
}

// EnableHNSW loads or builds the in-memory HNSW index for O(log N) roster
// search. A cached index is used when its sample count matches the database;
// otherwise the index is rebuilt and persisted.
func (r *FaceSampleRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	var dbCount int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_samples").Scan(&dbCount); err != nil {
		return fmt.Errorf("count samples: %w", err)
	}

	r.hnswIndex = database.NewHNSWIndex()
	r.hnswIndex.SetPath(indexPath)
	r.hnswIndexPath = indexPath

	if indexPath != "" {
		loaded, err := r.hnswIndex.Load()
		if err != nil {
			fmt.Printf("Face index: failed to load cached index: %v (will rebuild)\n", err)
		}
		if loaded && r.hnswIndex.Count() == dbCount {
			r.hnswEnabled = true
			fmt.Printf("Face index: loaded from disk (%d samples)\n", dbCount)
			return nil
		}
		if loaded {
			fmt.Printf("Face index: stale (db: %d, cached: %d) (will rebuild)\n", dbCount, r.hnswIndex.Count())
		}
	}

	samples, err := r.allSamplesLocked(ctx)
	if err != nil {
		return fmt.Errorf("load samples for index: %w", err)
	}
	if err := r.hnswIndex.BuildFromSamples(samples); err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	r.hnswEnabled = true

	if indexPath != "" {
		if err := r.hnswIndex.Save(); err != nil {
			fmt.Printf("Face index: failed to persist index: %v\n", err)
		}
	}
	fmt.Printf("Face index: built from database (%d samples)\n", len(samples))
	return nil
}

// allSamplesLocked is AllSamples without touching hnswMu; callers hold it.
func (r *FaceSampleRepository) allSamplesLocked(ctx context.Context) ([]database.FaceSample, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM face_samples fs
		JOIN students s ON s.id = fs.student_id
		WHERE s.active
		ORDER BY fs.id
	`, sampleColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all face samples: %w", err)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// SaveIndex persists the in-memory index if one is enabled.
func (r *FaceSampleRepository) SaveIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if !r.hnswEnabled || r.hnswIndex == nil {
		return nil
	}
	return r.hnswIndex.Save()
}

// HNSWEnabled reports whether the in-memory index is active.
func (r *FaceSampleRepository) HNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled
}

// IndexCount returns the number of samples in the in-memory index, 0 when
// disabled.
func (r *FaceSampleRepository) IndexCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}
