//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testEmbedding(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis%dim] = 1
	return v
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	versions, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("MigrationsApplied failed: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("expected at least one recorded migration")
	}
	if versions[0] != "001_init.sql" {
		t.Errorf("expected 001_init.sql first, got %s", versions[0])
	}

	// Running again is a no-op: nothing pending, bookkeeping unchanged.
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	again, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("MigrationsApplied failed: %v", err)
	}
	if len(again) != len(versions) {
		t.Errorf("expected %d migrations after rerun, got %d", len(versions), len(again))
	}
}

func TestStudentRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewStudentRepository(pool)

	t.Run("CreateAndGet", func(t *testing.T) {
		id, err := repo.CreateStudent(ctx, &database.Student{
			RollNumber: "CS-001",
			FullName:   "Jan Novak",
			Department: "CS",
			Semester:   3,
		})
		if err != nil {
			t.Fatalf("Failed to create student: %v", err)
		}

		got, err := repo.GetStudent(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get student: %v", err)
		}
		if got.RollNumber != "CS-001" {
			t.Errorf("Expected roll 'CS-001', got '%s'", got.RollNumber)
		}
		if !got.Active {
			t.Error("Expected new student to be active")
		}
	})

	t.Run("DuplicateRoll", func(t *testing.T) {
		_, err := repo.CreateStudent(ctx, &database.Student{RollNumber: "CS-001", FullName: "Other"})
		if !errors.Is(err, database.ErrDuplicate) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("GetByRoll", func(t *testing.T) {
		got, err := repo.GetStudentByRoll(ctx, "CS-001")
		if err != nil {
			t.Fatalf("Failed to get by roll: %v", err)
		}
		if got.FullName != "Jan Novak" {
			t.Errorf("Expected 'Jan Novak', got '%s'", got.FullName)
		}
	})

	t.Run("SoftDelete", func(t *testing.T) {
		id, err := repo.CreateStudent(ctx, &database.Student{RollNumber: "CS-DEL", FullName: "Gone"})
		if err != nil {
			t.Fatalf("Failed to create student: %v", err)
		}
		if err := repo.DeleteStudent(ctx, id); err != nil {
			t.Fatalf("Failed to delete student: %v", err)
		}
		got, err := repo.GetStudent(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get student: %v", err)
		}
		if got.Active {
			t.Error("Expected deactivated student")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetStudent(ctx, 99999)
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestSessionAndAttendance(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	students := NewStudentRepository(pool)
	courses := NewCourseRepository(pool)
	sessions := NewSessionRepository(pool)
	records := NewAttendanceRepository(pool)

	studentID, err := students.CreateStudent(ctx, &database.Student{RollNumber: "CS-100", FullName: "Petra"})
	if err != nil {
		t.Fatalf("Failed to create student: %v", err)
	}
	courseID, err := courses.CreateCourse(ctx, &database.Course{Code: "CS101", Name: "Intro"})
	if err != nil {
		t.Fatalf("Failed to create course: %v", err)
	}
	if err := courses.Enroll(ctx, studentID, courseID); err != nil {
		t.Fatalf("Failed to enroll: %v", err)
	}

	sessionID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)
	session := &database.Session{
		ID:        sessionID,
		CourseID:  courseID,
		Date:      "2026-03-02",
		StartsAt:  &now,
		Active:    true,
		CreatedBy: "teacher1",
	}
	if err := sessions.CreateSession(ctx, session); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	t.Run("DuplicateSessionDate", func(t *testing.T) {
		err := sessions.CreateSession(ctx, &database.Session{
			ID: uuid.NewString(), CourseID: courseID, Date: "2026-03-02", Active: true,
		})
		if !errors.Is(err, database.ErrDuplicate) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("GetByCourseDate", func(t *testing.T) {
		got, err := sessions.GetSessionByCourseDate(ctx, courseID, "2026-03-02")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got.ID != sessionID {
			t.Errorf("Expected session %s, got %s", sessionID, got.ID)
		}
		if got.Date != "2026-03-02" {
			t.Errorf("Expected date '2026-03-02', got '%s'", got.Date)
		}
	})

	t.Run("CreateRecord", func(t *testing.T) {
		checkIn := time.Now().UTC()
		record := &database.AttendanceRecord{
			ID:               uuid.NewString(),
			SessionID:        sessionID,
			StudentID:        studentID,
			Status:           database.StatusPresent,
			CheckInAt:        &checkIn,
			Method:           database.MethodFace,
			Confidence:       0.91,
			LivenessVerified: true,
			RecordedBy:       "kiosk",
		}
		if err := records.CreateRecord(ctx, record); err != nil {
			t.Fatalf("Failed to create record: %v", err)
		}

		// Unique (session, student).
		dup := *record
		dup.ID = uuid.NewString()
		if err := records.CreateRecord(ctx, &dup); !errors.Is(err, database.ErrDuplicate) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}

		got, err := records.GetRecord(ctx, sessionID, studentID)
		if err != nil {
			t.Fatalf("Failed to get record: %v", err)
		}
		if got.Status != database.StatusPresent {
			t.Errorf("Expected present, got %s", got.Status)
		}
		if got.Confidence < 0.90 || got.Confidence > 0.92 {
			t.Errorf("Expected confidence 0.91, got %v", got.Confidence)
		}
	})

	t.Run("CountByStatus", func(t *testing.T) {
		counts, err := records.CountByStatus(ctx, sessionID)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if counts[database.StatusPresent] != 1 {
			t.Errorf("Expected 1 present, got %d", counts[database.StatusPresent])
		}
	})

	t.Run("CloseSession", func(t *testing.T) {
		if err := sessions.CloseSession(ctx, sessionID, time.Now().UTC()); err != nil {
			t.Fatalf("Failed to close session: %v", err)
		}
		got, err := sessions.GetSession(ctx, sessionID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got.Active {
			t.Error("Expected closed session")
		}
	})
}

func TestFaceSampleRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	students := NewStudentRepository(pool)
	repo := NewFaceSampleRepository(pool)

	id1, err := students.CreateStudent(ctx, &database.Student{RollNumber: "CS-201", FullName: "Alpha"})
	if err != nil {
		t.Fatalf("Failed to create student: %v", err)
	}
	id2, err := students.CreateStudent(ctx, &database.Student{RollNumber: "CS-202", FullName: "Beta"})
	if err != nil {
		t.Fatalf("Failed to create student: %v", err)
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		sample := &database.FaceSample{
			StudentID: id1,
			Embedding: testEmbedding(512, 0),
			Dim:       512,
			Model:     "insightface",
			DetScore:  0.95,
		}
		if _, err := repo.SaveSample(ctx, sample); err != nil {
			t.Fatalf("Failed to save sample: %v", err)
		}

		got, err := repo.GetSamplesByStudent(ctx, id1)
		if err != nil {
			t.Fatalf("Failed to get samples: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("Expected 1 sample, got %d", len(got))
		}
		if got[0].StudentRoll != "CS-201" {
			t.Errorf("Expected cached roll 'CS-201', got '%s'", got[0].StudentRoll)
		}
		if len(got[0].Embedding) != 512 {
			t.Errorf("Expected 512 dims, got %d", len(got[0].Embedding))
		}
	})

	t.Run("FindSimilarPostgres", func(t *testing.T) {
		sample := &database.FaceSample{
			StudentID: id2,
			Embedding: testEmbedding(512, 1),
			Dim:       512,
			Model:     "insightface",
			DetScore:  0.9,
		}
		if _, err := repo.SaveSample(ctx, sample); err != nil {
			t.Fatalf("Failed to save sample: %v", err)
		}

		samples, distances, err := repo.FindSimilarWithDistance(ctx, testEmbedding(512, 0), 5, 0.5)
		if err != nil {
			t.Fatalf("Failed to find similar: %v", err)
		}
		if len(samples) != 1 {
			t.Fatalf("Expected 1 hit within distance, got %d", len(samples))
		}
		if samples[0].StudentID != id1 {
			t.Errorf("Expected student %d, got %d", id1, samples[0].StudentID)
		}
		if distances[0] > 0.01 {
			t.Errorf("Expected near-zero distance, got %v", distances[0])
		}
	})

	t.Run("FindSimilarHNSW", func(t *testing.T) {
		if err := repo.EnableHNSW(ctx, ""); err != nil {
			t.Fatalf("Failed to enable HNSW: %v", err)
		}
		if !repo.HNSWEnabled() {
			t.Fatal("Expected HNSW enabled")
		}
		if repo.IndexCount() != 2 {
			t.Errorf("Expected 2 indexed samples, got %d", repo.IndexCount())
		}

		samples, _, err := repo.FindSimilarWithDistance(ctx, testEmbedding(512, 1), 5, 0.5)
		if err != nil {
			t.Fatalf("Failed to find similar via HNSW: %v", err)
		}
		if len(samples) != 1 || samples[0].StudentID != id2 {
			t.Errorf("Expected only student %d, got %+v", id2, samples)
		}
	})

	t.Run("DeleteByStudent", func(t *testing.T) {
		ids, err := repo.DeleteSamplesByStudent(ctx, id1)
		if err != nil {
			t.Fatalf("Failed to delete samples: %v", err)
		}
		if len(ids) != 1 {
			t.Errorf("Expected 1 deleted ID, got %d", len(ids))
		}

		count, err := repo.CountSamplesByStudent(ctx, id1)
		if err != nil {
			t.Fatalf("Failed to count samples: %v", err)
		}
		if count != 0 {
			t.Errorf("Expected 0 samples, got %d", count)
		}

		// Deleted sample must no longer surface from the in-memory index.
		samples, _, err := repo.FindSimilarWithDistance(ctx, testEmbedding(512, 0), 5, 0.5)
		if err != nil {
			t.Fatalf("Failed to find similar: %v", err)
		}
		if len(samples) != 0 {
			t.Errorf("Expected no hits for deleted student, got %d", len(samples))
		}
	})
}
