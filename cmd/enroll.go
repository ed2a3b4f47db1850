package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/constants"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/postgres"
	"github.com/facemark/facemark/internal/embedding"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <roll-number> <image>...",
	Short: "Register face samples for a student from image files",
	Long: `Register one face sample per image for the given student. Each image
must contain exactly one face that clears the detection quality gate. Extra
images add extra angles; they never replace earlier samples.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	rollNumber := args[0]
	imagePaths := args[1:]

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()
	students := postgres.NewStudentRepository(pool)
	samples := postgres.NewFaceSampleRepository(pool)

	student, err := students.GetStudentByRoll(ctx, rollNumber)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("no student with roll number %q", rollNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to look up student: %w", err)
	}

	provider := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.Dim)
	if err := provider.Ping(ctx); err != nil {
		return fmt.Errorf("embedding service not reachable: %w", err)
	}

	saved := 0
	for _, path := range imagePaths {
		imageData, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		faces, err := provider.DetectFaces(ctx, imageData)
		if err != nil {
			return fmt.Errorf("face detection failed for %s: %w", path, err)
		}
		if len(faces) == 0 {
			fmt.Printf("Skipping %s: no face detected\n", path)
			continue
		}
		if len(faces) > 1 {
			fmt.Printf("Skipping %s: %d faces detected, need exactly one\n", path, len(faces))
			continue
		}
		face := faces[0]
		if face.DetScore < constants.DefaultDetectionConfidence {
			fmt.Printf("Skipping %s: detection score %.2f below %.2f\n", path, face.DetScore, constants.DefaultDetectionConfidence)
			continue
		}

		sample := &database.FaceSample{
			StudentID: student.ID,
			Embedding: face.Embedding,
			Dim:       len(face.Embedding),
			Model:     "insightface",
			DetScore:  face.DetScore,
		}
		if _, err := samples.SaveSample(ctx, sample); err != nil {
			return fmt.Errorf("failed to save sample from %s: %w", path, err)
		}
		fmt.Printf("Registered %s (score %.2f)\n", path, face.DetScore)
		saved++
	}

	if saved == 0 {
		return errors.New("no usable face samples in the given images")
	}

	if !student.FaceRegistered {
		if err := students.SetFaceRegistered(ctx, student.ID, true); err != nil {
			return fmt.Errorf("failed to flag face registration: %w", err)
		}
	}

	total, err := samples.CountSamplesByStudent(ctx, student.ID)
	if err != nil {
		total = saved
	}
	fmt.Printf("%s now has %d face sample(s)\n", student.FullName, total)
	return nil
}
