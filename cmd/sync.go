package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/postgres"
	"github.com/facemark/facemark/internal/database/sis"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the roster from the school information system",
	Long: `Pull students, courses and enrollments from the SIS MariaDB and upsert
them into the attendance database. The SIS stays the source of truth for the
roster; face samples and attendance records are never touched.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Bool("dry-run", false, "Report what would change without writing")
}

func newSyncBar(count int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
}

// syncStudents upserts SIS students by roll number. Returns created and
// updated counts.
func syncStudents(ctx context.Context, repo *postgres.StudentRepository, roster []sis.RosterStudent, dryRun bool) (int, int, error) {
	bar := newSyncBar(len(roster), "Syncing students")
	created, updated := 0, 0

	for _, rs := range roster {
		existing, err := repo.GetStudentByRoll(ctx, rs.RollNumber)
		if errors.Is(err, database.ErrNotFound) {
			created++
			if dryRun {
				bar.Add(1)
				continue
			}
			student := &database.Student{
				RollNumber: rs.RollNumber,
				FullName:   rs.FullName,
				Email:      rs.Email,
				Department: rs.Department,
				Semester:   rs.Semester,
				Active:     rs.Active,
			}
			if _, err := repo.CreateStudent(ctx, student); err != nil {
				return created, updated, fmt.Errorf("create student %s: %w", rs.RollNumber, err)
			}
			bar.Add(1)
			continue
		}
		if err != nil {
			return created, updated, fmt.Errorf("lookup student %s: %w", rs.RollNumber, err)
		}

		if existing.FullName != rs.FullName || existing.Email != rs.Email ||
			existing.Department != rs.Department || existing.Semester != rs.Semester ||
			existing.Active != rs.Active {
			updated++
			if !dryRun {
				existing.FullName = rs.FullName
				existing.Email = rs.Email
				existing.Department = rs.Department
				existing.Semester = rs.Semester
				existing.Active = rs.Active
				if err := repo.UpdateStudent(ctx, existing); err != nil {
					return created, updated, fmt.Errorf("update student %s: %w", rs.RollNumber, err)
				}
			}
		}
		bar.Add(1)
	}
	return created, updated, nil
}

// syncCourses upserts SIS courses by code.
func syncCourses(ctx context.Context, repo *postgres.CourseRepository, roster []sis.RosterCourse, dryRun bool) (int, int, error) {
	bar := newSyncBar(len(roster), "Syncing courses")
	created, updated := 0, 0

	for _, rc := range roster {
		existing, err := repo.GetCourseByCode(ctx, rc.Code)
		if errors.Is(err, database.ErrNotFound) {
			created++
			if dryRun {
				bar.Add(1)
				continue
			}
			course := &database.Course{
				Code:        rc.Code,
				Name:        rc.Name,
				Description: rc.Description,
				MaxStudents: rc.MaxStudents,
				Active:      rc.Active,
			}
			if _, err := repo.CreateCourse(ctx, course); err != nil {
				return created, updated, fmt.Errorf("create course %s: %w", rc.Code, err)
			}
			bar.Add(1)
			continue
		}
		if err != nil {
			return created, updated, fmt.Errorf("lookup course %s: %w", rc.Code, err)
		}

		if existing.Name != rc.Name || existing.Description != rc.Description ||
			existing.MaxStudents != rc.MaxStudents || existing.Active != rc.Active {
			updated++
			if !dryRun {
				existing.Name = rc.Name
				existing.Description = rc.Description
				existing.MaxStudents = rc.MaxStudents
				existing.Active = rc.Active
				if err := repo.UpdateCourse(ctx, existing); err != nil {
					return created, updated, fmt.Errorf("update course %s: %w", rc.Code, err)
				}
			}
		}
		bar.Add(1)
	}
	return created, updated, nil
}

// syncEnrollments links students to courses. Enrollments already present are
// left alone; Enroll reports ErrDuplicate for those.
func syncEnrollments(ctx context.Context, students *postgres.StudentRepository, courses *postgres.CourseRepository, roster []sis.RosterEnrollment, dryRun bool) (int, error) {
	bar := newSyncBar(len(roster), "Syncing enrollments")
	created := 0

	for _, re := range roster {
		student, err := students.GetStudentByRoll(ctx, re.RollNumber)
		if err != nil {
			bar.Add(1)
			fmt.Printf("\nWarning: enrollment references unknown student %s\n", re.RollNumber)
			continue
		}
		course, err := courses.GetCourseByCode(ctx, re.CourseCode)
		if err != nil {
			bar.Add(1)
			fmt.Printf("\nWarning: enrollment references unknown course %s\n", re.CourseCode)
			continue
		}

		if dryRun {
			bar.Add(1)
			continue
		}
		if err := courses.Enroll(ctx, student.ID, course.ID); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				bar.Add(1)
				continue
			}
			return created, fmt.Errorf("enroll %s in %s: %w", re.RollNumber, re.CourseCode, err)
		}
		created++
		bar.Add(1)
	}
	return created, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.SIS.DSN == "" {
		return errors.New("SIS_DATABASE_DSN environment variable is required")
	}
	dryRun := mustGetBool(cmd, "dry-run")

	fmt.Printf("Connecting to SIS database...\n")
	sisPool, err := sis.NewPool(cfg.SIS.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to SIS: %w", err)
	}
	defer sisPool.Close()

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()
	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	studentRepo := postgres.NewStudentRepository(pool)
	courseRepo := postgres.NewCourseRepository(pool)

	rosterStudents, err := sisPool.GetStudents(ctx)
	if err != nil {
		return err
	}
	rosterCourses, err := sisPool.GetCourses(ctx)
	if err != nil {
		return err
	}
	rosterEnrollments, err := sisPool.GetEnrollments(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Println("Dry run: no changes will be written")
	}

	sCreated, sUpdated, err := syncStudents(ctx, studentRepo, rosterStudents, dryRun)
	if err != nil {
		return err
	}
	fmt.Printf("\nStudents: %d created, %d updated, %d total\n", sCreated, sUpdated, len(rosterStudents))

	cCreated, cUpdated, err := syncCourses(ctx, courseRepo, rosterCourses, dryRun)
	if err != nil {
		return err
	}
	fmt.Printf("\nCourses: %d created, %d updated, %d total\n", cCreated, cUpdated, len(rosterCourses))

	eCreated, err := syncEnrollments(ctx, studentRepo, courseRepo, rosterEnrollments, dryRun)
	if err != nil {
		return err
	}
	fmt.Printf("\nEnrollments: %d created, %d total\n", eCreated, len(rosterEnrollments))

	return nil
}
