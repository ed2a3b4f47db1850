package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facemark/facemark/internal/attendance"
	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/postgres"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Operator tooling for attendance sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open sessions",
	RunE:  runSessionsList,
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a session and back-fill absences",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsClose,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCloseCmd)
}

// sessionStores connects to Postgres and wires the attendance service the
// session subcommands share.
func sessionStores() (*postgres.Pool, *attendance.Service, database.SessionStore, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	sessions := postgres.NewSessionRepository(pool)
	records := postgres.NewAttendanceRepository(pool)
	courses := postgres.NewCourseRepository(pool)
	service := attendance.NewService(sessions, records, courses, attendance.Options{
		LateArrivalMinutes:     cfg.Attendance.LateArrivalMinutes,
		DuplicateWindowMinutes: cfg.Attendance.DuplicateWindowMinutes,
	})
	return pool, service, sessions, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	pool, _, sessions, err := sessionStores()
	if err != nil {
		return err
	}
	defer pool.Close()

	active, err := sessions.ListActiveSessions(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(active) == 0 {
		fmt.Println("No open sessions")
		return nil
	}

	fmt.Printf("%-36s  %-8s  %-10s  %s\n", "ID", "COURSE", "DATE", "STARTS")
	for _, s := range active {
		starts := "-"
		if s.StartsAt != nil {
			starts = s.StartsAt.Format("15:04")
		}
		fmt.Printf("%-36s  %-8d  %-10s  %s\n", s.ID, s.CourseID, s.Date, starts)
	}
	return nil
}

func runSessionsClose(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	pool, service, _, err := sessionStores()
	if err != nil {
		return err
	}
	defer pool.Close()

	absents, err := service.CloseSession(context.Background(), sessionID, "system")
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("no session with ID %q", sessionID)
		}
		return fmt.Errorf("failed to close session: %w", err)
	}

	fmt.Printf("Session %s closed, %d absence(s) back-filled\n", sessionID, absents)
	return nil
}
