package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/facemark/facemark/internal/attendance"
	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database/postgres"
	"github.com/facemark/facemark/internal/embedding"
	"github.com/facemark/facemark/internal/recognition"
	"github.com/facemark/facemark/internal/voice"
	"github.com/facemark/facemark/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance server",
	Long: `Start the Facemark attendance server.
The server exposes the roster, session and recognition API together with the
websocket stream the kiosk uses for live check-ins.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// initRosterHNSW builds or loads the in-memory index over the registered
// face samples.
func initRosterHNSW(ctx context.Context, samples *postgres.FaceSampleRepository, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading roster HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for the roster...\n")
	}
	if err := samples.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build roster HNSW index: %v\n", err)
		fmt.Printf("Face matching will use PostgreSQL queries (slower)\n")
	} else if indexPath != "" {
		fmt.Printf("Roster HNSW index ready with %d samples (persisted to %s)\n", samples.IndexCount(), indexPath)
	} else {
		fmt.Printf("Roster HNSW index built with %d samples (in-memory only)\n", samples.IndexCount())
	}
}

// buildNotifier picks the voice backend from the configuration.
func buildNotifier(cfg *config.Config) (voice.Notifier, func()) {
	if cfg.Voice.URL == "" {
		fmt.Println("Voice announcements disabled (VOICE_URL not set)")
		return voice.NopNotifier{}, func() {}
	}

	catalog, err := voice.LoadCatalog()
	if err != nil {
		fmt.Printf("Warning: failed to load voice catalog: %v\n", err)
		return voice.NopNotifier{}, func() {}
	}

	async := voice.NewAsyncNotifier(voice.NewHTTPNotifier(cfg.Voice.URL, catalog), 16)
	fmt.Printf("Voice announcements enabled via %s\n", cfg.Voice.URL)
	return async, async.Close
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}

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

	users := postgres.NewUserRepository(pool)
	students := postgres.NewStudentRepository(pool)
	courses := postgres.NewCourseRepository(pool)
	sessions := postgres.NewSessionRepository(pool)
	records := postgres.NewAttendanceRepository(pool)
	samples := postgres.NewFaceSampleRepository(pool)

	initRosterHNSW(ctx, samples, cfg.Database.HNSWIndexPath)

	provider := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.Dim)
	if err := provider.Ping(ctx); err != nil {
		fmt.Printf("Warning: embedding service not reachable: %v\n", err)
	}

	notifier, stopNotifier := buildNotifier(cfg)
	defer stopNotifier()

	recognizer := recognition.NewService(provider, samples, recognition.Options{
		Threshold:           cfg.Recognition.Threshold,
		AmbiguityMargin:     cfg.Recognition.AmbiguityMargin,
		DetectionConfidence: cfg.Recognition.DetectionConfidence,
		LivenessThreshold:   cfg.Recognition.LivenessThreshold,
	})
	attendanceService := attendance.NewService(sessions, records, courses, attendance.Options{
		LateArrivalMinutes:     cfg.Attendance.LateArrivalMinutes,
		DuplicateWindowMinutes: cfg.Attendance.DuplicateWindowMinutes,
	})

	scheduler := attendance.NewScheduler(attendanceService, time.Minute)
	if err := scheduler.Start(); err != nil {
		fmt.Printf("Warning: failed to start session scheduler: %v\n", err)
	}
	defer scheduler.Stop()

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, port, host, web.Dependencies{
		Users:      users,
		Students:   students,
		Courses:    courses,
		Sessions:   sessions,
		Records:    records,
		Samples:    samples,
		Provider:   provider,
		Recognizer: recognizer,
		Attendance: attendanceService,
		Notifier:   notifier,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		if samples.HNSWEnabled() && cfg.Database.HNSWIndexPath != "" {
			if err := samples.SaveIndex(); err != nil {
				fmt.Printf("Warning: failed to save roster HNSW index: %v\n", err)
			} else {
				fmt.Println("Roster HNSW index saved to disk")
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Facemark API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
