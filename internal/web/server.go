package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/facemark/facemark/internal/attendance"
	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/embedding"
	"github.com/facemark/facemark/internal/recognition"
	"github.com/facemark/facemark/internal/voice"
	"github.com/facemark/facemark/internal/web/middleware"
)

// Dependencies bundles the stores and services the handlers need.
type Dependencies struct {
	Users      database.UserStore
	Students   database.StudentWriter
	Courses    database.CourseStore
	Sessions   database.SessionStore
	Records    database.AttendanceStore
	Samples    database.FaceSampleWriter
	Provider   embedding.Provider
	Recognizer *recognition.Service
	Attendance *attendance.Service
	Notifier   voice.Notifier
}

// Server represents the web server
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	tokens     *middleware.TokenManager
	deps       Dependencies
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, port int, host string, deps Dependencies) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		router: r,
		tokens: middleware.NewTokenManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenMinutes)*time.Minute),
		deps:   deps,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute, // uploads and CSV exports
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
