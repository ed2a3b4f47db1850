package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/web/handlers"
	"github.com/facemark/facemark/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	authHandler := handlers.NewAuthHandler(s.deps.Users, s.tokens)
	studentsHandler := handlers.NewStudentsHandler(s.deps.Students, s.deps.Samples, s.deps.Provider)
	coursesHandler := handlers.NewCoursesHandler(s.deps.Courses)
	sessionsHandler := handlers.NewSessionsHandler(s.deps.Attendance, s.deps.Sessions, s.deps.Students, s.deps.Records)
	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Recognizer, s.deps.Attendance, s.deps.Students, s.deps.Notifier)
	streamHandler := handlers.NewStreamHandler(recognizeHandler)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)

		// Everything else requires a valid token
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.tokens))

			// The stream holds its connection open, so the request timeout
			// applies to the plain HTTP routes only.
			r.Get("/attendance/stream", streamHandler.Serve)

			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.Timeout(time.Minute))

				r.Get("/auth/me", authHandler.Me)

				// Kiosk recognition
				r.Post("/recognize", recognizeHandler.Recognize)
				r.Post("/recognize/attendance", recognizeHandler.RecognizeAttendance)

				// Student accounts can read their own history; the handler
				// enforces the ownership check.
				r.Get("/students/{id}/attendance", sessionsHandler.StudentHistory)

				// Read access for teachers and admins
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(database.RoleAdmin, database.RoleTeacher))

					r.Get("/students", studentsHandler.List)
					r.Get("/students/{id}", studentsHandler.Get)
					r.Get("/students/{id}/face", studentsHandler.FaceStatus)
					r.Get("/students/{id}/courses/{courseID}/stats", sessionsHandler.StudentCourseStats)

					r.Get("/courses", coursesHandler.List)
					r.Get("/courses/{id}", coursesHandler.Get)
					r.Get("/courses/{id}/students", coursesHandler.Students)
					r.Get("/courses/{id}/sessions", sessionsHandler.ListByCourse)

					// Sessions
					r.Post("/sessions", sessionsHandler.Open)
					r.Get("/sessions/active", sessionsHandler.ListActive)
					r.Get("/sessions/{id}", sessionsHandler.Get)
					r.Post("/sessions/{id}/close", sessionsHandler.Close)
					r.Get("/sessions/{id}/records", sessionsHandler.Records)
					r.Put("/sessions/{id}/status", sessionsHandler.SetStatus)
					r.Get("/sessions/{id}/stats", sessionsHandler.Stats)
					r.Get("/sessions/{id}/export", sessionsHandler.Export)
				})

				// Roster and enrollment changes are admin only
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(database.RoleAdmin))

					r.Post("/students", studentsHandler.Create)
					r.Put("/students/{id}", studentsHandler.Update)
					r.Delete("/students/{id}", studentsHandler.Delete)
					r.Post("/students/{id}/face", studentsHandler.RegisterFace)
					r.Delete("/students/{id}/face", studentsHandler.DeleteFace)

					r.Post("/courses", coursesHandler.Create)
					r.Put("/courses/{id}", coursesHandler.Update)
					r.Delete("/courses/{id}", coursesHandler.Delete)
					r.Post("/courses/{id}/enroll", coursesHandler.Enroll)
					r.Delete("/courses/{id}/enroll/{studentID}", coursesHandler.Unenroll)
				})
			})
		})
	})
}
