package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	attendance := handlers.NewAttendanceHandler(s.service, s.config.Identify.DefaultLimit, s.logger.Named("handlers"))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		r.Post("/recognise", attendance.Recognise)
		r.Get("/check", attendance.Check)
		r.Post("/register", attendance.Register)
		r.Post("/identify", attendance.Identify)
	})
}
