package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/pumpstation-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса учёта АЗС.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/machines", h.CreateMachine)
			r.Get("/machines", h.ListMachines)

			r.Post("/testings", h.CreateTesting)
			r.Get("/testings", h.ListTestings)
			r.Get("/testings/for-date-machine", h.TestingVolumeForDate)

			r.Post("/daily-collections", h.CreateReading)
			r.Get("/daily-collections", h.ListReadings)
			r.Put("/daily-collections/{id}", h.UpdateReading)
			r.Delete("/daily-collections/{id}", h.DeleteReading)
			r.Put("/daily-collections/{id}/approve", h.ApproveReading)

			r.Post("/credits", h.AddLedgerEntry)
			r.Get("/credits", h.ListLedgerEntries)
			r.Put("/credits/{id}", h.UpdateLedgerEntry)
			r.Delete("/credits/{id}", h.DeleteLedgerEntry)
			r.Get("/credits/summary/{userID}", h.GetLedgerSummary)

			r.Get("/audit-logs", h.ListAuditLogs)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
