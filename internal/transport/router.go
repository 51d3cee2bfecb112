package transport

import (
	"github.com/go-chi/chi/v5"
)

func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(LogMiddleware, WithRecover)

	r.Post("/ingestion/upload-image", h.uploadImage)
	r.Get("/ingestion/image/{fileName}", h.getImage)
	r.Get("/task/{id}", h.getTask)

	return r
}
