package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	apimw "github.com/llmgate/llmgate/internal/api/middleware"
)

// NewRouter wires the full middleware chain ahead of the chat, embeddings,
// and auxiliary handlers.
func NewRouter(h *Handlers, auth *apimw.ServiceKeyAuth, version string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(apimw.Logger)
	r.Use(apimw.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(auth.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version})
	})
	r.Get("/test", h.Test)

	r.Post("/chat", h.Chat)
	r.Post("/embeddings", h.Embeddings)
	r.Post("/audio", h.Audio)
	r.Post("/image/ocr", h.ImageOCR)

	return r
}

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 15 * time.Second
