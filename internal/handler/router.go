package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-tavern/relay/internal/handler/ask"
	"github.com/zhouzirui/z-tavern/relay/internal/handler/query"
	"github.com/zhouzirui/z-tavern/relay/internal/handler/status"
	middlewarePkg "github.com/zhouzirui/z-tavern/relay/internal/middleware"
	relayService "github.com/zhouzirui/z-tavern/relay/internal/service/relay"
	statusService "github.com/zhouzirui/z-tavern/relay/internal/service/status"
)

func newBaseRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	return r
}

// NewClientRouter wires the game-facing front door of the client binary.
func NewClientRouter(asker query.Asker, tracker *statusService.Tracker, transcript status.TranscriptSource, allowedOrigins []string) http.Handler {
	r := newBaseRouter()
	r.Use(middlewarePkg.CORS(allowedOrigins))

	query.New(asker).RegisterRoutes(r)
	status.New(tracker, transcript, allowedOrigins).RegisterRoutes(r)

	return r
}

// NewServerRouter wires the authenticated /ask endpoint of the server binary.
func NewServerRouter(server *relayService.Server) http.Handler {
	r := newBaseRouter()

	ask.New(server).RegisterRoutes(r)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
