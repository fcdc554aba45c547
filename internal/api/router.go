package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/innerpath/coachd/internal/pipeline"
	"github.com/innerpath/coachd/internal/proxy"
	"github.com/innerpath/coachd/internal/retrieval"
	"github.com/innerpath/coachd/internal/storage"
)

// NewRouter composes the full HTTP surface on one router: the public
// OpenAI-compatible chat API, the voice session broker, and the
// token-guarded admin API.
func NewRouter(
	p *proxy.Client,
	enricher *pipeline.Enricher,
	broker RoomBroker,
	store *storage.Store,
	vectors retrieval.VectorStore,
	adminToken string,
) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/v1/models", handleModels(p))
	r.Post("/v1/chat/completions", handleChatCompletions(p, enricher, store))

	r.Post("/v1/sessions", handleCreateSession(broker, store))
	r.Delete("/v1/sessions/{id}", handleEndSession(broker, store))

	r.Group(func(admin chi.Router) {
		admin.Use(BearerAuth(adminToken))
		registerAdminRoutes(admin, store, vectors)
	})

	return r
}
