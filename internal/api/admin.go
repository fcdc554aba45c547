package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/innerpath/coachd/internal/ingest"
	"github.com/innerpath/coachd/internal/retrieval"
	"github.com/innerpath/coachd/internal/storage"
)

const defaultListLimit = 50

// NewAdminHandler returns the token-guarded admin API: audience users,
// content sources, integrations, and analytics.
func NewAdminHandler(store *storage.Store, vectors retrieval.VectorStore, token string) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(token))
	registerAdminRoutes(r, store, vectors)
	return r
}

func registerAdminRoutes(r chi.Router, store *storage.Store, vectors retrieval.VectorStore) {
	r.Get("/admin/users", handleListUsers(store))
	r.Post("/admin/users", handleCreateUser(store))
	r.Get("/admin/users/{id}", handleGetUser(store))
	r.Put("/admin/users/{id}", handleUpdateUser(store))
	r.Delete("/admin/users/{id}", handleDeleteUser(store))

	r.Get("/admin/sources", handleListSources(store))
	r.Post("/admin/sources", handleCreateSource(store))
	r.Delete("/admin/sources/{id}", handleDeleteSource(store, vectors))

	r.Get("/admin/integrations", handleListIntegrations(store))
	r.Post("/admin/oauth/callback", handleOAuthCallback(store))
	r.Delete("/admin/integrations/{id}", handleDeleteIntegration(store))

	r.Get("/admin/sessions", handleListSessions(store))
	r.Get("/admin/interactions", handleListInteractions(store))
	r.Get("/admin/analytics", handleAnalytics(store, vectors))
}

type userRequest struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredLanguage string `json:"preferred_language"`
	Goals             string `json:"goals"`
	Status            string `json:"status"`
}

type userResponse struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	PreferredLanguage string    `json:"preferred_language"`
	Goals             string    `json:"goals"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toUserResponse(u storage.AudienceUser) userResponse {
	return userResponse{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		PreferredLanguage: u.PreferredLanguage,
		Goals:             u.Goals,
		Status:            u.Status,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func handleListUsers(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultListLimit, 500)
		users, err := store.ListAudienceUsers(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list users: %v", err)
			return
		}
		out := make([]userResponse, 0, len(users))
		for _, u := range users {
			out = append(out, toUserResponse(u))
		}
		writeJSON(w, map[string]any{"users": out})
	}
}

func handleCreateUser(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userRequest
		if err := decodeBody(w, r, &req); err != nil {
			return
		}
		if req.Email == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "email is required")
			return
		}
		if req.Status == "" {
			req.Status = "active"
		}

		now := time.Now().UTC()
		u := storage.AudienceUser{
			ID:                uuid.New().String(),
			Email:             req.Email,
			Name:              req.Name,
			PreferredLanguage: req.PreferredLanguage,
			Goals:             req.Goals,
			Status:            req.Status,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := store.SaveAudienceUser(u); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save user: %v", err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, toUserResponse(u))
	}
}

func handleGetUser(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := store.GetAudienceUser(chi.URLParam(r, "id"))
		if err == storage.ErrNotFound {
			httpError(w, http.StatusNotFound, "invalid_request_error", "user not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load user: %v", err)
			return
		}
		writeJSON(w, toUserResponse(u))
	}
}

func handleUpdateUser(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		existing, err := store.GetAudienceUser(id)
		if err == storage.ErrNotFound {
			httpError(w, http.StatusNotFound, "invalid_request_error", "user not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load user: %v", err)
			return
		}

		var req userRequest
		if err := decodeBody(w, r, &req); err != nil {
			return
		}
		if req.Email != "" {
			existing.Email = req.Email
		}
		if req.Name != "" {
			existing.Name = req.Name
		}
		if req.PreferredLanguage != "" {
			existing.PreferredLanguage = req.PreferredLanguage
		}
		if req.Goals != "" {
			existing.Goals = req.Goals
		}
		if req.Status != "" {
			existing.Status = req.Status
		}
		existing.UpdatedAt = time.Now().UTC()

		if err := store.UpdateAudienceUser(existing); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update user: %v", err)
			return
		}
		writeJSON(w, toUserResponse(existing))
	}
}

func handleDeleteUser(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := store.DeleteAudienceUser(chi.URLParam(r, "id"))
		if err == storage.ErrNotFound {
			httpError(w, http.StatusNotFound, "invalid_request_error", "user not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete user: %v", err)
			return
		}
		writeJSON(w, map[string]any{"success": true})
	}
}

type sourceRequest struct {
	Title   string   `json:"title"`
	Type    string   `json:"type"`
	URL     string   `json:"url"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type sourceResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Type       string    `json:"type"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func toSourceResponse(src storage.ContentSource) sourceResponse {
	var tags []string
	if src.Tags != "" {
		json.Unmarshal([]byte(src.Tags), &tags)
	}
	return sourceResponse{
		ID:         src.ID,
		Title:      src.Title,
		Type:       src.Type,
		URL:        src.URL,
		Status:     src.Status,
		Error:      src.Error,
		Tags:       tags,
		ChunkCount: src.ChunkCount,
		CreatedAt:  src.CreatedAt,
	}
}

func handleListSources(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultListLimit, 500)
		sources, err := store.ListContentSources(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sources: %v", err)
			return
		}
		out := make([]sourceResponse, 0, len(sources))
		for _, src := range sources {
			out = append(out, toSourceResponse(src))
		}
		writeJSON(w, map[string]any{"sources": out})
	}
}

func handleCreateSource(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if err := decodeBody(w, r, &req); err != nil {
			return
		}
		if req.Type == "" {
			req.Type = "text"
		}
		switch req.Type {
		case "text", "pdf":
			if req.Content == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required for type %q", req.Type)
				return
			}
		case "url", "scrape":
			if req.URL == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required for type %q", req.Type)
				return
			}
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown source type %q", req.Type)
			return
		}

		tagsJSON := ""
		if len(req.Tags) > 0 {
			b, err := json.Marshal(req.Tags)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid tags: %v", err)
				return
			}
			tagsJSON = string(b)
		}

		src := storage.ContentSource{
			ID:        uuid.New().String(),
			Title:     req.Title,
			Type:      req.Type,
			URL:       req.URL,
			Content:   req.Content,
			Status:    "pending",
			Tags:      tagsJSON,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.SaveContentSource(src); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save source: %v", err)
			return
		}

		job, err := ingest.NewJob(src.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build ingest job: %v", err)
			return
		}
		if err := store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue ingest job: %v", err)
			return
		}

		slog.Info("content source queued", "source_id", src.ID, "type", src.Type)

		writeJSONStatus(w, http.StatusAccepted, toSourceResponse(src))
	}
}

func handleDeleteSource(store *storage.Store, vectors retrieval.VectorStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		deleted := 0
		if vectors != nil {
			n, err := vectors.DeleteBySource(id)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to delete vectors: %v", err)
				return
			}
			deleted = n
		}

		err := store.DeleteContentSource(id)
		if err == storage.ErrNotFound {
			httpError(w, http.StatusNotFound, "invalid_request_error", "source not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete source: %v", err)
			return
		}
		writeJSON(w, map[string]any{"success": true, "vectors_deleted": deleted})
	}
}

type oauthCallbackRequest struct {
	Provider     string `json:"provider"`
	AccountID    string `json:"account_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type integrationResponse struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func handleOAuthCallback(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req oauthCallbackRequest
		if err := decodeBody(w, r, &req); err != nil {
			return
		}
		if req.Provider == "" || req.AccountID == "" || req.AccessToken == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "provider, account_id and access_token are required")
			return
		}

		now := time.Now().UTC()
		in := storage.Integration{
			ID:           uuid.New().String(),
			Provider:     req.Provider,
			AccountID:    req.AccountID,
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
			CreatedAt:    now,
		}
		if req.ExpiresIn > 0 {
			in.ExpiresAt = now.Add(time.Duration(req.ExpiresIn) * time.Second)
		}

		if err := store.UpsertIntegration(in); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save integration: %v", err)
			return
		}

		slog.Info("integration connected", "provider", req.Provider, "account_id", req.AccountID)
		writeJSON(w, map[string]any{"success": true})
	}
}

// handleListIntegrations never exposes tokens. Only connection metadata is
// returned.
func handleListIntegrations(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		integrations, err := store.ListIntegrations()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list integrations: %v", err)
			return
		}
		out := make([]integrationResponse, 0, len(integrations))
		for _, in := range integrations {
			out = append(out, integrationResponse{
				ID:        in.ID,
				Provider:  in.Provider,
				AccountID: in.AccountID,
				ExpiresAt: in.ExpiresAt,
				CreatedAt: in.CreatedAt,
			})
		}
		writeJSON(w, map[string]any{"integrations": out})
	}
}

func handleDeleteIntegration(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := store.DeleteIntegration(chi.URLParam(r, "id"))
		if err == storage.ErrNotFound {
			httpError(w, http.StatusNotFound, "invalid_request_error", "integration not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete integration: %v", err)
			return
		}
		writeJSON(w, map[string]any{"success": true})
	}
}

func handleListSessions(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultListLimit, 500)
		sessions, err := store.ListSessions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}
		type sessionInfo struct {
			ID        string    `json:"id"`
			UserID    string    `json:"user_id"`
			RoomName  string    `json:"room_name"`
			Status    string    `json:"status"`
			CreatedAt time.Time `json:"created_at"`
			EndedAt   time.Time `json:"ended_at,omitzero"`
		}
		out := make([]sessionInfo, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, sessionInfo{
				ID:        s.ID,
				UserID:    s.UserID,
				RoomName:  s.RoomName,
				Status:    s.Status,
				CreatedAt: s.CreatedAt,
				EndedAt:   s.EndedAt,
			})
		}
		writeJSON(w, map[string]any{"sessions": out})
	}
}

func handleListInteractions(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultListLimit, 500)
		interactions, err := store.GetRecentInteractions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		type interactionInfo struct {
			ID               string    `json:"id"`
			CreatedAt        time.Time `json:"created_at"`
			UserID           string    `json:"user_id,omitempty"`
			UserQuery        string    `json:"user_query"`
			DetectedLanguage string    `json:"detected_language,omitempty"`
			Model            string    `json:"model"`
			Status           string    `json:"status"`
		}
		out := make([]interactionInfo, 0, len(interactions))
		for _, i := range interactions {
			out = append(out, interactionInfo{
				ID:               i.ID,
				CreatedAt:        i.CreatedAt,
				UserID:           i.UserID,
				UserQuery:        i.UserQuery,
				DetectedLanguage: i.DetectedLanguage,
				Model:            i.Model,
				Status:           i.Status,
			})
		}
		writeJSON(w, map[string]any{"interactions": out})
	}
}

func handleAnalytics(store *storage.Store, vectors retrieval.VectorStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := store.GetCounts()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load analytics: %v", err)
			return
		}
		if vectors != nil {
			n, err := vectors.Count()
			if err == nil {
				counts.Vectors = n
			}
		}
		writeJSON(w, counts)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
