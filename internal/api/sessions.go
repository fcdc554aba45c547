package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/innerpath/coachd/internal/daily"
	"github.com/innerpath/coachd/internal/storage"
)

// RoomBroker provisions and tears down voice rooms. Implemented by
// daily.Client.
type RoomBroker interface {
	RoomName(userID string) string
	CreateRoom(ctx context.Context, name string) (daily.Room, error)
	CreateMeetingToken(ctx context.Context, roomName string) (string, error)
	DeleteRoom(ctx context.Context, name string) error
}

// SessionStore persists voice session records. Implemented by storage.Store.
type SessionStore interface {
	SaveSession(s storage.Session) error
	GetSession(id string) (storage.Session, error)
	EndSession(id string) error
}

type sessionRequest struct {
	UserID string `json:"user_id"`
}

type sessionResponse struct {
	Success   bool   `json:"success"`
	RoomURL   string `json:"room_url"`
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
}

// NewSessionHandler returns an http.Handler for the voice session broker.
// When broker is nil the endpoints report the feature as unavailable.
func NewSessionHandler(broker RoomBroker, store SessionStore) http.Handler {
	r := chi.NewRouter()

	r.Post("/v1/sessions", handleCreateSession(broker, store))
	r.Delete("/v1/sessions/{id}", handleEndSession(broker, store))

	return r
}

func handleCreateSession(broker RoomBroker, store SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if broker == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "voice sessions are not configured")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req sessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		name := broker.RoomName(req.UserID)
		room, err := broker.CreateRoom(r.Context(), name)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to create room: %v", err)
			return
		}

		token, err := broker.CreateMeetingToken(r.Context(), room.Name)
		if err != nil {
			// The room exists but is unusable without a token. Best
			// effort cleanup so it does not linger until expiry.
			if delErr := broker.DeleteRoom(r.Context(), room.Name); delErr != nil {
				slog.Warn("failed to clean up room after token error", "room", room.Name, "error", delErr)
			}
			httpError(w, http.StatusBadGateway, "api_error", "failed to create meeting token: %v", err)
			return
		}

		session := storage.Session{
			ID:        uuid.New().String(),
			CreatedAt: time.Now().UTC(),
			UserID:    req.UserID,
			RoomName:  room.Name,
			RoomURL:   room.URL,
			Status:    "active",
		}
		if err := store.SaveSession(session); err != nil {
			if delErr := broker.DeleteRoom(r.Context(), room.Name); delErr != nil {
				slog.Warn("failed to clean up room after save error", "room", room.Name, "error", delErr)
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save session: %v", err)
			return
		}

		slog.Info("voice session created", "session_id", session.ID, "room", room.Name)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessionResponse{
			Success:   true,
			RoomURL:   room.URL,
			Token:     token,
			SessionID: session.ID,
		})
	}
}

func handleEndSession(broker RoomBroker, store SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		session, err := store.GetSession(id)
		if err == storage.ErrNotFound {
			httpError(w, http.StatusNotFound, "invalid_request_error", "session not found: %s", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load session: %v", err)
			return
		}

		if err := store.EndSession(id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to end session: %v", err)
			return
		}

		if broker != nil {
			if err := broker.DeleteRoom(r.Context(), session.RoomName); err != nil {
				slog.Warn("failed to delete room", "room", session.RoomName, "error", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}
}
