package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/innerpath/coachd/internal/pipeline"
	"github.com/innerpath/coachd/internal/proxy"
	"github.com/innerpath/coachd/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// InteractionRecorder persists chat turns for the analytics surface.
// Implemented by storage.Store. A nil recorder disables interaction logging.
type InteractionRecorder interface {
	SaveInteraction(i storage.Interaction) error
}

// NewChatHandler returns an http.Handler implementing the OpenAI-compatible
// chat API. Incoming requests are enriched with the persona, language
// instruction, and knowledge context before forwarding upstream. A nil
// enricher disables enrichment (passthrough mode).
func NewChatHandler(p *proxy.Client, enricher *pipeline.Enricher, recorder InteractionRecorder) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/v1/models", handleModels(p))
	r.Post("/v1/chat/completions", handleChatCompletions(p, enricher, recorder))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy","service":"coachd"}`))
}

func handleModels(p *proxy.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := p.ListModels(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to list models: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(proxy.ModelList{
			Object: "list",
			Data:   models,
		})
	}
}

func handleChatCompletions(p *proxy.Client, enricher *pipeline.Enricher, recorder InteractionRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req proxy.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if !hasMessages(req.Messages) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "messages is required and must not be empty")
			return
		}

		// The frontend's detection step may also send the language as a
		// header; the body field wins when both are present.
		if req.Language == "" {
			req.Language = r.Header.Get("X-Detected-Language")
		}

		var meta pipeline.EnrichmentMetadata
		if enricher != nil {
			var enriched proxy.ChatRequest
			enriched, meta = enricher.Enrich(r.Context(), req)
			slog.Debug("request enriched",
				"language", meta.Language,
				"chunks_used", len(meta.ChunksUsed),
				"duration_ms", meta.EnrichmentDurationMs,
			)
			req = enriched
		}

		rc, err := p.Chat(r.Context(), req)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
			return
		}
		defer rc.Close()

		if req.Stream {
			streamResponse(w, rc)
			recordInteraction(recorder, req, meta, "", "streamed")
			return
		}

		body, err := io.ReadAll(rc)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "reading upstream response: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
		recordInteraction(recorder, req, meta, extractAssistantContent(body), "completed")
	}
}

// recordInteraction persists the chat turn. Logging failures must not
// affect the response path, so errors are only logged.
func recordInteraction(recorder InteractionRecorder, req proxy.ChatRequest, meta pipeline.EnrichmentMetadata, response, status string) {
	if recorder == nil {
		return
	}
	i := storage.Interaction{
		ID:               uuid.New().String(),
		CreatedAt:        time.Now().UTC(),
		UserID:           req.UserID,
		UserQuery:        lastUserContent(req.Messages),
		DetectedLanguage: meta.Language,
		EnrichedPrompt:   firstSystemContent(req.Messages),
		Model:            req.Model,
		Response:         response,
		Status:           status,
	}
	if err := recorder.SaveInteraction(i); err != nil {
		slog.Warn("failed to record interaction", "error", err)
	}
}

func streamResponse(w http.ResponseWriter, rc io.Reader) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	reader := bufio.NewReader(rc)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			w.Write(line)
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				slog.Warn("upstream stream read error", "error", err)
				errPayload, marshalErr := json.Marshal(map[string]any{
					"error": map[string]any{
						"message": "upstream read error",
						"type":    "server_error",
					},
				})
				if marshalErr == nil {
					fmt.Fprintf(w, "data: %s\n\n", errPayload)
					flusher.Flush()
				} else {
					slog.Warn("failed to marshal stream error payload", "error", marshalErr)
				}
			}
			break
		}
	}
}

func hasMessages(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return false
	}
	return len(arr) > 0
}

func lastUserContent(raw json.RawMessage) string {
	var msgs []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return ""
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func firstSystemContent(raw json.RawMessage) string {
	var msgs []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return ""
	}
	for _, m := range msgs {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

// extractAssistantContent pulls the first choice's message content out of a
// non-streaming completion response. Best effort; returns "" on any shape
// mismatch.
func extractAssistantContent(body []byte) string {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// parseIntParam reads an integer query parameter with a default and an
// optional maximum (max <= 0 means unbounded).
func parseIntParam(r *http.Request, name string, def, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}
