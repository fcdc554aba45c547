// Package pipeline wires the per-request prompt assembly: language
// instruction resolution, knowledge retrieval, audience profile loading,
// and composition into the outgoing system prompt.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/innerpath/coachd/internal/composer"
	"github.com/innerpath/coachd/internal/persona"
	"github.com/innerpath/coachd/internal/proxy"
	"github.com/innerpath/coachd/internal/retrieval"
)

const retrievalTimeout = 5 * time.Second

// ProfileSummarizer yields the audience profile summary for a user ID.
// Implemented by audience.Manager.
type ProfileSummarizer interface {
	Summary(userID string) (string, error)
}

// KnowledgeRetriever yields scored knowledge chunks for a query.
// Implemented by retrieval.Retriever.
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// EnrichmentMetadata captures diagnostic information about the enrichment.
type EnrichmentMetadata struct {
	Language             string
	ChunksUsed           []string
	EnrichmentDurationMs int64
}

// Enricher orchestrates the prompt pipeline for each chat request.
type Enricher struct {
	retriever KnowledgeRetriever
	profiles  ProfileSummarizer
	composer  *composer.Composer
	topK      int
}

// NewEnricher creates an Enricher wired to all pipeline components.
// topK controls how many knowledge chunks are retrieved (default 5 if <= 0).
func NewEnricher(retriever KnowledgeRetriever, profiles ProfileSummarizer, comp *composer.Composer, topK int) *Enricher {
	if topK <= 0 {
		topK = 5
	}
	return &Enricher{
		retriever: retriever,
		profiles:  profiles,
		composer:  comp,
		topK:      topK,
	}
}

// Enrich assembles the outgoing request:
//  1. Resolve the language instruction from the request's detected language
//  2. Retrieve knowledge chunks for the last user message (bounded timeout)
//  3. Load the audience profile summary
//  4. Compose the system prompt
//
// Every step degrades gracefully: on failure the request still goes out
// with the persona and language instruction, so enrichment never fails a
// chat turn.
func (e *Enricher) Enrich(ctx context.Context, req proxy.ChatRequest) (out proxy.ChatRequest, meta EnrichmentMetadata) {
	start := time.Now()
	defer func() {
		meta.EnrichmentDurationMs = time.Since(start).Milliseconds()
	}()

	// 1. Language instruction. Total by construction: unknown or empty
	// labels fall to the generic instruction.
	meta.Language = req.Language
	instruction := persona.ResolveInstruction(req.Language)

	// 2. Retrieve knowledge for the last user message.
	var chunks []retrieval.ContextChunk
	if lastUserMsg := extractLastUserMessage(req.Messages); lastUserMsg != "" {
		retrieveCtx, cancel := context.WithTimeout(ctx, retrievalTimeout)
		var err error
		chunks, err = e.retriever.Retrieve(retrieveCtx, lastUserMsg, e.topK)
		cancel()
		if err != nil {
			slog.Warn("enrichment: knowledge retrieval failed", "error", err)
			chunks = nil
		}
	}
	for _, ch := range chunks {
		meta.ChunksUsed = append(meta.ChunksUsed, ch.ID)
	}

	// 3. Load audience profile summary.
	profileSummary, err := e.profiles.Summary(req.UserID)
	if err != nil {
		slog.Warn("enrichment: failed to load profile summary", "error", err)
		profileSummary = ""
	}

	// 4. Compose the system prompt.
	enriched, err := e.composer.Compose(req, instruction, chunks, profileSummary)
	if err != nil {
		slog.Warn("enrichment: composition failed, forwarding original request", "error", err)
		out = req
		return
	}

	slog.Debug("enrichment complete",
		"language", meta.Language,
		"chunks_used", len(meta.ChunksUsed),
	)

	out = enriched
	return
}

// extractLastUserMessage finds the last message with role "user" in the
// raw JSON messages array and returns its content string. Returns "" if
// no user message is found or parsing fails.
func extractLastUserMessage(raw json.RawMessage) string {
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
