package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/innerpath/coachd/internal/ingest"
	"github.com/innerpath/coachd/internal/persona"
	"github.com/innerpath/coachd/internal/retrieval"
	"github.com/innerpath/coachd/internal/storage"
)

// MCPRetriever abstracts semantic search for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Retriever MCPRetriever
	Vectors   retrieval.VectorStore
	Broker    RoomBroker // optional; if nil, create_session returns an error
}

// NewMCPServer creates an MCP server exposing the coaching admin surface as
// tools and resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"coachd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("coachd — coaching knowledge base, language instruction resolver, and voice session broker."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("search_knowledge",
			mcp.WithDescription("Semantically search the coaching knowledge base and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("add_knowledge",
			mcp.WithDescription("Store a piece of coach content into the knowledge base. Ingestion runs asynchronously."),
			mcp.WithString("title", mcp.Description("Title for the content")),
			mcp.WithString("content", mcp.Description("The text content to store"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags for categorization")),
		),
		mcpAddKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("resolve_language",
			mcp.WithDescription("Resolve a detected language name into the response-language instruction used by the prompt pipeline."),
			mcp.WithString("language", mcp.Description("Detected language name (e.g. hinglish, tamil)"), mcp.Required()),
		),
		mcpResolveLanguage(),
	)

	s.AddTool(
		mcp.NewTool("create_session",
			mcp.WithDescription("Provision a private voice room and meeting token for a user."),
			mcp.WithString("user_id", mcp.Description("Audience user identifier"), mcp.Required()),
		),
		mcpCreateSession(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"coach://analytics",
			"Coaching Analytics",
			mcp.WithResourceDescription("Entity counts across users, sources, sessions, and vectors"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAnalytics(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"coach://recent",
			"Recent Interactions",
			mcp.WithResourceDescription("Last 10 chat interactions (queries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpSearchKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		chunks, err := deps.Retriever.Retrieve(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			ID       string  `json:"id"`
			SourceID string  `json:"source_id"`
			Text     string  `json:"text"`
			Score    float32 `json:"score"`
		}

		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{
				ID:       c.ID,
				SourceID: c.SourceID,
				Text:     c.Text,
				Score:    c.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpAddKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		title := req.GetString("title", "")
		tags := req.GetStringSlice("tags", nil)

		tagsJSON := ""
		if len(tags) > 0 {
			b, err := json.Marshal(tags)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal tags: %v", err)), nil
			}
			tagsJSON = string(b)
		}

		src := storage.ContentSource{
			ID:        uuid.New().String(),
			Title:     title,
			Type:      "text",
			Content:   content,
			Status:    "pending",
			Tags:      tagsJSON,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveContentSource(src); err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}

		job, err := ingest.NewJob(src.ID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to build ingest job: %v", err)), nil
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			return mcpError(fmt.Sprintf("saved source but failed to queue ingest: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored content source %s", src.ID)), nil
	}
}

func mcpResolveLanguage() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lang, err := req.RequireString("language")
		if err != nil {
			return mcpError("language is required"), nil
		}
		return mcpText(persona.ResolveInstruction(lang)), nil
	}
}

func mcpCreateSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Broker == nil {
			return mcpError("voice sessions are not configured"), nil
		}

		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		name := deps.Broker.RoomName(userID)
		room, err := deps.Broker.CreateRoom(ctx, name)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create room: %v", err)), nil
		}

		token, err := deps.Broker.CreateMeetingToken(ctx, room.Name)
		if err != nil {
			if delErr := deps.Broker.DeleteRoom(ctx, room.Name); delErr != nil {
				slog.Warn("failed to clean up room after token error", "room", room.Name, "error", delErr)
			}
			return mcpError(fmt.Sprintf("failed to create meeting token: %v", err)), nil
		}

		session := storage.Session{
			ID:        uuid.New().String(),
			CreatedAt: time.Now().UTC(),
			UserID:    userID,
			RoomName:  room.Name,
			RoomURL:   room.URL,
			Status:    "active",
		}
		if err := deps.Store.SaveSession(session); err != nil {
			if delErr := deps.Broker.DeleteRoom(ctx, room.Name); delErr != nil {
				slog.Warn("failed to clean up room after save error", "room", room.Name, "error", delErr)
			}
			return mcpError(fmt.Sprintf("failed to save session: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{
			"session_id": session.ID,
			"room_url":   room.URL,
			"token":      token,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal session: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpResourceAnalytics(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		counts, err := deps.Store.GetCounts()
		if err != nil {
			return nil, fmt.Errorf("failed to get counts: %w", err)
		}
		if deps.Vectors != nil {
			if n, err := deps.Vectors.Count(); err == nil {
				counts.Vectors = n
			}
		}

		b, err := json.Marshal(counts)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal counts: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.GetRecentInteractions(10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Query     string `json:"query"`
			Language  string `json:"language,omitempty"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			query := ix.UserQuery
			if utf8.RuneCountInString(query) > 200 {
				runes := []rune(query)
				query = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Query:     query,
				Language:  ix.DetectedLanguage,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
