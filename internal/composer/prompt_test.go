package composer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/innerpath/coachd/internal/persona"
	"github.com/innerpath/coachd/internal/proxy"
	"github.com/innerpath/coachd/internal/retrieval"
)

func chatRequest(t *testing.T, messages string) proxy.ChatRequest {
	t.Helper()
	return proxy.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: json.RawMessage(messages),
	}
}

func decodeMessages(t *testing.T, req proxy.ChatRequest) []map[string]any {
	t.Helper()
	var msgs []map[string]any
	if err := json.Unmarshal(req.Messages, &msgs); err != nil {
		t.Fatalf("unmarshalling messages: %v", err)
	}
	return msgs
}

func TestComposePrependsSystemMessage(t *testing.T) {
	c := New(0)
	req := chatRequest(t, `[{"role":"user","content":"How do I stay motivated?"}]`)

	out, err := c.Compose(req, "", nil, "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	msgs := decodeMessages(t, out)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0]["role"] != "system" {
		t.Errorf("first message role = %v, want system", msgs[0]["role"])
	}
	system := msgs[0]["content"].(string)
	if !strings.Contains(system, persona.BasePrompt[:40]) {
		t.Error("system message missing persona base prompt")
	}
	if msgs[1]["content"] != "How do I stay motivated?" {
		t.Errorf("user message changed: %v", msgs[1]["content"])
	}
}

func TestComposeMergesExistingSystemMessage(t *testing.T) {
	c := New(0)
	req := chatRequest(t, `[{"role":"system","content":"Keep answers under 50 words."},{"role":"user","content":"hi"}]`)

	out, err := c.Compose(req, "", nil, "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	msgs := decodeMessages(t, out)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	system := msgs[0]["content"].(string)
	if !strings.Contains(system, "Keep answers under 50 words.") {
		t.Error("existing system content lost in merge")
	}
	if !strings.Contains(system, "\n\n---\n\n") {
		t.Error("merge separator missing")
	}
	// The assembled prompt comes before the caller's original.
	if strings.Index(system, "Keep answers under 50 words.") < strings.Index(system, "---") {
		t.Error("original system content should follow the assembled prompt")
	}
}

func TestComposeIncludesLanguageInstruction(t *testing.T) {
	c := New(0)
	req := chatRequest(t, `[{"role":"user","content":"hi"}]`)

	instruction := persona.ResolveInstruction("hinglish")
	out, err := c.Compose(req, instruction, nil, "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	msgs := decodeMessages(t, out)
	system := msgs[0]["content"].(string)
	if !strings.Contains(system, instruction) {
		t.Error("system message missing language instruction")
	}
}

func TestComposeIncludesProfileSummary(t *testing.T) {
	c := New(0)
	req := chatRequest(t, `[{"role":"user","content":"hi"}]`)

	out, err := c.Compose(req, "", nil, "You are coaching Priya.")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	msgs := decodeMessages(t, out)
	system := msgs[0]["content"].(string)
	if !strings.Contains(system, "[Audience Profile]") {
		t.Error("system message missing audience profile header")
	}
	if !strings.Contains(system, "You are coaching Priya.") {
		t.Error("system message missing profile summary")
	}
}

func TestComposeIncludesChunksSortedByScore(t *testing.T) {
	c := New(0)
	req := chatRequest(t, `[{"role":"user","content":"hi"}]`)

	chunks := []retrieval.ContextChunk{
		{ID: "low", SourceID: "s1", SourceType: "content_source", Text: "low score text", Score: 0.4},
		{ID: "high", SourceID: "s1", SourceType: "content_source", Text: "high score text", Score: 0.9},
	}

	out, err := c.Compose(req, "", chunks, "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	msgs := decodeMessages(t, out)
	system := msgs[0]["content"].(string)
	if !strings.Contains(system, "[Knowledge Context]") {
		t.Fatal("system message missing knowledge context header")
	}
	hi := strings.Index(system, "high score text")
	lo := strings.Index(system, "low score text")
	if hi == -1 || lo == -1 {
		t.Fatal("chunk text missing from system message")
	}
	if hi > lo {
		t.Error("chunks not ordered by score descending")
	}
}

func TestComposeRespectsTokenBudget(t *testing.T) {
	// Budget large enough for the persona plus one small chunk only.
	c := New(EstimateTokens(persona.BasePrompt) + 60)
	req := chatRequest(t, `[{"role":"user","content":"hi"}]`)

	chunks := []retrieval.ContextChunk{
		{ID: "big", SourceID: "s1", SourceType: "content_source", Text: strings.Repeat("x", 4000), Score: 0.9},
		{ID: "small", SourceID: "s1", SourceType: "content_source", Text: "short", Score: 0.5},
	}

	out, err := c.Compose(req, "", chunks, "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	msgs := decodeMessages(t, out)
	system := msgs[0]["content"].(string)
	if strings.Contains(system, strings.Repeat("x", 4000)) {
		t.Error("oversized chunk should have been dropped")
	}
	if !strings.Contains(system, "short") {
		t.Error("small chunk within budget should have been kept")
	}
}

func TestComposeInvalidMessages(t *testing.T) {
	c := New(0)
	req := chatRequest(t, `{"not":"an array"}`)

	if _, err := c.Compose(req, "", nil, ""); err == nil {
		t.Error("expected error for non-array messages")
	}
}

func TestComposePreservesExtraMessageFields(t *testing.T) {
	c := New(0)
	req := chatRequest(t, `[{"role":"user","content":"hi","name":"priya"}]`)

	out, err := c.Compose(req, "", nil, "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	msgs := decodeMessages(t, out)
	if msgs[1]["name"] != "priya" {
		t.Errorf("extra field lost: %v", msgs[1])
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
