package composer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/innerpath/coachd/internal/persona"
	"github.com/innerpath/coachd/internal/proxy"
	"github.com/innerpath/coachd/internal/retrieval"
)

const defaultMaxContextTokens = 4000

// Composer assembles the coach system prompt from the base persona, the
// language instruction, the audience profile, and retrieved knowledge
// chunks. It produces a ChatRequest ready for the upstream API.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected knowledge
// context. If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose builds an enriched ChatRequest by prepending a system message
// carrying the persona, language instruction, profile summary, and relevant
// knowledge chunks. If the original request already has a system message,
// the assembled content is prepended to it. User messages are preserved
// unchanged.
func (c *Composer) Compose(req proxy.ChatRequest, languageInstruction string, chunks []retrieval.ContextChunk, profileSummary string) (proxy.ChatRequest, error) {
	msgs, err := parseMessages(req.Messages)
	if err != nil {
		return req, fmt.Errorf("parsing messages: %w", err)
	}

	system := c.buildSystemPrompt(languageInstruction, chunks, profileSummary)

	if len(msgs) > 0 && getRole(msgs[0]) == "system" {
		existing := getContent(msgs[0])
		merged := system + "\n\n---\n\n" + existing
		setContent(msgs[0], merged)
	} else {
		sys := makeSystemMessage(system)
		msgs = append([]rawMsg{sys}, msgs...)
	}

	marshalled, err := json.Marshal(msgs)
	if err != nil {
		return req, fmt.Errorf("marshalling messages: %w", err)
	}

	out := req
	out.Messages = marshalled
	return out, nil
}

// buildSystemPrompt assembles persona + language + profile + knowledge,
// respecting the token budget by dropping lowest-scoring chunks first.
// The persona and language sections are never dropped.
func (c *Composer) buildSystemPrompt(languageInstruction string, chunks []retrieval.ContextChunk, profileSummary string) string {
	var sb strings.Builder
	sb.WriteString(persona.BasePrompt)

	if languageInstruction != "" {
		sb.WriteString("\n\n")
		sb.WriteString(languageInstruction)
	}

	if profileSummary != "" {
		sb.WriteString("\n\n[Audience Profile]\n")
		sb.WriteString(profileSummary)
	}

	if len(chunks) == 0 {
		return sb.String()
	}

	// Sort chunks by score descending.
	sorted := make([]retrieval.ContextChunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	// Budget: total injected knowledge must stay under MaxContextTokens.
	usedTokens := EstimateTokens(sb.String())
	contextHeader := "\n\n[Knowledge Context]\nUse the knowledge below as the basis of your advice. If it does not cover the question, stay in character and keep the answer short.\n"
	headerTokens := EstimateTokens(contextHeader)
	remaining := c.MaxContextTokens - usedTokens - headerTokens

	var selectedEntries []string
	for _, ch := range sorted {
		entry := formatChunk(ch)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		selectedEntries = append(selectedEntries, entry)
		remaining -= tokens
	}

	if len(selectedEntries) > 0 {
		sb.WriteString(contextHeader)
		for _, entry := range selectedEntries {
			sb.WriteString(entry)
		}
	}

	return sb.String()
}

func formatChunk(ch retrieval.ContextChunk) string {
	return fmt.Sprintf("(Score: %.2f, Source: %s:%s)\n%s\n\n", ch.Score, ch.SourceType, ch.SourceID, ch.Text)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// rawMsg preserves all JSON fields on a message while allowing role/content access.
type rawMsg map[string]json.RawMessage

func parseMessages(data json.RawMessage) ([]rawMsg, error) {
	var msgs []rawMsg
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func getRole(m rawMsg) string {
	v, ok := m["role"]
	if !ok {
		return ""
	}
	var role string
	json.Unmarshal(v, &role)
	return role
}

func getContent(m rawMsg) string {
	v, ok := m["content"]
	if !ok {
		return ""
	}
	var content string
	json.Unmarshal(v, &content)
	return content
}

func setContent(m rawMsg, s string) {
	b, _ := json.Marshal(s)
	m["content"] = b
}

func makeSystemMessage(content string) rawMsg {
	m := make(rawMsg)
	m["role"], _ = json.Marshal("system")
	m["content"], _ = json.Marshal(content)
	return m
}
