package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChatForwardsRequest(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("sk-test", server.URL)
	req := ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: json.RawMessage(`[{"role":"user","content":"hi"}]`),
	}

	rc, err := c.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if !strings.Contains(string(body), "hello") {
		t.Errorf("response = %s", body)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", gotBody["model"])
	}
}

// TestChatStripsExtensionFields verifies language and user_id never reach
// the upstream API.
func TestChatStripsExtensionFields(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var req ChatRequest
	payload := `{"model":"m","messages":[{"role":"user","content":"hi"}],"language":"hinglish","user_id":"u1","temperature":0.7}`
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("unmarshalling: %v", err)
	}
	if req.Language != "hinglish" {
		t.Errorf("Language = %q, want hinglish", req.Language)
	}
	if req.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", req.UserID)
	}

	c := NewClientWithBaseURL("k", server.URL)
	rc, err := c.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	rc.Close()

	if _, ok := gotBody["language"]; ok {
		t.Error("language leaked upstream")
	}
	if _, ok := gotBody["user_id"]; ok {
		t.Error("user_id leaked upstream")
	}
	if gotBody["temperature"] != 0.7 {
		t.Errorf("extra field temperature = %v, want 0.7", gotBody["temperature"])
	}
}

func TestChatRetriesOn429(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	rc, err := c.Chat(context.Background(), ChatRequest{Model: "m", Messages: json.RawMessage(`[]`)})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	rc.Close()

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestChatGivesUpAfterMaxRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	_, err := c.Chat(context.Background(), ChatRequest{Model: "m", Messages: json.RawMessage(`[]`)})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %v", err)
	}
}

func TestChatNonRetryableError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	_, err := c.Chat(context.Background(), ChatRequest{Model: "m", Messages: json.RawMessage(`[]`)})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (400 is not retryable)", attempts)
	}
}

func TestEmbeddings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req embeddingsRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "text-embedding-3-small" {
			t.Errorf("model = %q", req.Model)
		}
		// Return out of order; the client must honor the index field.
		w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	vecs, err := c.Embeddings(context.Background(), "text-embedding-3-small", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embeddings: %v", err)
	}

	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("vectors not reordered by index: %v", vecs)
	}
}

func TestEmbeddingsCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	if _, err := c.Embeddings(context.Background(), "m", []string{"a", "b"}); err == nil {
		t.Error("expected error for count mismatch")
	}
}

func TestEmbeddingsEmptyInput(t *testing.T) {
	c := NewClientWithBaseURL("k", "http://127.0.0.1:0")
	vecs, err := c.Embeddings(context.Background(), "m", nil)
	if err != nil {
		t.Fatalf("Embeddings: %v", err)
	}
	if vecs != nil {
		t.Errorf("expected nil, got %v", vecs)
	}
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o-mini","object":"model"}]}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].ID != "gpt-4o-mini" {
		t.Errorf("models = %v", models)
	}
}

func TestChatRequestRoundTrip(t *testing.T) {
	var req ChatRequest
	payload := `{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":true,"language":"tamil","max_tokens":100}`
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("unmarshalling: %v", err)
	}

	out, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshalling: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("re-unmarshalling: %v", err)
	}
	if m["stream"] != true {
		t.Errorf("stream = %v", m["stream"])
	}
	if m["max_tokens"] != float64(100) {
		t.Errorf("max_tokens = %v", m["max_tokens"])
	}
	if _, ok := m["language"]; ok {
		t.Error("language should not be marshalled")
	}
}
