// Package daily implements the Daily REST client used to broker voice
// coaching sessions: one private room plus an owner meeting token per
// session.
package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.daily.co/v1"
	defaultTimeout = 15 * time.Second

	// roomTTL bounds how long a session room stays joinable.
	roomTTL = time.Hour
)

// Client communicates with the Daily REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a Daily client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		now: time.Now,
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Room is a created Daily room.
type Room struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RoomName builds the per-session room name: a user prefix, a timestamp,
// and a random suffix so concurrent sessions for one user never collide.
func (c *Client) RoomName(userID string) string {
	prefix := userID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("voice-%s-%d-%s", prefix, c.now().Unix(), randomSuffix(6))
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}

// CreateRoom creates a private audio-only room for a coaching session:
// two participants max, chat and screenshare off, expiring after an hour.
func (c *Client) CreateRoom(ctx context.Context, name string) (Room, error) {
	payload := map[string]any{
		"name":    name,
		"privacy": "private",
		"properties": map[string]any{
			"max_participants":   2,
			"enable_chat":        false,
			"enable_screenshare": false,
			"start_video_off":    true,
			"start_audio_off":    false,
			"exp":                c.now().Add(roomTTL).Unix(),
		},
	}

	var room Room
	if err := c.post(ctx, "/rooms", payload, &room); err != nil {
		return Room{}, fmt.Errorf("creating room: %w", err)
	}
	return room, nil
}

// CreateMeetingToken creates an owner token scoped to the given room.
func (c *Client) CreateMeetingToken(ctx context.Context, roomName string) (string, error) {
	payload := map[string]any{
		"properties": map[string]any{
			"room_name": roomName,
			"is_owner":  true,
		},
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/meeting-tokens", payload, &out); err != nil {
		return "", fmt.Errorf("creating meeting token: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("meeting token response missing token")
	}
	return out.Token, nil
}

// DeleteRoom removes a room, ending the session for any participants.
func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/rooms/"+name, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
