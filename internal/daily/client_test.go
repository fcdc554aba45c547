package daily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"
)

func TestRoomNameFormat(t *testing.T) {
	c := NewClient("k")
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	name := c.RoomName("user-1234-abcd")
	pattern := regexp.MustCompile(`^voice-user-123-1700000000-[a-z0-9]{6}$`)
	if !pattern.MatchString(name) {
		t.Errorf("RoomName = %q, want match for %s", name, pattern)
	}
}

func TestRoomNameShortUserID(t *testing.T) {
	c := NewClient("k")
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	name := c.RoomName("u1")
	pattern := regexp.MustCompile(`^voice-u1-1700000000-[a-z0-9]{6}$`)
	if !pattern.MatchString(name) {
		t.Errorf("RoomName = %q, want match for %s", name, pattern)
	}
}

func TestRoomNameUnique(t *testing.T) {
	c := NewClient("k")
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		name := c.RoomName("user")
		if seen[name] {
			t.Fatalf("duplicate room name %q", name)
		}
		seen[name] = true
	}
}

func TestCreateRoom(t *testing.T) {
	var gotAuth string
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rooms" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte(`{"name":"voice-abc","url":"https://x.daily.co/voice-abc"}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("daily-key", server.URL)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	room, err := c.CreateRoom(context.Background(), "voice-abc")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	if room.URL != "https://x.daily.co/voice-abc" {
		t.Errorf("URL = %q", room.URL)
	}
	if gotAuth != "Bearer daily-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if payload["privacy"] != "private" {
		t.Errorf("privacy = %v", payload["privacy"])
	}

	props, _ := payload["properties"].(map[string]any)
	if props == nil {
		t.Fatal("missing properties")
	}
	if props["max_participants"] != float64(2) {
		t.Errorf("max_participants = %v", props["max_participants"])
	}
	if props["exp"] != float64(1700000000+3600) {
		t.Errorf("exp = %v", props["exp"])
	}
	if props["enable_chat"] != false {
		t.Errorf("enable_chat = %v", props["enable_chat"])
	}
}

func TestCreateRoomUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid-request"}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	if _, err := c.CreateRoom(context.Background(), "x"); err == nil {
		t.Error("expected error")
	}
}

func TestCreateMeetingToken(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meeting-tokens" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte(`{"token":"tok-123"}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	token, err := c.CreateMeetingToken(context.Background(), "voice-abc")
	if err != nil {
		t.Fatalf("CreateMeetingToken: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q", token)
	}

	props, _ := payload["properties"].(map[string]any)
	if props == nil {
		t.Fatal("missing properties")
	}
	if props["room_name"] != "voice-abc" {
		t.Errorf("room_name = %v", props["room_name"])
	}
	if props["is_owner"] != true {
		t.Errorf("is_owner = %v", props["is_owner"])
	}
}

func TestCreateMeetingTokenEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	if _, err := c.CreateMeetingToken(context.Background(), "r"); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestDeleteRoom(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{"deleted":true}`))
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	if err := c.DeleteRoom(context.Background(), "voice-abc"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q", gotMethod)
	}
	if gotPath != "/rooms/voice-abc" {
		t.Errorf("path = %q", gotPath)
	}
}

// A room already gone should not surface as an error.
func TestDeleteRoomNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	if err := c.DeleteRoom(context.Background(), "gone"); err != nil {
		t.Errorf("DeleteRoom: %v", err)
	}
}

func TestDeleteRoomServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClientWithBaseURL("k", server.URL)
	if err := c.DeleteRoom(context.Background(), "r"); err == nil {
		t.Error("expected error")
	}
}
