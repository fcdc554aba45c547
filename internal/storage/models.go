package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// AudienceUser is a member of the coaching audience managed via the admin API.
type AudienceUser struct {
	ID                string
	Email             string
	Name              string
	PreferredLanguage string
	Goals             string // free-form coaching goals
	Status            string // "active", "paused"
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ContentSource is a piece of coach content queued for the knowledge base.
type ContentSource struct {
	ID         string
	Title      string
	Type       string // "text", "url", "pdf", "scrape"
	URL        string
	Content    string
	Status     string // "pending", "ready", "failed"
	Error      string
	Tags       string // JSON array stored as text
	ChunkCount int
	CreatedAt  time.Time
}

// Integration holds OAuth tokens for a connected third-party account.
type Integration struct {
	ID           string
	Provider     string
	AccountID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Session is a voice coaching session bound to a Daily room.
type Session struct {
	ID        string
	UserID    string
	RoomName  string
	RoomURL   string
	Status    string // "active", "ended"
	CreatedAt time.Time
	EndedAt   time.Time
}

// Interaction records one chat turn through the prompt pipeline.
type Interaction struct {
	ID               string
	CreatedAt        time.Time
	UserID           string
	UserQuery        string
	DetectedLanguage string
	EnrichedPrompt   string
	Model            string
	Response         string
	Status           string
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Counts aggregates entity totals for the analytics endpoint.
type Counts struct {
	AudienceUsers  int `json:"audience_users"`
	ContentSources int `json:"content_sources"`
	ReadySources   int `json:"ready_sources"`
	Integrations   int `json:"integrations"`
	Sessions       int `json:"sessions"`
	Interactions   int `json:"interactions"`
	Vectors        int `json:"vectors"`
}
