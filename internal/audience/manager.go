// Package audience provides cached access to audience user records and
// the compact profile summaries injected into the coach system prompt.
package audience

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/innerpath/coachd/internal/storage"
)

// UserStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type UserStore interface {
	GetAudienceUser(id string) (storage.AudienceUser, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cachedUser struct {
	user     storage.AudienceUser
	cachedAt time.Time
}

// Manager caches audience user lookups on the chat hot path so each turn
// doesn't hit SQLite for an effectively static record.
type Manager struct {
	store UserStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cachedUser
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store UserStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store UserStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]cachedUser),
	}
}

// Get returns the audience user, from cache when fresh.
func (m *Manager) Get(id string) (storage.AudienceUser, error) {
	m.mu.RLock()
	entry, ok := m.cache[id]
	m.mu.RUnlock()
	if ok && m.clock.Now().Before(entry.cachedAt.Add(m.ttl)) {
		return entry.user, nil
	}

	user, err := m.store.GetAudienceUser(id)
	if err != nil {
		return storage.AudienceUser{}, err
	}

	m.mu.Lock()
	m.cache[id] = cachedUser{user: user, cachedAt: m.clock.Now()}
	m.mu.Unlock()
	return user, nil
}

// Invalidate drops the cached entry after an admin update.
func (m *Manager) Invalidate(id string) {
	m.mu.Lock()
	delete(m.cache, id)
	m.mu.Unlock()
}

// maxSummaryChars caps the summary to stay under ~500 tokens (4 chars/token).
const maxSummaryChars = 2000

// Summary returns a compact description of the user suitable for injection
// into the system prompt. Unknown users yield an empty summary rather than
// an error so the chat path never fails on profile lookup.
func (m *Manager) Summary(id string) (string, error) {
	if id == "" {
		return "", nil
	}
	user, err := m.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading audience user %q: %w", id, err)
	}
	return summarize(user), nil
}

func summarize(u storage.AudienceUser) string {
	var parts []string

	if u.Name != "" {
		parts = append(parts, fmt.Sprintf("You are coaching %s.", u.Name))
	}
	if u.Goals != "" {
		parts = append(parts, fmt.Sprintf("Their stated goals: %s.", strings.TrimRight(u.Goals, ".")))
	}
	if u.PreferredLanguage != "" {
		parts = append(parts, fmt.Sprintf("They usually prefer to speak %s.", u.PreferredLanguage))
	}

	if len(parts) == 0 {
		return ""
	}

	summary := strings.Join(parts, " ")
	if len(summary) > maxSummaryChars {
		// Ensure we don't split a multi-byte UTF-8 character.
		end := maxSummaryChars
		for end > 0 && !utf8.RuneStart(summary[end]) {
			end--
		}
		if idx := strings.LastIndex(summary[:end], " "); idx > 0 {
			summary = summary[:idx]
		} else {
			summary = summary[:end]
		}
	}
	return summary
}
