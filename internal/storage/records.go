package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Audience Users ---

func (s *Store) SaveAudienceUser(u AudienceUser) error {
	status := u.Status
	if status == "" {
		status = "active"
	}
	now := time.Now().UTC()
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO audience_users (id, email, name, preferred_language, goals, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PreferredLanguage, u.Goals, status,
		createdAt.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetAudienceUser(id string) (AudienceUser, error) {
	var u AudienceUser
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, email, name, preferred_language, goals, status, created_at, updated_at
		FROM audience_users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PreferredLanguage, &u.Goals, &u.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return AudienceUser{}, ErrNotFound
	}
	if err != nil {
		return AudienceUser{}, err
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return AudienceUser{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return AudienceUser{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return u, nil
}

func (s *Store) ListAudienceUsers(limit int) ([]AudienceUser, error) {
	rows, err := s.db.Query(`
		SELECT id, email, name, preferred_language, goals, status, created_at, updated_at
		FROM audience_users ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AudienceUser
	for rows.Next() {
		var u AudienceUser
		var createdAt, updatedAt string
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PreferredLanguage, &u.Goals, &u.Status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if u.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if u.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// UpdateAudienceUser overwrites the mutable fields of an existing user.
func (s *Store) UpdateAudienceUser(u AudienceUser) error {
	res, err := s.db.Exec(`
		UPDATE audience_users
		SET email = ?, name = ?, preferred_language = ?, goals = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		u.Email, u.Name, u.PreferredLanguage, u.Goals, u.Status,
		time.Now().UTC().Format(time.RFC3339), u.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAudienceUser(id string) error {
	res, err := s.db.Exec(`DELETE FROM audience_users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Content Sources ---

func (s *Store) SaveContentSource(src ContentSource) error {
	status := src.Status
	if status == "" {
		status = "pending"
	}
	tags := src.Tags
	if tags == "" {
		tags = "[]"
	}
	createdAt := src.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO content_sources (id, title, type, url, content, status, error, tags, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Title, src.Type, src.URL, src.Content, status, src.Error,
		tags, src.ChunkCount, createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetContentSource(id string) (ContentSource, error) {
	var src ContentSource
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, title, type, url, content, status, error, tags, chunk_count, created_at
		FROM content_sources WHERE id = ?`, id,
	).Scan(&src.ID, &src.Title, &src.Type, &src.URL, &src.Content, &src.Status, &src.Error, &src.Tags, &src.ChunkCount, &createdAt)
	if err == sql.ErrNoRows {
		return ContentSource{}, ErrNotFound
	}
	if err != nil {
		return ContentSource{}, err
	}
	if src.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return ContentSource{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return src, nil
}

func (s *Store) ListContentSources(limit int) ([]ContentSource, error) {
	rows, err := s.db.Query(`
		SELECT id, title, type, url, content, status, error, tags, chunk_count, created_at
		FROM content_sources ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ContentSource
	for rows.Next() {
		var src ContentSource
		var createdAt string
		if err := rows.Scan(&src.ID, &src.Title, &src.Type, &src.URL, &src.Content, &src.Status, &src.Error, &src.Tags, &src.ChunkCount, &createdAt); err != nil {
			return nil, err
		}
		if src.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, src)
	}
	return results, rows.Err()
}

// MarkContentSourceReady records a successful ingest with the chunk count.
func (s *Store) MarkContentSourceReady(id string, chunkCount int) error {
	res, err := s.db.Exec(`UPDATE content_sources SET status = 'ready', error = '', chunk_count = ? WHERE id = ?`, chunkCount, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// MarkContentSourceFailed records a permanently failed ingest.
func (s *Store) MarkContentSourceFailed(id string, errMsg string) error {
	res, err := s.db.Exec(`UPDATE content_sources SET status = 'failed', error = ? WHERE id = ?`, errMsg, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *Store) DeleteContentSource(id string) error {
	res, err := s.db.Exec(`DELETE FROM content_sources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// --- Integrations ---

// UpsertIntegration stores OAuth tokens for a provider account. A repeat
// callback for the same provider+account replaces the stored tokens.
func (s *Store) UpsertIntegration(in Integration) error {
	expiresAt := ""
	if !in.ExpiresAt.IsZero() {
		expiresAt = in.ExpiresAt.UTC().Format(time.RFC3339)
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO integrations (id, provider, account_id, access_token, refresh_token, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, account_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at`,
		in.ID, in.Provider, in.AccountID, in.AccessToken, in.RefreshToken,
		expiresAt, createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListIntegrations() ([]Integration, error) {
	rows, err := s.db.Query(`
		SELECT id, provider, account_id, access_token, refresh_token, expires_at, created_at
		FROM integrations ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Integration
	for rows.Next() {
		var in Integration
		var expiresAt, createdAt string
		if err := rows.Scan(&in.ID, &in.Provider, &in.AccountID, &in.AccessToken, &in.RefreshToken, &expiresAt, &createdAt); err != nil {
			return nil, err
		}
		if expiresAt != "" {
			if in.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
				return nil, fmt.Errorf("parsing expires_at: %w", err)
			}
		}
		if in.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, in)
	}
	return results, rows.Err()
}

func (s *Store) DeleteIntegration(id string) error {
	res, err := s.db.Exec(`DELETE FROM integrations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// --- Sessions ---

func (s *Store) SaveSession(sess Session) error {
	status := sess.Status
	if status == "" {
		status = "active"
	}
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, user_id, room_name, room_url, status, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, '')`,
		sess.ID, sess.UserID, sess.RoomName, sess.RoomURL, status,
		createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSession(id string) (Session, error) {
	var sess Session
	var createdAt, endedAt string
	err := s.db.QueryRow(`
		SELECT id, user_id, room_name, room_url, status, created_at, ended_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.RoomName, &sess.RoomURL, &sess.Status, &createdAt, &endedAt)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if endedAt != "" {
		if sess.EndedAt, err = time.Parse(time.RFC3339, endedAt); err != nil {
			return Session{}, fmt.Errorf("parsing ended_at: %w", err)
		}
	}
	return sess, nil
}

func (s *Store) EndSession(id string) error {
	res, err := s.db.Exec(`UPDATE sessions SET status = 'ended', ended_at = ? WHERE id = ? AND status = 'active'`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *Store) ListSessions(limit int) ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, room_name, room_url, status, created_at, ended_at
		FROM sessions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Session
	for rows.Next() {
		var sess Session
		var createdAt, endedAt string
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.RoomName, &sess.RoomURL, &sess.Status, &createdAt, &endedAt); err != nil {
			return nil, err
		}
		if sess.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if endedAt != "" {
			if sess.EndedAt, err = time.Parse(time.RFC3339, endedAt); err != nil {
				return nil, fmt.Errorf("parsing ended_at: %w", err)
			}
		}
		results = append(results, sess)
	}
	return results, rows.Err()
}

// --- Interactions ---

func (s *Store) SaveInteraction(i Interaction) error {
	status := i.Status
	if status == "" {
		status = "completed"
	}
	createdAt := i.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO interactions (id, created_at, user_id, user_query, detected_language, enriched_prompt, model, response, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, createdAt.Format(time.RFC3339), i.UserID, i.UserQuery,
		i.DetectedLanguage, i.EnrichedPrompt, i.Model, i.Response, status,
	)
	return err
}

func (s *Store) GetRecentInteractions(limit int) ([]Interaction, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, user_id, user_query, detected_language, enriched_prompt, model, response, status
		FROM interactions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		var i Interaction
		var createdAt string
		if err := rows.Scan(&i.ID, &createdAt, &i.UserID, &i.UserQuery, &i.DetectedLanguage, &i.EnrichedPrompt, &i.Model, &i.Response, &i.Status); err != nil {
			return nil, err
		}
		if i.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// --- Analytics ---

// GetCounts runs the per-entity count queries backing the analytics endpoint.
func (s *Store) GetCounts() (Counts, error) {
	var c Counts
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM audience_users`, &c.AudienceUsers},
		{`SELECT COUNT(*) FROM content_sources`, &c.ContentSources},
		{`SELECT COUNT(*) FROM content_sources WHERE status = 'ready'`, &c.ReadySources},
		{`SELECT COUNT(*) FROM integrations`, &c.Integrations},
		{`SELECT COUNT(*) FROM sessions`, &c.Sessions},
		{`SELECT COUNT(*) FROM interactions`, &c.Interactions},
		{`SELECT COUNT(*) FROM knowledge_vectors`, &c.Vectors},
	}
	for _, q := range counts {
		if err := s.db.QueryRow(q.query).Scan(q.dst); err != nil {
			return Counts{}, fmt.Errorf("counting: %w", err)
		}
	}
	return c, nil
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
