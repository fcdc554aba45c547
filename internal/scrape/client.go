// Package scrape implements the actor-running scrape API client used to
// pull social content (channel transcripts, post text) into the knowledge
// base. The API shape follows the Apify run-sync convention: run an actor
// synchronously and read the produced dataset items.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.apify.com/v2"
	defaultTimeout = 120 * time.Second
)

// Client communicates with the actor-running API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a scrape client with the given API token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Item is one dataset item produced by an actor run. Actors emit
// heterogeneous objects; Text/Title cover the fields ingest cares about
// and Raw preserves the rest.
type Item struct {
	Title string
	Text  string
	Raw   json.RawMessage
}

// RunActor runs the named actor synchronously with the given input and
// returns the dataset items it produced.
func (c *Client) RunActor(ctx context.Context, actorID string, input map[string]any) ([]Item, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshaling actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, url.PathEscape(actorID), url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("running actor %s: %w", actorID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("actor %s returned status %d: %s", actorID, resp.StatusCode, string(respBody))
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding dataset items: %w", err)
	}

	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		items = append(items, decodeItem(r))
	}
	return items, nil
}

// decodeItem pulls the text and title out of an actor item, trying the
// field names the common scraper actors use.
func decodeItem(raw json.RawMessage) Item {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Item{Raw: raw}
	}

	item := Item{Raw: raw}
	for _, key := range []string{"text", "transcript", "caption", "content", "description"} {
		if v, ok := fields[key]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil && s != "" {
				item.Text = s
				break
			}
		}
	}
	for _, key := range []string{"title", "name"} {
		if v, ok := fields[key]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil && s != "" {
				item.Title = s
				break
			}
		}
	}
	return item
}
