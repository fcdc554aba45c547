package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/innerpath/coachd/internal/scrape"
	"github.com/innerpath/coachd/internal/storage"
)

const (
	maxURLFetchSize = 5 << 20 // 5MB
	urlFetchTimeout = 10 * time.Second
)

// ActorRunner runs a scrape actor and returns its dataset items.
// Implemented by scrape.Client.
type ActorRunner interface {
	RunActor(ctx context.Context, actorID string, input map[string]any) ([]scrape.Item, error)
}

// Extractor turns a content source into plain text according to its type.
type Extractor struct {
	httpClient  *http.Client
	scraper     ActorRunner // optional; nil disables scrape sources
	scrapeActor string
}

// NewExtractor creates an Extractor. scraper may be nil when no scrape API
// token is configured; scrape sources then fail with a clear error.
func NewExtractor(httpClient *http.Client, scraper ActorRunner, scrapeActor string) *Extractor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: urlFetchTimeout}
	}
	return &Extractor{httpClient: httpClient, scraper: scraper, scrapeActor: scrapeActor}
}

// Extract resolves the source's text content. Text sources are returned
// as-is; URL sources are fetched and stripped of markup; PDF sources are
// decoded from base64 and parsed; scrape sources run the configured actor.
func (e *Extractor) Extract(ctx context.Context, src storage.ContentSource) (string, error) {
	switch src.Type {
	case "", "text":
		return src.Content, nil
	case "url":
		return e.extractURL(ctx, src.URL)
	case "pdf":
		return extractPDF(src.Content)
	case "scrape":
		return e.extractScrape(ctx, src.URL)
	default:
		return "", fmt.Errorf("unknown source type %q", src.Type)
	}
}

func (e *Extractor) extractURL(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("url source has no url")
	}

	ctx, cancel := context.WithTimeout(ctx, urlFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("url returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxURLFetchSize))
	if err != nil {
		return "", fmt.Errorf("reading url response: %w", err)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return htmlToText(body)
	}
	return string(body), nil
}

// htmlToText walks the parsed document collecting text nodes, skipping
// script and style subtrees.
func htmlToText(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.TrimSpace(sb.String()), nil
}

// extractPDF decodes the base64-encoded document and pulls its plain text.
func extractPDF(content string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", fmt.Errorf("decoding pdf content: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, textReader); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return sb.String(), nil
}

func (e *Extractor) extractScrape(ctx context.Context, rawURL string) (string, error) {
	if e.scraper == nil {
		return "", fmt.Errorf("scrape sources disabled: no scrape API token configured")
	}
	if rawURL == "" {
		return "", fmt.Errorf("scrape source has no url")
	}

	items, err := e.scraper.RunActor(ctx, e.scrapeActor, map[string]any{
		"startUrls": []map[string]string{{"url": rawURL}},
	})
	if err != nil {
		return "", fmt.Errorf("running scrape actor: %w", err)
	}

	var parts []string
	for _, item := range items {
		if item.Text == "" {
			continue
		}
		if item.Title != "" {
			parts = append(parts, item.Title+"\n"+item.Text)
		} else {
			parts = append(parts, item.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("scrape actor returned no text items")
	}
	return strings.Join(parts, "\n\n"), nil
}
