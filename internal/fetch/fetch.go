// Package fetch downloads web pages and extracts readable text for the
// web_fetch tool provider. Navigation, scripts, and other boilerplate
// are stripped; the result is truncated to a character budget so tool
// responses stay a manageable size for the model.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/reevelabs/reeve-agent/internal/httpkit"
	"github.com/reevelabs/reeve-agent/internal/tools"
)

const (
	defaultTimeout = 30 * time.Second

	// DefaultMaxBytes caps the downloaded body size (5 MB).
	DefaultMaxBytes int64 = 5 << 20

	// DefaultMaxChars is the default character budget for extracted text.
	DefaultMaxChars = 50000
)

// Result holds the fetched and extracted content of a URL. Non-2xx
// responses are reported through StatusCode rather than as errors, so
// the model sees what happened and can adjust.
type Result struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	Length      int    `json:"length"`
	StatusCode  int    `json:"status_code"`
}

// Fetcher downloads pages and extracts their readable content.
type Fetcher struct {
	client   *http.Client
	logger   *slog.Logger
	maxBytes int64
	maxChars int
}

// New creates a Fetcher. maxChars is the default character budget for
// extracted text; values <= 0 fall back to DefaultMaxChars.
func New(maxChars int, logger *slog.Logger) *Fetcher {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   httpkit.NewClient(httpkit.WithTimeout(defaultTimeout)),
		logger:   logger.With("tool", "web_fetch"),
		maxBytes: DefaultMaxBytes,
		maxChars: maxChars,
	}
}

// Fetch downloads the URL and extracts readable text. maxChars
// overrides the fetcher's budget when > 0.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Result, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	if maxChars <= 0 {
		maxChars = f.maxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	f.logger.Debug("fetched page",
		"url", rawURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"conversation_id", tools.ConversationIDFromContext(ctx))

	var title, content string
	switch {
	case isHTML(contentType):
		title, content = extract(string(body))
	case isPlainText(contentType):
		content = string(body)
	case utf8.Valid(body):
		content = string(body)
	default:
		return &Result{
			URL:         rawURL,
			Content:     fmt.Sprintf("binary content (%s), %d bytes", contentType, len(body)),
			ContentType: contentType,
			Length:      len(body),
			StatusCode:  resp.StatusCode,
		}, nil
	}

	truncated := false
	if len(content) > maxChars {
		content = truncateRunes(content, maxChars)
		truncated = true
	}

	return &Result{
		URL:         rawURL,
		Title:       title,
		Content:     content,
		ContentType: contentType,
		Truncated:   truncated,
		Length:      len(content),
		StatusCode:  resp.StatusCode,
	}, nil
}

func isHTML(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

func isPlainText(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "text/plain")
}

// truncateRunes cuts a string to at most maxChars runes without
// splitting a multi-byte character.
func truncateRunes(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	count := 0
	for i := range s {
		if count >= maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
