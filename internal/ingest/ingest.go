// Package ingest turns raw sources (URLs, uploaded file payloads) into
// clean (source_id, title, text) records ready for chunking.
package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/domain"
)

// Record is an extracted source document.
type Record struct {
	SourceID string
	Title    string
	Text     string
	Type     domain.SourceType
}

const (
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	minLineChars = 10
)

var (
	// block elements whose content is noise, not copy
	dropBlockRe = regexp.MustCompile(`(?is)<(script|style|nav|footer|header|aside|iframe|noscript)[^>]*>.*?</\s*(?:script|style|nav|footer|header|aside|iframe|noscript)\s*>`)
	tagRe       = regexp.MustCompile(`(?s)<[^>]*>`)
	titleRe     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	spaceRe     = regexp.MustCompile(`[ \t]+`)
)

// WebFetcher scrapes a URL into a Record.
type WebFetcher struct {
	client  *http.Client
	maxText int
	log     *zap.Logger
}

func NewWebFetcher(timeout time.Duration, maxText int, log *zap.Logger) *WebFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if maxText <= 0 {
		maxText = 15000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebFetcher{client: &http.Client{Timeout: timeout}, maxText: maxText, log: log}
}

// FromURL fetches the page and extracts readable text. The URL itself is
// the source identifier.
func (f *WebFetcher) FromURL(ctx context.Context, url string) (Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Record{}, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Record{}, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", url, err)
	}

	page := string(raw)
	title := extractTitle(page, url)
	text := ExtractText(page)
	if text == "" {
		return Record{}, fmt.Errorf("no readable content at %s", url)
	}
	if runes := []rune(text); len(runes) > f.maxText {
		text = string(runes[:f.maxText])
	}
	f.log.Info("scraped url",
		zap.String("source_id", url),
		zap.Int("text_len", len(text)))
	return Record{SourceID: url, Title: title, Text: text, Type: domain.SourceWeb}, nil
}

// FromFile wraps an already-extracted file payload. The source identifier
// is derived from the content and name, so re-uploading the same file is
// recognised as a duplicate.
func FromFile(name, content string, maxText int) (Record, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Record{}, errors.New("file has no content after extraction")
	}
	if maxText > 0 {
		if runes := []rune(content); len(runes) > maxText {
			content = string(runes[:maxText])
		}
	}
	if name == "" {
		name = "uploaded file"
	}
	sum := sha1.Sum([]byte(content + name))
	return Record{
		SourceID: "file_" + hex.EncodeToString(sum[:8]),
		Title:    name,
		Text:     content,
		Type:     domain.SourceFile,
	}, nil
}

// ExtractText strips markup and noise blocks from HTML, decodes entities
// and drops lines too short to carry content.
func ExtractText(page string) string {
	cleaned := dropBlockRe.ReplaceAllString(page, " ")
	cleaned = tagRe.ReplaceAllString(cleaned, " ")
	cleaned = html.UnescapeString(cleaned)

	var lines []string
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if len(line) > minLineChars {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, " ")
}

func extractTitle(page, fallback string) string {
	if m := titleRe.FindStringSubmatch(page); m != nil {
		title := strings.TrimSpace(html.UnescapeString(m[1]))
		if title != "" {
			return title
		}
	}
	return fallback
}
