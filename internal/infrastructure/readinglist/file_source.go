package readinglist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"MindMapService/internal/domain"
	"MindMapService/internal/ports"
)

// entry mirrors one object of the exported reading_list.json.
type entry struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	DateAdded string `json:"date_added"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FileSource implements RecordSource over the bookmark exporter's JSON file.
type FileSource struct {
	path   string
	logger *slog.Logger
}

var _ ports.RecordSource = (*FileSource)(nil)

// NewFileSource reads records from path on every call.
func NewFileSource(path string, log *slog.Logger) *FileSource {
	return &FileSource{path: path, logger: log}
}

// Path is the file the source reads.
func (s *FileSource) Path() string {
	return s.path
}

// Records loads and normalises the reading list. Entries without a URL are dropped.
func (s *FileSource) Records(ctx context.Context) ([]domain.SourceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read reading list %s: %w", s.path, err)
	}
	records, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse reading list %s: %w", s.path, err)
	}
	s.debug("reading list loaded", "path", s.path, "records", len(records))
	return records, nil
}

// Parse decodes the exporter format.
func Parse(raw []byte) ([]domain.SourceRecord, error) {
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	records := make([]domain.SourceRecord, 0, len(entries))
	for _, e := range entries {
		link := strings.TrimSpace(e.URL)
		if link == "" {
			continue
		}
		records = append(records, domain.SourceRecord{
			Title:   NormalizeTitle(e.Title, link),
			URL:     link,
			AddedAt: parseDate(e.DateAdded),
		})
	}
	return records, nil
}

// NormalizeTitle repairs titles that the browser stored as the bare URL. Substack posts get
// a title derived from their slug; anything else falls back to the URL.
func NormalizeTitle(title, link string) string {
	title = strings.TrimSpace(title)
	if title != "" && !strings.HasPrefix(title, "http") {
		return title
	}
	if u, err := url.Parse(link); err == nil && strings.Contains(u.Hostname(), "substack.com") {
		if derived := substackTitle(u); derived != "" {
			return derived
		}
	}
	if title != "" {
		return title
	}
	return link
}

func substackTitle(u *url.URL) string {
	var segments []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	slug := ""
	if idx := indexOf(segments, "p"); idx >= 0 {
		if idx+1 < len(segments) {
			slug = segments[idx+1]
		}
	} else if len(segments) > 0 {
		slug = segments[len(segments)-1]
	}
	if slug == "" {
		return ""
	}
	if unescaped, err := url.PathUnescape(slug); err == nil {
		slug = unescaped
	}
	readable := titleWords(strings.TrimSpace(strings.ReplaceAll(slug, "-", " ")))
	if readable == "" {
		return ""
	}

	publication := ""
	host := u.Hostname()
	if strings.HasSuffix(host, ".substack.com") {
		publication = strings.TrimSuffix(host, ".substack.com")
	} else if idx := indexOf(segments, "pub"); idx >= 0 && idx+1 < len(segments) {
		publication = segments[idx+1]
	}
	if publication != "" {
		return publication + ": " + readable
	}
	return readable
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func indexOf(items []string, want string) int {
	for i, item := range items {
		if item == want {
			return i
		}
	}
	return -1
}

func parseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (s *FileSource) debug(msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Debug(msg, args...)
}
