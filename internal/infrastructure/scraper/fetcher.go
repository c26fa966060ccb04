package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"MindMapService/internal/domain"
	"MindMapService/internal/ports"
)

// Options bounds a single acquisition run.
type Options struct {
	Timeout          time.Duration
	MaxContentLength int
	Delay            time.Duration
	Concurrency      int
	UserAgent        string
	MaxBodyBytes     int64
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = 5000
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.UserAgent == "" {
		o.UserAgent = "MindMapService/1.0"
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 5 << 20
	}
	return o
}

// Fetcher downloads reading-list pages and extracts their readable text.
type Fetcher struct {
	client  *http.Client
	options Options
	logger  *slog.Logger
	metrics ports.FetchObserver
}

var _ ports.LimitedFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; a nil client gets a default one.
func NewFetcher(client *http.Client, options Options, log *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{client: client, options: options.withDefaults(), logger: log}
}

// WithObserver reports each fetch outcome to obs.
func (f *Fetcher) WithObserver(obs ports.FetchObserver) *Fetcher {
	f.metrics = obs
	return f
}

// Options returns the effective options.
func (f *Fetcher) Options() Options {
	return f.options
}

// FetchAll fetches every record with a bounded worker pool. Per-record failures are recorded
// in the result's skipped list; only context cancellation of the whole run is returned.
func (f *Fetcher) FetchAll(ctx context.Context, records []domain.SourceRecord) (domain.AcquisitionResult, error) {
	var (
		mu     sync.Mutex
		result = domain.AcquisitionResult{
			Contents: make([]domain.ScrapedContent, 0, len(records)),
			Skipped:  make([]domain.SkippedSource, 0),
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.options.Concurrency)

	for i, record := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			f.debug("fetch", "index", i+1, "total", len(records), "url", record.URL)

			content, err := f.Fetch(gctx, record)

			mu.Lock()
			if err != nil {
				result.Skipped = append(result.Skipped, domain.SkippedSource{Source: record, Reason: reason(err)})
			} else {
				result.Contents = append(result.Contents, content)
			}
			mu.Unlock()

			f.observe(err)
			if err != nil {
				f.debug("fetch failed", "url", record.URL, "error", err)
			}

			return f.pause(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("fetch all: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("fetch all: %w", err)
	}

	f.debug("acquisition done", "scraped", len(result.Contents), "skipped", len(result.Skipped))
	return result, nil
}

// FetchAllWithin is FetchAll with limits applied over the configured options.
func (f *Fetcher) FetchAllWithin(ctx context.Context, records []domain.SourceRecord, limits ports.FetchLimits) (domain.AcquisitionResult, error) {
	tuned := *f
	if limits.Timeout > 0 {
		tuned.options.Timeout = limits.Timeout
	}
	if limits.MaxContentLength > 0 {
		tuned.options.MaxContentLength = limits.MaxContentLength
	}
	if limits.Delay != nil && *limits.Delay >= 0 {
		tuned.options.Delay = *limits.Delay
	}
	return tuned.FetchAll(ctx, records)
}

// Fetch retrieves and extracts one record. Errors are always *domain.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, record domain.SourceRecord) (domain.ScrapedContent, error) {
	parsed, err := url.Parse(record.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return domain.ScrapedContent{}, &domain.FetchError{URL: record.URL, Reason: "invalid url", Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.options.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, record.URL, nil)
	if err != nil {
		return domain.ScrapedContent{}, &domain.FetchError{URL: record.URL, Reason: "build request", Err: err}
	}
	req.Header.Set("User-Agent", f.options.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ScrapedContent{}, &domain.FetchError{URL: record.URL, Reason: "timeout", Err: err}
		}
		return domain.ScrapedContent{}, &domain.FetchError{URL: record.URL, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.ScrapedContent{}, &domain.FetchError{URL: record.URL, Reason: "http status " + resp.Status}
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	body, err := charset.NewReader(io.LimitReader(resp.Body, f.options.MaxBodyBytes), contentType)
	if err != nil {
		return domain.ScrapedContent{}, &domain.FetchError{URL: record.URL, Reason: "decode charset", Err: err}
	}

	var text string
	switch {
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			return domain.ScrapedContent{}, &domain.FetchError{URL: record.URL, Reason: "parse document", Err: err}
		}
		text = ExtractText(doc)
	case mediaType == "text/plain":
		raw, err := io.ReadAll(body)
		if err != nil {
			return domain.ScrapedContent{}, &domain.FetchError{URL: record.URL, Reason: "read body", Err: err}
		}
		text = CleanText(string(raw))
	default:
		return domain.ScrapedContent{}, &domain.FetchError{URL: record.URL, Reason: "unsupported content type " + mediaType}
	}

	text = Truncate(text, f.options.MaxContentLength)
	if text == "" {
		return domain.ScrapedContent{}, &domain.FetchError{URL: record.URL, Reason: "empty content"}
	}

	return domain.ScrapedContent{
		Source: record,
		Text:   text,
		Length: len([]rune(text)),
	}, nil
}

// pause applies the politeness delay for the worker that just finished a request.
func (f *Fetcher) pause(ctx context.Context) error {
	if f.options.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(f.options.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (f *Fetcher) observe(err error) {
	if f.metrics == nil {
		return
	}
	if err != nil {
		f.metrics.FetchCompleted(false)
		return
	}
	f.metrics.FetchCompleted(true)
}

func reason(err error) string {
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.Err != nil {
			return fmt.Sprintf("%s: %v", fetchErr.Reason, fetchErr.Err)
		}
		return fetchErr.Reason
	}
	return strings.TrimSpace(err.Error())
}

func (f *Fetcher) debug(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
