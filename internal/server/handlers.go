package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"MindMapService/internal/domain"
	"MindMapService/internal/embedder"
	"MindMapService/internal/infrastructure/readinglist"
	"MindMapService/internal/ports"
	"MindMapService/internal/usecase"
)

type recordPayload struct {
	Title     string `json:"title"`
	URL       string `json:"url" validate:"required,url"`
	DateAdded string `json:"date_added" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type processRequest struct {
	Records []recordPayload  `json:"records" validate:"omitempty,dive"`
	Options *usecase.Options `json:"options"`
}

type processResponse struct {
	MindMap           domain.Snapshot          `json:"mindmap"`
	ProcessingSummary domain.ProcessingSummary `json:"processing_summary"`
}

type scrapeRequest struct {
	URLs    []string       `json:"urls" validate:"required,min=1,dive,required,url"`
	Options *scrapeOptions `json:"options"`
}

type scrapeOptions struct {
	MaxContentLength int `json:"max_content_length" validate:"gte=0"`
	// Timeout and Delay are in seconds.
	Timeout float64  `json:"timeout" validate:"gte=0"`
	Delay   *float64 `json:"delay" validate:"omitempty,gte=0"`
	// IncludeMetadata is accepted for compatibility; results always carry their source record.
	IncludeMetadata *bool `json:"include_metadata"`
}

func (o *scrapeOptions) limits() ports.FetchLimits {
	if o == nil {
		return ports.FetchLimits{}
	}
	limits := ports.FetchLimits{
		Timeout:          seconds(o.Timeout),
		MaxContentLength: o.MaxContentLength,
	}
	if o.Delay != nil {
		delay := seconds(*o.Delay)
		limits.Delay = &delay
	}
	return limits
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

type scrapeResponse struct {
	Results      []domain.ScrapedContent `json:"results"`
	Skipped      []domain.SkippedSource  `json:"skipped"`
	TotalScraped int                     `json:"total_scraped"`
	TotalFailed  int                     `json:"total_failed"`
}

type embeddingsRequest struct {
	Content []string          `json:"content" validate:"required,min=1"`
	Options *embeddingOptions `json:"options"`
}

type embeddingOptions struct {
	// Model names a registered backend or the model one serves.
	Model     string `json:"model"`
	BatchSize int    `json:"batch_size" validate:"gte=0"`
	Normalize *bool  `json:"normalize"`
}

type embeddingsResponse struct {
	Embeddings         [][]float64 `json:"embeddings"`
	Backend            string      `json:"backend"`
	Model              string      `json:"model"`
	TotalEmbeddings    int         `json:"total_embeddings"`
	EmbeddingDimension int         `json:"embedding_dimension"`
}

type itemMetadata struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type createRequest struct {
	Embeddings [][]float64      `json:"embeddings" validate:"required,min=1,dive,min=1"`
	Metadata   []itemMetadata   `json:"metadata" validate:"required"`
	Options    *usecase.Options `json:"options"`
}

type modelsResponse struct {
	AvailableModels []embedder.Info `json:"available_models"`
	Active          embedder.Info   `json:"active"`
}

type readingListResponse struct {
	Entries    []domain.SourceRecord `json:"entries"`
	TotalCount int                   `json:"total_count"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	components := s.components
	if components == nil {
		components = map[string]string{}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Components: components})
}

func (s *Server) models(w http.ResponseWriter, _ *http.Request) {
	resp := modelsResponse{AvailableModels: []embedder.Info{}}
	if s.registry != nil {
		resp.AvailableModels = s.registry.Available()
	}
	if s.pipeline != nil && s.pipeline.Backend() != nil {
		resp.Active = s.pipeline.Backend().Info()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readingList(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		s.writeError(w, r, fmt.Errorf("reading list source is not configured"))
		return
	}
	records, err := s.source.Records(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readingListResponse{Entries: records, TotalCount: len(records)})
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	records := make([]domain.SourceRecord, len(req.URLs))
	for i, u := range req.URLs {
		records[i] = domain.SourceRecord{Title: u, URL: u}
	}

	res, err := s.pipeline.ScrapeWithin(r.Context(), records, req.Options.limits())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := scrapeResponse{
		Results:      res.Contents,
		Skipped:      res.Skipped,
		TotalScraped: len(res.Contents),
		TotalFailed:  len(res.Skipped),
	}
	if resp.Results == nil {
		resp.Results = []domain.ScrapedContent{}
	}
	if resp.Skipped == nil {
		resp.Skipped = []domain.SkippedSource{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) embeddings(w http.ResponseWriter, r *http.Request) {
	var req embeddingsRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := s.embedOptions(req.Options)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	vectors, err := s.pipeline.EmbedWith(r.Context(), req.Content, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	backend := opts.Backend
	if backend == nil {
		backend = s.pipeline.Backend()
	}
	info := backend.Info()
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	writeJSON(w, http.StatusOK, embeddingsResponse{
		Embeddings:         vectors,
		Backend:            info.Name,
		Model:              info.Model,
		TotalEmbeddings:    len(vectors),
		EmbeddingDimension: dim,
	})
}

func (s *Server) embedOptions(o *embeddingOptions) (usecase.EmbedOptions, error) {
	if o == nil {
		return usecase.EmbedOptions{}, nil
	}
	opts := usecase.EmbedOptions{BatchSize: o.BatchSize, Normalize: o.Normalize}
	if o.Model == "" {
		return opts, nil
	}
	if s.registry == nil {
		return opts, fmt.Errorf("%w: unknown embedding model %q", domain.ErrInvalidInput, o.Model)
	}
	backend, err := s.registry.ResolveModel(o.Model)
	if err != nil {
		return opts, fmt.Errorf("%w: unknown embedding model %q", domain.ErrInvalidInput, o.Model)
	}
	opts.Backend = backend
	return opts, nil
}

func (s *Server) createMindMap(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Metadata) != len(req.Embeddings) {
		s.writeError(w, r, fmt.Errorf("%w: %d metadata entries for %d embeddings", domain.ErrInvalidInput, len(req.Metadata), len(req.Embeddings)))
		return
	}

	items := make([]usecase.Item, len(req.Embeddings))
	for i, vec := range req.Embeddings {
		meta := req.Metadata[i]
		items[i] = usecase.Item{
			Record: domain.SourceRecord{Title: meta.Title, URL: meta.URL},
			Text:   meta.Content,
			Vector: vec,
		}
	}

	snapshot, err := s.pipeline.Build(r.Context(), items, options(req.Options))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshot)
}

func (s *Server) processMindMap(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := s.decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, err)
		return
	}

	var (
		res usecase.Result
		err error
	)
	if len(req.Records) == 0 {
		res, err = s.pipeline.ProcessSource(r.Context(), options(req.Options))
	} else {
		res, err = s.pipeline.Process(r.Context(), toRecords(req.Records), options(req.Options))
	}
	if errors.Is(err, domain.ErrNoContent) {
		status, label := statusFor(err)
		summary := res.Summary
		writeJSON(w, status, errorResponse{Error: label, Detail: err.Error(), ProcessingSummary: &summary})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, processResponse{MindMap: res.Snapshot, ProcessingSummary: res.Summary})
}

func (s *Server) latestMindMap(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.store.Latest(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) getMindMap(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.store.Get(r.Context(), chi.URLParam(r, "mindmapID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) deleteMindMap(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "mindmapID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into dst and validates it. An empty body yields io.EOF.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if verr := s.validate.Struct(dst); verr != nil {
				return verr
			}
			return io.EOF
		}
		return badRequest{err: fmt.Errorf("decode request body: %w", err)}
	}
	return s.validate.Struct(dst)
}

func options(opts *usecase.Options) usecase.Options {
	if opts == nil {
		return usecase.Options{}
	}
	return *opts
}

func toRecords(payload []recordPayload) []domain.SourceRecord {
	records := make([]domain.SourceRecord, len(payload))
	for i, p := range payload {
		var added time.Time
		if p.DateAdded != "" {
			added, _ = time.Parse(time.RFC3339, p.DateAdded)
		}
		records[i] = domain.SourceRecord{
			Title:   readinglist.NormalizeTitle(p.Title, p.URL),
			URL:     p.URL,
			AddedAt: added.UTC(),
		}
	}
	return records
}
