package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/formbridge"
	"github.com/aretw0/formbridge/internal/logging"
	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/mapping"
	"github.com/aretw0/formbridge/pkg/session"
)

// maxBodyBytes bounds request bodies; form payloads are small.
const maxBodyBytes = 1 << 20

// Bridge defines what the HTTP surface needs from the formbridge facade.
type Bridge interface {
	Mappings(ctx context.Context) ([]string, error)
	Definition(ctx context.Context, name string) (domain.MappingDefinition, error)
	Preview(ctx context.Context, name string, data domain.FormData, audit domain.Audit) (*mapping.Batch, error)
	Submit(ctx context.Context, req formbridge.SubmitRequest) (*formbridge.SubmitResult, error)
	All(data domain.FormData) ([]domain.Parameter, error)
	Sessions() *session.Manager
	Watch(ctx context.Context) (<-chan struct{}, error)
}

var _ Bridge = (*formbridge.Bridge)(nil)

// Server holds the HTTP handlers.
type Server struct {
	Bridge   Bridge
	Streams  *StreamManager
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
}

// Option configures the handler.
type Option func(*Server)

// WithStreams shares a StreamManager, typically one whose Publish was passed
// to session.WithOnChange so draft edits reach SSE clients.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithLogger configures a logger for the handlers.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// WithGatherer sets the registry exposed at /metrics. Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.Gatherer = g
	}
}

// NewHandler creates a new HTTP handler for the bridge.
func NewHandler(bridge Bridge, opts ...Option) http.Handler {
	s := &Server{
		Bridge:   bridge,
		Logger:   logging.NewNop(),
		Gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.Logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/events", s.SubscribeEvents)
	r.Get("/reloads", s.SubscribeReloads)

	r.Route("/mappings", func(r chi.Router) {
		r.Get("/", s.ListMappings)
		r.Get("/{name}", s.GetMapping)
		r.Post("/{name}/preview", s.PreviewParameters)
		r.Post("/{name}/submit", s.SubmitForm)
	})
	r.Post("/parameters", s.AllParameters)

	r.Route("/drafts", func(r chi.Router) {
		r.Get("/", s.ListDrafts)
		r.Get("/{id}", s.GetDraft)
		r.Put("/{id}", s.SaveDraft)
		r.Patch("/{id}", s.PatchDraft)
		r.Delete("/{id}", s.DeleteDraft)
		r.Post("/{id}/submit", s.SubmitDraft)
		r.Get("/{id}/events", s.SubscribeDraftEvents)
	})

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>formbridge API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// decode reads a JSON body. Numbers are kept as json.Number so integer form
// values are not turned into floats.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}

type formRequest struct {
	Data  domain.FormData `json:"data"`
	Audit domain.Audit    `json:"audit"`
}

type submitRequest struct {
	formRequest
	DraftID    string `json:"draft_id"`
	InstanceID string `json:"instance_id"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "formbridge-http",
		"version":     formbridge.Version,
		"api_version": apiVersion,
	})
}

// ListMappings handles the GET /mappings request.
func (s *Server) ListMappings(w http.ResponseWriter, r *http.Request) {
	names, err := s.Bridge.Mappings(r.Context())
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"mappings": names})
}

// GetMapping handles the GET /mappings/{name} request.
func (s *Server) GetMapping(w http.ResponseWriter, r *http.Request) {
	def, err := s.Bridge.Definition(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// PreviewParameters handles the POST /mappings/{name}/preview request.
func (s *Server) PreviewParameters(w http.ResponseWriter, r *http.Request) {
	var body formRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	batch, err := s.Bridge.Preview(r.Context(), chi.URLParam(r, "name"), body.Data, body.Audit)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// SubmitForm handles the POST /mappings/{name}/submit request.
func (s *Server) SubmitForm(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	s.submit(w, r, formbridge.SubmitRequest{
		Mapping:    chi.URLParam(r, "name"),
		Data:       body.Data,
		DraftID:    body.DraftID,
		InstanceID: body.InstanceID,
		Audit:      body.Audit,
	})
}

// SubmitDraft handles the POST /drafts/{id}/submit request.
func (s *Server) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	var body formRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	s.submit(w, r, formbridge.SubmitRequest{DraftID: chi.URLParam(r, "id"), Audit: body.Audit})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req formbridge.SubmitRequest) {
	res, err := s.Bridge.Submit(r.Context(), req)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AllParameters handles the POST /parameters request.
func (s *Server) AllParameters(w http.ResponseWriter, r *http.Request) {
	var body formRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	params, err := s.Bridge.All(body.Data)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Parameter{"parameters": params})
}

// ListDrafts handles the GET /drafts request.
func (s *Server) ListDrafts(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Bridge.Sessions().List(r.Context())
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"drafts": ids})
}

// GetDraft handles the GET /drafts/{id} request.
func (s *Server) GetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.Bridge.Sessions().Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// SaveDraft handles the PUT /drafts/{id} request. The body replaces the draft;
// its version is assigned by the server.
func (s *Server) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var draft domain.Draft
	if err := decode(r, &draft); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	draft.ID = chi.URLParam(r, "id")
	if draft.Data == nil {
		draft.Data = make(domain.FormData)
	}

	sessions := s.Bridge.Sessions()
	if _, err := sessions.Save(r.Context(), &draft); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	saved, err := sessions.Load(r.Context(), draft.ID)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// PatchDraft handles the PATCH /drafts/{id} request. Null values remove fields.
func (s *Server) PatchDraft(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := decode(r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	draft, _, err := s.Bridge.Sessions().Patch(r.Context(), chi.URLParam(r, "id"), body.Data)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// DeleteDraft handles the DELETE /drafts/{id} request.
func (s *Server) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.Bridge.Sessions().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// SubscribeReloads handles the GET /reloads request (SSE): one "reload" event per
// mapping definition change.
func (s *Server) SubscribeReloads(w http.ResponseWriter, r *http.Request) {
	events, err := s.Bridge.Watch(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Watch error: %v", err), http.StatusNotImplemented)
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: reload\n\n")
			flusher.Flush()
		}
	}
}

// SubscribeEvents handles the GET /events request (SSE): the diffs of every draft.
// The optional watch query filters them as in SubscribeDraftEvents.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	ch, cancel := s.Streams.SubscribeAll()
	defer cancel()
	s.Logger.Info("SSE: Subscribing to all draft updates")

	s.streamDiffs(w, r, flusher, ch, parseWatch(r))
}

// SubscribeDraftEvents handles the GET /drafts/{id}/events request (SSE).
// The optional watch query lists field names; "instance" matches instance binding changes.
func (s *Server) SubscribeDraftEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	draftID := chi.URLParam(r, "id")
	s.Logger.Info("SSE: Subscribing to draft updates", "draft_id", draftID)

	ch, cancel := s.Streams.Subscribe(draftID)
	defer cancel()

	s.streamDiffs(w, r, flusher, ch, parseWatch(r))
}

func parseWatch(r *http.Request) []string {
	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		for _, f := range strings.Split(watch, ",") {
			if f = strings.TrimSpace(f); f != "" {
				watchList = append(watchList, f)
			}
		}
	}
	return watchList
}

func (s *Server) streamDiffs(w http.ResponseWriter, r *http.Request, flusher http.Flusher, ch <-chan string, watchList []string) {
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.Logger.Info("SSE: Client disconnected", "path", r.URL.Path)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !matchesWatch(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// matchesWatch reports whether the encoded diff touches any watched field.
// Undecodable messages are passed through.
func matchesWatch(msg string, watchList []string) bool {
	var diff domain.DraftDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range watchList {
		if field == "instance" {
			if diff.InstanceID != nil {
				return true
			}
			continue
		}
		if _, ok := diff.Data[field]; ok {
			return true
		}
	}
	return false
}
