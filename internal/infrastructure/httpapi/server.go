// Package httpapi exposes the receiver endpoints used by the scraper and
// the tracking poller.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"NoteSalesTracker/internal/domain"
	"NoteSalesTracker/internal/ports"
	"NoteSalesTracker/internal/tracking"
	"NoteSalesTracker/internal/usecase"
)

const maxBodyBytes = 1 << 20

// Deps wires the handlers; Pipeline is optional.
type Deps struct {
	Ingestor *usecase.Ingestor
	Pipeline *usecase.Pipeline
	Store    ports.TableStore
	Source   ports.TableRef
	Location *time.Location
	Clock    ports.Clock
	Logger   *slog.Logger
}

type handler struct {
	ingestor *usecase.Ingestor
	pipeline *usecase.Pipeline
	store    ports.TableStore
	source   ports.TableRef
	location *time.Location
	now      ports.Clock
	logger   *slog.Logger
}

// NewRouter builds the chi router.
func NewRouter(deps Deps) http.Handler {
	h := &handler{
		ingestor: deps.Ingestor,
		pipeline: deps.Pipeline,
		store:    deps.Store,
		source:   deps.Source,
		location: deps.Location,
		now:      deps.Clock,
		logger:   deps.Logger,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.location == nil {
		h.location = time.UTC
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/", h.get)
	r.Post("/", h.post)
	r.Get("/stats", h.stats)
	r.Post("/reconcile", h.reconcile)
	return r
}

// Server runs the router until its context ends.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer binds the router to addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Info("http server listening", "addr", s.srv.Addr)
		}
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

type postRequest struct {
	Action  string          `json:"action"`
	Results map[string]bool `json:"results"`
}

type statusResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type cleanResponse struct {
	Success   bool `json:"success"`
	Removed   int  `json:"removed"`
	Remaining int  `json:"remaining"`
}

type trackingURL struct {
	Row        int    `json:"row"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Price      int64  `json:"price"`
	ListInDate string `json:"listInDate"`
	EndDate    string `json:"endDate"`
	CheckCount int64  `json:"checkCount"`
	HitCount   int64  `json:"hitCount"`
}

type trackingListResponse struct {
	Success bool          `json:"success"`
	URLs    []trackingURL `json:"urls"`
	Count   int           `json:"count"`
}

type trackingUpdateResponse struct {
	Success   bool `json:"success"`
	Updated   int  `json:"updated"`
	Completed int  `json:"completed"`
}

type statsResponse struct {
	Success bool `json:"success"`
	usecase.StatsReport
}

type reconcileResponse struct {
	Success        bool                    `json:"success"`
	RunID          string                  `json:"runId"`
	TargetWorkbook string                  `json:"targetWorkbook"`
	TargetCreated  bool                    `json:"targetCreated"`
	Removed        int                     `json:"removed"`
	Processed      int                     `json:"processed"`
	NewArrivals    int                     `json:"newArrivals"`
	Categories     []usecase.CategoryCount `json:"categories"`
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch action := q.Get("action"); action {
	case "clean":
		h.clean(w, r)
		return
	case "getTrackingList":
		h.trackingList(w, r)
		return
	case "":
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+action)
		return
	}

	if data := q.Get("data"); data != "" {
		h.record(w, r, []byte(data))
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:    "ok",
		Message:   "note-sales-tracker API is running",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) post(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) == 0 {
		if data := r.URL.Query().Get("data"); data != "" {
			body = []byte(data)
		}
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "no data received")
		return
	}

	var envelope postRequest
	// Non-object bodies fall through to event decoding, which reports them.
	decodeErr := json.Unmarshal(body, &envelope)
	if envelope.Action == "updateTrackingResults" {
		if decodeErr != nil {
			writeError(w, http.StatusBadRequest, "malformed tracking results: "+decodeErr.Error())
			return
		}
		h.updateTracking(w, r, envelope.Results)
		return
	}

	h.record(w, r, body)
}

func (h *handler) record(w http.ResponseWriter, r *http.Request, body []byte) {
	ev, err := usecase.DecodeEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.ingestor.Record(r.Context(), ev)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) updateTracking(w http.ResponseWriter, r *http.Request, results map[string]bool) {
	if results == nil {
		writeError(w, http.StatusBadRequest, "results are required")
		return
	}

	report, err := h.ingestor.UpdateTracking(r.Context(), results)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trackingUpdateResponse{
		Success:   true,
		Updated:   report.Updated,
		Completed: report.Completed,
	})
}

func (h *handler) clean(w http.ResponseWriter, r *http.Request) {
	result, err := h.ingestor.Clean(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanResponse{Success: true, Removed: result.Removed, Remaining: result.Remaining()})
}

func (h *handler) trackingList(w http.ResponseWriter, r *http.Request) {
	items, err := h.ingestor.TrackingList(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := trackingListResponse{Success: true, URLs: make([]trackingURL, 0, len(items)), Count: len(items)}
	for _, item := range items {
		resp.URLs = append(resp.URLs, toTrackingURL(item, h.location))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	report, err := usecase.Stats(r.Context(), h.store, h.source)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Success: true, StatsReport: report})
}

func (h *handler) reconcile(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		writeError(w, http.StatusNotFound, "reconciliation is not enabled")
		return
	}
	summary, err := h.pipeline.Reconcile(r.Context(), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{
		Success:        true,
		RunID:          summary.RunID,
		TargetWorkbook: summary.TargetWorkbook,
		TargetCreated:  summary.TargetCreated,
		Removed:        summary.Removed,
		Processed:      summary.Processed,
		NewArrivals:    summary.NewArrivals,
		Categories:     summary.Categories,
	})
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, usecase.ErrMalformedEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracking.ErrNoTrackingData):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if h.logger != nil {
			h.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}
	})
}

func toTrackingURL(item domain.TrackingItem, loc *time.Location) trackingURL {
	return trackingURL{
		Row:        item.Row,
		URL:        item.URL,
		Title:      item.Title,
		Author:     item.Author,
		Price:      item.Price,
		ListInDate: formatDate(item.ListInDate, loc),
		EndDate:    formatDate(item.EndDate, loc),
		CheckCount: item.CheckCount,
		HitCount:   item.HitCount,
	}
}

func formatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format("2006-01-02")
}
