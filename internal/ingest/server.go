package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mattjoyce/journalfwd/internal/events"
	"github.com/mattjoyce/journalfwd/internal/forward"
	"github.com/mattjoyce/journalfwd/internal/journal"
	"github.com/mattjoyce/journalfwd/internal/metrics"
)

// Dispatcher is the shared forwarding capability handed to every stream.
type Dispatcher interface {
	forward.Submitter
	Depth() int
	Workers() int
}

// Server represents the upload HTTP server.
type Server struct {
	config     Config
	dispatcher Dispatcher
	hub        *events.Hub
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time

	streams atomic.Int64
	active  atomic.Int64
	entries atomic.Int64
	aborted atomic.Int64
}

// New creates a new upload server. hub and m may be nil.
func New(config Config, dispatcher Dispatcher, hub *events.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(0)
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		hub:        hub,
		metrics:    m,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start starts the HTTP server (blocking) until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.config.Listen,
		Handler: s.Handler(),
		// Uploads are long-lived streams, so only headers are time-bounded.
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	s.logger.Info("upload server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("upload server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("upload server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("upload server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/events", s.handleEvents)

	r.Post("/upload", s.handleUpload)
	r.Post("/*", s.handleUpload)

	return r
}

// loggingMiddleware logs HTTP requests (never bodies).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleUpload parses one journal export stream and submits its entries.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	streamID := uuid.NewString()
	logger := s.logger.With("stream_id", streamID, "request_id", middleware.GetReqID(ctx))

	contentType := r.Header.Get("Content-Type")
	if !isJournalContentType(contentType) {
		logger.Warn("invalid content-type received", "content_type", contentType)
		s.metrics.Stream(metrics.StreamRejected, 0, 0)
		s.respondError(w, http.StatusInternalServerError, "invalid content-type: expecting "+JournalContentType)
		return
	}

	var body io.Reader = r.Body
	if s.config.MaxBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)
	}
	wire := &countingReader{r: body}

	contentEncoding := r.Header.Get("Content-Encoding")
	stream, err := decodeBody(contentEncoding, wire)
	if err != nil {
		logger.Warn("cannot decode upload body", "content_encoding", contentEncoding, "error", err)
		s.metrics.Stream(metrics.StreamRejected, 0, 0)
		if errors.Is(err, errUnsupportedEncoding) {
			s.respondError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		s.respondError(w, http.StatusBadRequest, "malformed compressed body")
		return
	}
	defer stream.Close()

	s.streams.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)
	logger.Debug("body received", "content_encoding", contentEncoding)

	stats, err := journal.Parse(ctx, stream, forward.NewSink(ctx, s.dispatcher, logger), journal.Options{
		MaxLineSize:  s.config.MaxLineSize,
		MaxFieldSize: s.config.MaxFieldSize,
		Logger:       logger,
	})
	s.entries.Add(int64(stats.Entries))

	resp := UploadResponse{
		StreamID: streamID,
		Entries:  stats.Entries,
		Bytes:    stats.Bytes,
	}
	attrs := []any{
		"entries", stats.Entries,
		"fields", stats.Fields,
		"binary_fields", stats.BinaryFields,
		"bytes", humanize.Bytes(uint64(stats.Bytes)),
		"wire_bytes", humanize.Bytes(uint64(wire.n)),
		"discarded_fields", stats.DiscardedFields,
		"invalid_utf8", stats.InvalidUTF8,
	}

	switch {
	case err == nil:
		logger.Info("stream completed", attrs...)
		s.metrics.Stream(metrics.StreamCompleted, stats.Bytes, stats.Entries)
		s.hub.Publish(events.StreamCompleted, resp)
		s.respondJSON(w, http.StatusOK, resp)

	case errors.Is(err, journal.ErrFraming):
		resp.Aborted = true
		resp.Reason = journal.ReasonCode(err)
		s.aborted.Add(1)
		logger.Warn("stream aborted", append(attrs, "reason", resp.Reason, "error", err)...)
		s.metrics.Stream(metrics.StreamAborted, stats.Bytes, stats.Entries)
		s.metrics.FramingError(resp.Reason)
		s.hub.Publish(events.StreamAborted, resp)
		s.respondJSON(w, http.StatusOK, resp)

	default:
		s.metrics.Stream(metrics.StreamFailed, stats.Bytes, stats.Entries)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("upload exceeds body limit", append(attrs, "limit", tooLarge.Limit)...)
			s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		logger.Error("failed to read upload", append(attrs, "error", err)...)
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    s.dispatcher.Depth(),
		Workers:       s.dispatcher.Workers(),
		Streams:       s.streams.Load(),
		ActiveStreams: s.active.Load(),
		Entries:       s.entries.Load(),
		Aborted:       s.aborted.Load(),
	})
}

func isJournalContentType(v string) bool {
	mediaType, _, err := mime.ParseMediaType(v)
	return err == nil && mediaType == JournalContentType
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
