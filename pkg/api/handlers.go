package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MathisTLD/multiparse/pkg/metrics"
	"github.com/MathisTLD/multiparse/pkg/multipart"
	"github.com/MathisTLD/multiparse/pkg/storage"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Server holds the API server state
type Server struct {
	store   IPartStore
	config  ServerConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewServer creates a new API server. A nil metrics gets a private instance.
func NewServer(store IPartStore, config ServerConfig, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}
	return &Server{
		store:   store,
		config:  config,
		metrics: m,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// NewPartResponse converts a part to its JSON form
func NewPartResponse(part multipart.Part, index int) (PartResponse, error) {
	decoded, err := multipart.DecodeBody(part)
	if err != nil {
		return PartResponse{}, err
	}
	return PartResponse{
		Index:         index,
		ContentType:   decoded.ContentType,
		ContentLength: decoded.ContentLength,
		Headers:       decoded.Headers,
		Kind:          decoded.Kind.String(),
		Body:          decoded.Body,
	}, nil
}

func entryResponse(entry storage.Entry, index int) (PartResponse, error) {
	resp, err := NewPartResponse(entry.Part, index)
	if err != nil {
		return PartResponse{}, err
	}
	capturedAt := entry.CapturedAt
	resp.ID = entry.ID.String()
	resp.CapturedAt = &capturedAt
	return resp, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "healthy"}
	if s.store != nil {
		n, err := s.store.Count()
		if err != nil {
			s.metrics.RecordHealthCheck(false)
			sendError(w, r, fmt.Sprintf("Part store unavailable: %v", err), http.StatusServiceUnavailable)
			return
		}
		s.metrics.SetStoredParts(n)
		status["stored_parts"] = n
	}
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, r, status)
}

// handleDecode streams every part of the request body back as one NDJSON
// line. Errors found before the first part produce a regular error response,
// later ones end the stream with a StreamError line.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	config, err := s.decoderConfig(r)
	if err != nil {
		sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	reader, err := multipart.NewReader(r.Body, config)
	if err != nil {
		sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	defer reader.Close()

	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)
	emitted := 0
	started := false
	start := func() {
		if !started {
			w.Header().Set("Content-Type", ContentTypeNDJSON)
			w.WriteHeader(http.StatusOK)
			started = true
		}
	}

	fail := func(err error) {
		s.logger.Warn().Err(err).Int("emitted", emitted).Msg("decode request failed")
		if !started {
			sendError(w, r, err.Error(), statusFor(err))
			return
		}
		_ = encoder.Encode(StreamError{Error: err.Error(), Emitted: emitted})
	}

	for reader.Next(r.Context()) {
		resp, err := NewPartResponse(reader.Part(), emitted)
		if err != nil {
			fail(err)
			return
		}
		start()
		if err := encoder.Encode(resp); err != nil {
			s.logger.Debug().Err(err).Msg("client went away")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		emitted++
	}
	if err := reader.Err(); err != nil {
		fail(err)
		return
	}
	start()
}

// handleCapture decodes the request body and stores every part
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	config, err := s.decoderConfig(r)
	if err != nil {
		sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	reader, err := multipart.NewReader(r.Body, config)
	if err != nil {
		sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	defer reader.Close()

	ids := make([]string, 0)
	for reader.Next(r.Context()) {
		start := time.Now()
		id, err := s.store.Save(reader.Part())
		s.metrics.RecordStoreOperation("save", err == nil, time.Since(start))
		if err != nil {
			sendError(w, r, fmt.Sprintf("Failed to store part: %v", err), http.StatusInternalServerError)
			return
		}
		ids = append(ids, id.String())
	}
	s.refreshStoredParts()

	if err := reader.Err(); err != nil {
		s.logger.Warn().Err(err).Int("stored", len(ids)).Msg("capture request failed")
		sendError(w, r, fmt.Sprintf("Decode failed after %d parts: %v", len(ids), err), statusFor(err))
		return
	}

	s.logger.Info().Int("stored", len(ids)).Msg("capture complete")
	sendSuccess(w, r, CaptureResponse{IDs: ids, Count: len(ids)})
}

func (s *Server) handleListParts(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(w, r, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		limit = n
	}

	start := time.Now()
	entries, err := s.store.List(limit)
	s.metrics.RecordStoreOperation("list", err == nil, time.Since(start))
	if err != nil {
		sendError(w, r, fmt.Sprintf("Failed to list parts: %v", err), http.StatusInternalServerError)
		return
	}

	parts := make([]PartResponse, 0, len(entries))
	for i, entry := range entries {
		resp, err := entryResponse(entry, i)
		if err != nil {
			// A stored part whose body no longer decodes is listed raw
			resp = rawEntryResponse(entry, i)
		}
		parts = append(parts, resp)
	}

	sendSuccess(w, r, map[string]interface{}{"parts": parts, "count": len(parts)})
}

// handleGetPart returns a stored part as JSON, or its original body with
// ?raw=true
func (s *Server) handleGetPart(w http.ResponseWriter, r *http.Request) {
	id, err := storage.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	entry, err := s.store.Get(id)
	s.metrics.RecordStoreOperation("get", err == nil, time.Since(start))
	if errors.Is(err, storage.ErrNotFound) {
		sendError(w, r, "Part not found", http.StatusNotFound)
		return
	}
	if err != nil {
		sendError(w, r, fmt.Sprintf("Failed to get part: %v", err), http.StatusInternalServerError)
		return
	}

	if raw, _ := strconv.ParseBool(r.URL.Query().Get("raw")); raw {
		w.Header().Set("Content-Type", entry.Part.Header("Content-Type"))
		w.Header().Set("Content-Length", strconv.Itoa(len(entry.Part.Body)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(entry.Part.Body)
		return
	}

	resp, err := entryResponse(entry, 0)
	if err != nil {
		sendError(w, r, fmt.Sprintf("Failed to decode part body: %v", err), http.StatusUnprocessableEntity)
		return
	}
	sendSuccess(w, r, resp)
}

func (s *Server) handleDeletePart(w http.ResponseWriter, r *http.Request) {
	id, err := storage.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	err = s.store.Delete(id)
	s.metrics.RecordStoreOperation("delete", err == nil, time.Since(start))
	if errors.Is(err, storage.ErrNotFound) {
		sendError(w, r, "Part not found", http.StatusNotFound)
		return
	}
	if err != nil {
		sendError(w, r, fmt.Sprintf("Failed to delete part: %v", err), http.StatusInternalServerError)
		return
	}
	s.refreshStoredParts()

	sendSuccess(w, r, map[string]string{"message": "Part deleted successfully"})
}

// decoderConfig builds the per request decoder configuration. The boundary
// comes from ?boundary= or the request Content-Type.
func (s *Server) decoderConfig(r *http.Request) (multipart.DecoderConfig, error) {
	config := s.config.Decoder
	config.Recorder = s.metrics
	config.Logger = &s.logger

	boundary := r.URL.Query().Get("boundary")
	if boundary == "" {
		b, err := multipart.BoundaryFromContentType(r.Header.Get("Content-Type"))
		if err != nil {
			return config, fmt.Errorf("boundary: %w", err)
		}
		boundary = b
	}
	config.Boundary = boundary
	return config, nil
}

func (s *Server) refreshStoredParts() {
	if n, err := s.store.Count(); err == nil {
		s.metrics.SetStoredParts(n)
	}
}

func rawEntryResponse(entry storage.Entry, index int) PartResponse {
	capturedAt := entry.CapturedAt
	return PartResponse{
		ID:            entry.ID.String(),
		Index:         index,
		CapturedAt:    &capturedAt,
		ContentType:   entry.Part.ContentType,
		ContentLength: entry.Part.ContentLength,
		Headers:       entry.Part.Headers,
		Kind:          multipart.KindBinary.String(),
		Body:          entry.Part.Body,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, multipart.ErrEmptyBoundary):
		return http.StatusBadRequest
	case errors.Is(err, multipart.ErrPartTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, multipart.ErrDecoderFailed), errors.Is(err, multipart.ErrInvalidJSON):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}
