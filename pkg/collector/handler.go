package collector

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"mercator-hq/tailtrace/pkg/span"
)

// DefaultMaxBodyBytes bounds a single ingest request.
const DefaultMaxBodyBytes = 1 << 20

// IngestHandler serves POST /ingest.
type IngestHandler struct {
	collector    *Collector
	maxBodyBytes int64
}

// NewIngestHandler creates the ingest endpoint. maxBodyBytes <= 0 uses
// DefaultMaxBodyBytes.
func NewIngestHandler(c *Collector, maxBodyBytes int64) *IngestHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &IngestHandler{collector: c, maxBodyBytes: maxBodyBytes}
}

// ServeHTTP decodes one span record and ingests it.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}

	s, err := span.Unmarshal(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	result, err := h.collector.Ingest(r.Context(), s)
	switch {
	case errors.Is(err, span.ErrInvalidSpan):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status": string(result),
			"error":  err.Error(),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": string(result)})
	}
}

// TraceHandler serves GET /trace/{traceID}.
type TraceHandler struct {
	collector *Collector
}

// NewTraceHandler creates the trace lookup endpoint.
func NewTraceHandler(c *Collector) *TraceHandler {
	return &TraceHandler{collector: c}
}

// ServeHTTP returns the spans of one trace; unknown ids yield [].
func (h *TraceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	traceID := r.PathValue("traceID")
	if traceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "trace id is required"})
		return
	}

	writeJSON(w, http.StatusOK, h.collector.GetTrace(traceID))
}

// Register mounts the collector endpoints on mux.
func (c *Collector) Register(mux *http.ServeMux, maxBodyBytes int64) {
	mux.Handle("/ingest", NewIngestHandler(c, maxBodyBytes))
	mux.Handle("/trace/{traceID}", NewTraceHandler(c))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
