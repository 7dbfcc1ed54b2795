package analyzer

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// SummaryHandler serves GET /summary/{n}.
type SummaryHandler struct {
	analyzer    *Analyzer
	defaultTopN int
}

// NewSummaryHandler creates the ranking endpoint. defaultTopN is used when n
// is missing or not a positive integer.
func NewSummaryHandler(a *Analyzer, defaultTopN int) *SummaryHandler {
	if defaultTopN <= 0 {
		defaultTopN = 5
	}
	return &SummaryHandler{analyzer: a, defaultTopN: defaultTopN}
}

type summaryResponse struct {
	TopN   int            `json:"top_n"`
	Traces []TraceSummary `json:"traces"`
}

// ServeHTTP returns the n slowest traces.
func (h *SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n <= 0 {
		n = h.defaultTopN
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		TopN:   n,
		Traces: h.analyzer.SummarizeTopSlowest(n),
	})
}

// TraceHandler serves GET /analysis/trace/{traceID}.
type TraceHandler struct {
	analyzer *Analyzer
}

// NewTraceHandler creates the trace reconstruction endpoint.
func NewTraceHandler(a *Analyzer) *TraceHandler {
	return &TraceHandler{analyzer: a}
}

// ServeHTTP returns the reconstructed trace or 404.
func (h *TraceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	detail, ok := h.analyzer.Trace(r.PathValue("traceID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Trace not found"})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	analyzer *Analyzer
}

// NewStatsHandler creates the duration distribution endpoint.
func NewStatsHandler(a *Analyzer) *StatsHandler {
	return &StatsHandler{analyzer: a}
}

// ServeHTTP returns the current DurationStats.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.analyzer.Stats())
}

// Register mounts the analyzer endpoints on mux.
func (a *Analyzer) Register(mux *http.ServeMux, defaultTopN int) {
	summary := NewSummaryHandler(a, defaultTopN)
	mux.Handle("/summary", summary)
	mux.Handle("/summary/{n}", summary)
	mux.Handle("/analysis/trace/{traceID}", NewTraceHandler(a))
	mux.Handle("/stats", NewStatsHandler(a))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
