package tracer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"mercator-hq/tailtrace/pkg/span"
)

// Transmitter delivers one finished span to a collector.
type Transmitter interface {
	Send(ctx context.Context, s *span.Span) error
}

// TransmitterFunc adapts a function to Transmitter.
type TransmitterFunc func(ctx context.Context, s *span.Span) error

// Send calls f.
func (f TransmitterFunc) Send(ctx context.Context, s *span.Span) error {
	return f(ctx, s)
}

// NopTransmitter discards spans.
type NopTransmitter struct{}

// Send does nothing.
func (NopTransmitter) Send(context.Context, *span.Span) error { return nil }

// IngestPath is the collector endpoint spans are posted to.
const IngestPath = "/ingest"

// HTTPTransmitter posts spans as JSON to a collector. It makes exactly one
// attempt per span.
type HTTPTransmitter struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPTransmitter creates a transmitter for the collector at endpoint
// (for example "http://127.0.0.1:3000").
func NewHTTPTransmitter(endpoint string, timeout time.Duration) *HTTPTransmitter {
	endpoint = strings.TrimRight(endpoint, "/")
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	return &HTTPTransmitter{client: client, endpoint: endpoint}
}

// Send posts s to the collector's ingest endpoint.
func (h *HTTPTransmitter) Send(ctx context.Context, s *span.Span) error {
	body, err := span.Marshal(s)
	if err != nil {
		return &span.TransmissionError{Endpoint: h.endpoint, Cause: err}
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(IngestPath)
	if err != nil {
		return &span.TransmissionError{Endpoint: h.endpoint, Cause: err}
	}
	if resp.IsError() {
		return &span.TransmissionError{
			Endpoint: h.endpoint,
			Cause:    fmt.Errorf("collector responded %s", resp.Status()),
		}
	}
	return nil
}
