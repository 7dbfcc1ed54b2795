package tracer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"mercator-hq/tailtrace/pkg/span"
	"mercator-hq/tailtrace/pkg/telemetry/logging"
)

func TestInstrumentHTTPCall(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	rec := &recorder{}
	tr := newTestTracer(t, 1.0, rec)
	root := tr.StartSpan("root", span.Context{}, nil)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/work", nil)
	resp, err := tr.InstrumentHTTPCall(context.Background(), srv.Client(), req, "call_downstream", root.Context())
	if err != nil {
		t.Fatalf("InstrumentHTTPCall() failed: %v", err)
	}
	resp.Body.Close()
	root.Finish(nil)
	flush(t, tr)

	if gotHeaders.Get(HeaderTraceID) != root.TraceID() {
		t.Errorf("downstream X-Trace-Id = %q, want %q", gotHeaders.Get(HeaderTraceID), root.TraceID())
	}

	var child *span.Span
	for _, s := range rec.sent() {
		if s.Operation == "call_downstream" {
			child = s
		}
	}
	if child == nil {
		t.Fatal("child span was not sent")
	}
	if child.ParentSpanID != root.SpanID() {
		t.Errorf("child ParentSpanID = %s, want %s", child.ParentSpanID, root.SpanID())
	}
	if gotHeaders.Get(HeaderSpanID) != child.SpanID {
		t.Errorf("downstream X-Span-Id = %q, want child span %q", gotHeaders.Get(HeaderSpanID), child.SpanID)
	}
	if child.Tags[TagHTTPStatus] != http.StatusAccepted || child.Tags[TagSuccess] != true {
		t.Errorf("child tags = %v", child.Tags)
	}
	if child.Tags[TagHTTPMethod] != http.MethodPost {
		t.Errorf("child http_method = %v, want POST", child.Tags[TagHTTPMethod])
	}
}

func TestInstrumentHTTPCall_ErrorReturnedUnchanged(t *testing.T) {
	rec := &recorder{}
	tr := newTestTracer(t, 1.0, rec)

	wantErr := errors.New("dial failed")
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, wantErr
	})}

	req, _ := http.NewRequest(http.MethodGet, "http://downstream.invalid/", nil)
	_, err := tr.InstrumentHTTPCall(context.Background(), client, req, "call", span.Context{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("InstrumentHTTPCall() error = %v, want %v", err, wantErr)
	}
	flush(t, tr)

	sent := rec.sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d spans, want 1", len(sent))
	}
	if sent[0].Tags[TagSuccess] != false || sent[0].Tags[TagError] == nil {
		t.Errorf("failed call tags = %v, want success=false and error", sent[0].Tags)
	}
}

func TestInstrumentHTTPCall_RequestWithoutHeaders(t *testing.T) {
	rec := &recorder{}
	tr := newTestTracer(t, 1.0, rec)

	var gotTraceID string
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotTraceID = r.Header.Get(HeaderTraceID)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})}

	u, _ := url.Parse("http://downstream.invalid/work")
	req := &http.Request{Method: http.MethodGet, URL: u}
	resp, err := tr.InstrumentHTTPCall(context.Background(), client, req, "call", span.Context{})
	if err != nil {
		t.Fatalf("InstrumentHTTPCall() failed: %v", err)
	}
	resp.Body.Close()
	flush(t, tr)

	sent := rec.sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d spans, want 1", len(sent))
	}
	if gotTraceID != sent[0].TraceID {
		t.Errorf("downstream X-Trace-Id = %q, want %q", gotTraceID, sent[0].TraceID)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestInstrumentAsync(t *testing.T) {
	rec := &recorder{}
	tr := newTestTracer(t, 1.0, rec)
	root := tr.StartSpan("root", span.Context{}, nil)

	sentinel := errors.New("boom")
	var innerParent string
	call := InstrumentAsync(tr, "external_api", root.Context(), func(ctx context.Context) (int, error) {
		innerParent = SpanFromContext(ctx).TraceID()
		return 42, sentinel
	})

	got, err := call(context.Background())
	if got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
	if err != sentinel {
		t.Errorf("error = %v, want the original error value", err)
	}
	if innerParent != root.TraceID() {
		t.Errorf("inner span trace = %s, want %s", innerParent, root.TraceID())
	}

	flush(t, tr)
	sent := rec.sent()
	if len(sent) != 1 || sent[0].Operation != "external_api" {
		t.Fatalf("sent = %v, want one external_api span", sent)
	}
	if sent[0].Tags[TagError] != "boom" {
		t.Errorf("error tag = %v, want boom", sent[0].Tags[TagError])
	}
}

func TestRun_UsesContextParent(t *testing.T) {
	rec := &recorder{}
	tr := newTestTracer(t, 1.0, rec)
	root, ctx := tr.StartSpanFromContext(context.Background(), "root", nil)

	if err := tr.Run(ctx, "step", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	flush(t, tr)

	sent := rec.sent()
	if len(sent) != 1 || sent[0].ParentSpanID != root.SpanID() {
		t.Errorf("sent = %+v, want one child of %s", sent, root.SpanID())
	}
}

func TestHTTPMiddleware(t *testing.T) {
	rec := &recorder{}
	tr := newTestTracer(t, 1.0, rec)

	var handlerTrace, logTrace string
	h := HTTPMiddleware(tr, "handle_request")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerTrace = SpanFromContext(r.Context()).TraceID()
		logTrace = logging.GetTraceID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/work", nil)
	for k, v := range PropagateHeaders(testCtx) {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	flush(t, tr)

	if handlerTrace != testCtx.TraceID || logTrace != testCtx.TraceID {
		t.Errorf("handler saw trace %q (log %q), want %q", handlerTrace, logTrace, testCtx.TraceID)
	}

	sent := rec.sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d spans, want 1", len(sent))
	}
	if sent[0].ParentSpanID != testCtx.SpanID {
		t.Errorf("ParentSpanID = %s, want %s", sent[0].ParentSpanID, testCtx.SpanID)
	}
	if sent[0].Tags[TagHTTPStatus] != http.StatusTeapot {
		t.Errorf("http_status = %v, want 418", sent[0].Tags[TagHTTPStatus])
	}
}
