package span

// Context is the causal context propagated across process boundaries.
type Context struct {
	TraceID string
	SpanID  string
	Sampled bool
}

// IsValid reports whether the context carries enough to parent a span.
func (c Context) IsValid() bool {
	return c.TraceID != "" && c.SpanID != ""
}

// IsEmpty reports whether no context was supplied.
func (c Context) IsEmpty() bool {
	return c.TraceID == "" && c.SpanID == ""
}
