// Package span defines the span record shared by the tracer, the collector
// and the analyzer, along with the propagated causal Context and the error
// types each component reports.
//
// # Wire format
//
// A span travels and is stored as one JSON object:
//
//	{"trace_id":"4bf92f3577b34da6a3ce929d0e0e4736","span_id":"00f067aa0ba902b7",
//	 "parent_span_id":"53995c3f42cd8ad8","service":"service_b",
//	 "operation":"process_business_logic","start_ts":"2025-01-01T00:00:00.010Z",
//	 "end_ts":"2025-01-01T00:00:00.045Z","duration_ms":35,"tags":{"success":true},
//	 "sampled":true}
//
// parent_span_id is omitted (or null) for roots. The durable log stores one such
// object per line.
package span
