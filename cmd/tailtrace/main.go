// tailtrace is a small distributed tracing system: a span collector with a
// durable append-only log, a trace analyzer that finds the slowest requests
// and the span that dominates each one, and a demo of three instrumented
// services that produces realistic traces.
//
// Usage:
//
//	# Start the collector and analysis API
//	tailtrace run --config config.yaml
//
//	# Generate load through the demo services
//	tailtrace demo --requests 200
//
//	# Print the five slowest traces from the span log
//	tailtrace analyze top -n 5 --log data/traces.ndjson
//
//	# Fetch one trace from a running collector
//	tailtrace query 4bf92f3577b34da6a3ce929d0e0e4736
package main

func main() {
	Execute()
}
