// Package server exposes the collector and the analysis API over HTTP.
//
// Routes:
//
//	POST /ingest                    collector ingest
//	GET  /trace/{traceID}           raw spans of a trace
//	GET  /summary/{n}               n slowest traces
//	GET  /analysis/trace/{traceID}  reconstructed trace
//	GET  /stats                     trace duration distribution
//	GET  /health, /ready            probes
//	GET  /metrics                   Prometheus scrape endpoint
//	GET  /version                   build information
//
// Every route runs behind the recovery, logging, request ID and body limit
// middleware, outermost first. The server shuts down gracefully when its
// context is cancelled, on SIGINT/SIGTERM, or when Shutdown is called.
package server
