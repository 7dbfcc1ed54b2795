// Package config loads, validates and hot-reloads tailtrace configuration.
//
// Configuration is read from YAML, decoded over the defaults returned by
// Default, then overridden by TAILTRACE_* environment variables:
//
//	server:
//	  listen_address: "127.0.0.1:3000"
//	tracer:
//	  sampling_rate: 0.1
//	  tail_threshold: 100ms
//	storage:
//	  backend: file
//	  file:
//	    path: data/traces.ndjson
//	analyzer:
//	  settle_after: 30s
//	  report_schedule: "*/5 * * * *"
//
// A process-wide copy is held behind SetConfig/GetConfig. Watcher reloads the
// file on change so the running server can pick up new sampling settings and
// log levels without a restart.
package config
