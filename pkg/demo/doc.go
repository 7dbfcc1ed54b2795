// Package demo runs three instrumented HTTP services on loopback and drives
// load through them, producing realistic traces for the collector.
//
// Service A (GET /work) handles the request, calls B, makes a simulated
// external call and sometimes hands work to a background worker. Service B
// (POST /work) does business logic and calls C. Service C (POST /work)
// queries a simulated database behind a pool of ten connections; one query
// in a hundred takes an extra 200ms, which is what tail sampling is meant to
// catch.
package demo
