// Package sinks implements concrete progress consumers: structured logging,
// Prometheus collectors, outcome persistence, message publishing, and blob
// mirroring of fetched files. Each sink satisfies progress.Sink and is safe
// for repeated Consume/Close cycles.
package sinks
