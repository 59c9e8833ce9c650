// Package progress carries fetch-run milestones from the pipeline to
// pluggable sinks. Workers emit events through a non-blocking Hub that
// batches them on a background goroutine and fans each batch out to
// sinks such as logs, Prometheus, Postgres, or Pub/Sub.
package progress
