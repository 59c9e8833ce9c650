// Package cmd defines the docharvest CLI.
//
// Architecture overview:
//   - fetch: input.ReadURLs loads and dedupes source URLs. The dispatcher walks them one at a time in fixed-size
//     batches, resting between items and batches. For each item the worker drives a single browser session through
//     the conversion site (landing page, submit, redirect, download control readiness) and hands the resolved link to
//     the dual-path downloader: a direct HTTP stream first, the browser's own download as fallback. Whole-flow
//     retries are bounded by retry.max_attempts.
//   - Progress: worker and dispatcher emit events into a progress Hub that batches them to sinks. Logging and
//     Prometheus sinks are always on; Postgres, Pub/Sub, and a GCS mirror are enabled by their config sections.
//   - Reporting: the report Aggregator records every terminal result. When the run ends, including on Ctrl-C, the
//     report is written in each configured format and a summary is printed.
//   - Status: with server.addr set, a chi server exposes /healthz, /readyz, /metrics, the live run, and a cancel
//     endpoint.
//   - discover: walks search result pages with a browser or a colly collector, extracts links on the target domain,
//     and writes them as CSV.
//
// Configuration comes from Viper (defaults, config file, DOCHARVEST_* env vars, then flags); zap provides
// structured logging.
package cmd
