// Package metrics owns the Prometheus registry shared by the progress sinks,
// the status server, and the discovery crawler.
package metrics

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds a private registry and the collectors that are not owned by
// a progress sink.
type Metrics struct {
	reg *prometheus.Registry

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	discoveryPagesTotal        *prometheus.CounterVec
	discoveryLinksTotal        *prometheus.CounterVec
}

// New creates a registry with Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
		discoveryPagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docharvest_discovery_pages_total",
				Help: "Search result pages read, labeled by site and extraction result.",
			},
			[]string{"site", "result"},
		),
		discoveryLinksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docharvest_discovery_links_total",
				Help: "Links seen on result pages, labeled by whether they were new or duplicates.",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDurationSeconds,
		m.discoveryPagesTotal,
		m.discoveryLinksTotal,
	)
	return m
}

// Registry exposes the registry so sinks can register their collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler returns an http.Handler for exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveDiscoveryPage records one search result page. result is the name of
// the extraction strategy that matched, or "empty", "blocked", "error".
func (m *Metrics) ObserveDiscoveryPage(pageURL, result string, fresh, duplicates int) {
	m.discoveryPagesTotal.WithLabelValues(SanitizeSite(pageURL), result).Inc()
	if fresh > 0 {
		m.discoveryLinksTotal.WithLabelValues("new").Add(float64(fresh))
	}
	if duplicates > 0 {
		m.discoveryLinksTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	}
}

// WriteTextfile writes every metric in g to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
