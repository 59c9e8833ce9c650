// Package discovery collects candidate document URLs from search engine
// result pages. Pages are loaded through a Source (a real browser or a plain
// HTTP collector), links are extracted with prioritized selector strategies,
// filtered to a target domain, and de-duplicated across pages. The CSV output
// is accepted directly as input by the fetch pipeline.
package discovery
