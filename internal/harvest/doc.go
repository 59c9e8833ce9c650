// Package harvest defines the domain types shared by the fetch pipeline:
// source items, attempts, download links, and the collaborator interfaces
// (browser session, clock) the pipeline is driven through.
package harvest
