// Package tasks turns job requests into workflow specs.
//
// Every job the daemon can run has a Kind, a JSON parameter payload and a
// unique key that keeps two jobs from working on the same catalog row at
// once. Import-family bodies come from the importer package; deletions,
// reordering, maintenance and the auto-search import live here.
//
// Deletions retry with exponential backoff while the catalog reports lock
// contention. Bulk deletions commit each item separately and pace
// themselves between items so interactive requests are not starved.
package tasks
