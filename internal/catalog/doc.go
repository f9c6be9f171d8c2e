// Package catalog persists works, their provider sources and the episodes
// fetched for each source.
//
// Store wraps a database.DB and exposes the transactional CRUD used by import,
// refresh and deletion jobs. InTx binds a Store to one transaction so a
// multi-step write (work lookup, metadata fill, source link) commits or rolls
// back as a unit.
//
// Episode rows are keyed by the identity from internal/episodeid. Because the
// source order component is derived from the rank of a source id within its
// work, the stored keys can drift after sources are added or removed, or after
// episodes arrive out of order. ReorderSource renumbers a source in one
// all-or-nothing transaction and relocates the matching track files.
package catalog
