// Package imagecache downloads work posters into paths.image_dir.
//
// Downloads are keyed by source URL and recorded in an index.json beside the
// images so repeated imports of the same work reuse the local copy. The
// index is rewritten atomically on every change.
package imagecache
