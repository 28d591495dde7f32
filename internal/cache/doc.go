// Package cache defines the disk-backed blob store that keeps fetched image
// bytes under StoragePath/<key>, where key is the hex SHA-256 digest of the
// source URL. The store exposes read/write/clear primitives with safe
// semantics (temp file + rename) and treats every unreadable entry as a miss,
// so fetch coordinators can fall back to the network without special-casing
// disk failures. The directory is created lazily and re-created before every
// write, which lets Clear empty it without coordinating with writers.
package cache
