// Package cachefile persists single JSON values to disk with a write
// timestamp and a TTL-based staleness predicate. It is the storage primitive
// under the listing cache; the TMDB cache shares only its atomic write
// helper because it batches many entries into one file.
package cachefile
