// Package tmdb enriches portal listings with metadata from The Movie
// Database.
//
// Lookups flow through a three-tier cache before touching the network:
// positive results, cached "no match" outcomes, and the shared genre
// id-to-name tables all live in one persisted JSON file. Outbound requests
// pass a sliding-window rate limiter; after three consecutive 429 responses
// the client transitions to a terminal aborted state, surfaces
// ErrRateLimited once so the caller can stop the batch, and answers every
// later call from cache alone.
package tmdb
