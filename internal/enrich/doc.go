// Package enrich drives the two halves of a listing run: filling the
// on-disk listing cache from the portal, and copying TMDB metadata onto
// videos according to the configured field toggles.
package enrich
