// Package listing caches the portal's category and video lists on disk and
// guards them against portal switches.
//
// Each category list and each per-category video list is one JSON file under
// the storage root, stamped with its write time. The guard compares the
// configured portal identity (server address plus device MAC) against the
// identity persisted at the last run and wipes all portal-scoped files when
// either changed, leaving the portal-independent TMDB cache in place.
package listing
