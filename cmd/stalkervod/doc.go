// Command stalkervod maintains an on-disk cache of Stalker portal listings
// and enriches them with TMDB metadata.
//
//	stalkervod refresh            fill or update the listing cache
//	stalkervod enrich vod         attach TMDB metadata to cached listings
//	stalkervod cache status       inspect cache files and staleness
//	stalkervod serve              keep the cache warm in the background
package main
