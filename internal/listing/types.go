package listing

// Category is one portal category (a folder in the portal's navigation).
type Category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Alias string `json:"alias,omitempty"`
}

// Video is one portal listing entry, optionally enriched with TMDB metadata.
// The portal fields mirror the Stalker API response; the enrichment fields
// start empty and are filled in by the enrichment pass.
type Video struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Year          string `json:"year,omitempty"`
	Cmd           string `json:"cmd,omitempty"`
	ScreenshotURI string `json:"screenshot_uri,omitempty"`
	Added         string `json:"added,omitempty"`
	SeriesCount   int    `json:"series_count,omitempty"`

	// TMDB enrichment.
	TMDBID string   `json:"tmdb_id,omitempty"`
	Poster string   `json:"poster,omitempty"`
	Fanart string   `json:"fanart,omitempty"`
	Plot   string   `json:"plot,omitempty"`
	Rating float64  `json:"rating,omitempty"`
	Votes  int64    `json:"votes,omitempty"`
	Genres []string `json:"genres,omitempty"`
}
