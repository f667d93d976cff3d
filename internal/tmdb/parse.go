package tmdb

import (
	"fmt"
	"strconv"
	"strings"
)

// Image URL prefixes published by TMDB. Poster and fanart use different
// render widths.
const (
	imageBaseURL  = "https://image.tmdb.org/t/p/w500"
	fanartBaseURL = "https://image.tmdb.org/t/p/w1280"
)

// MediaKind selects the search endpoint and genre table.
type MediaKind string

const (
	MediaMovie MediaKind = "movie"
	MediaTV    MediaKind = "tv"
)

// Metadata is the parsed enrichment payload for one title.
type Metadata struct {
	TMDBID    string   `json:"tmdb_id"`
	Title     string   `json:"title"`
	Plot      string   `json:"plot"`
	Year      int      `json:"year"`
	Rating    float64  `json:"rating"`
	Votes     int64    `json:"votes"`
	Poster    string   `json:"poster,omitempty"`
	Fanart    string   `json:"fanart,omitempty"`
	Genres    []string `json:"genres,omitempty"`
	MediaType string   `json:"media_type"`
}

// searchResult models one entry of a TMDB paginated search response. Movie
// and TV results differ only in the title/date field names.
type searchResult struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int64   `json:"vote_count"`
	GenreIDs     []int64 `json:"genre_ids"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type genreListResponse struct {
	Genres []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
}

// parseResult maps a raw search result into Metadata. Genre identifiers
// without a table entry are dropped, not errored.
func parseResult(kind MediaKind, data searchResult, genres map[string]string) Metadata {
	title := data.Title
	date := data.ReleaseDate
	mediaType := "movie"
	if kind == MediaTV {
		title = data.Name
		date = data.FirstAirDate
		mediaType = "tvshow"
	}

	meta := Metadata{
		TMDBID:    strconv.FormatInt(data.ID, 10),
		Title:     title,
		Plot:      data.Overview,
		Year:      leadingYear(date),
		Rating:    data.VoteAverage,
		Votes:     data.VoteCount,
		MediaType: mediaType,
	}
	if data.PosterPath != "" {
		meta.Poster = imageBaseURL + data.PosterPath
	}
	if data.BackdropPath != "" {
		meta.Fanart = fanartBaseURL + data.BackdropPath
	}
	for _, id := range data.GenreIDs {
		if name, ok := genres[strconv.FormatInt(id, 10)]; ok {
			meta.Genres = append(meta.Genres, name)
		}
	}
	return meta
}

// leadingYear parses the four-digit year prefix of a release-date string.
// Absent or malformed dates yield 0.
func leadingYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// cacheKey builds the normalized lookup key: lowercase trimmed title, empty
// string for an absent year.
func cacheKey(kind MediaKind, title string, year int) string {
	yearPart := ""
	if year != 0 {
		yearPart = strconv.Itoa(year)
	}
	return fmt.Sprintf("%s:%s:%s", kind, strings.ToLower(strings.TrimSpace(title)), yearPart)
}
