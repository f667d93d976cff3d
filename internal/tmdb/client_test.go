package tmdb_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stalkervod/internal/tmdb"
)

const searchBody = `{"results":[{
	"id": 27205,
	"title": "Inception",
	"overview": "A thief who steals corporate secrets.",
	"release_date": "2010-07-15",
	"poster_path": "/poster.jpg",
	"backdrop_path": "/backdrop.jpg",
	"vote_average": 8.4,
	"vote_count": 34000,
	"genre_ids": [28, 878, 99999]
}]}`

const genreBody = `{"genres":[{"id":28,"name":"Action"},{"id":878,"name":"Science Fiction"}]}`

func newClient(t *testing.T, dir, baseURL string, opts ...tmdb.Option) *tmdb.Client {
	t.Helper()
	opts = append(opts, tmdb.WithSleep(func(context.Context, time.Duration) error { return nil }))
	client, err := tmdb.New(tmdb.Config{
		APIKey:   "test-key",
		BaseURL:  baseURL,
		Language: "en-US",
		CacheDir: dir,
		CacheTTL: 30 * 24 * time.Hour,
	}, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client
}

// seedGenres pre-populates the persisted cache with a movie genre table so
// lookup tests issue exactly one search request each.
func seedGenres(t *testing.T, dir string) {
	t.Helper()
	now := time.Now().Unix()
	content := fmt.Sprintf(
		`{"genres:movie":{"ts":%d,"data":{"28":"Action","878":"Science Fiction"}},`+
			`"genres:tv":{"ts":%d,"data":{"18":"Drama"}}}`, now, now)
	path := filepath.Join(dir, "tmdb_cache.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
}

func TestLookupMovieParsesTopResult(t *testing.T) {
	var searches, genreFetches int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/genre/movie/list":
			genreFetches++
			fmt.Fprint(w, genreBody)
		case "/search/movie":
			searches++
			if got := r.URL.Query().Get("query"); got != "Inception" {
				t.Errorf("unexpected query %q", got)
			}
			if got := r.URL.Query().Get("year"); got != "2010" {
				t.Errorf("unexpected year %q", got)
			}
			fmt.Fprint(w, searchBody)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	client := newClient(t, dir, server.URL)

	meta, err := client.LookupMovie(context.Background(), "Inception", 2010)
	if err != nil {
		t.Fatalf("LookupMovie returned error: %v", err)
	}
	if meta == nil {
		t.Fatal("expected a match")
	}
	if meta.TMDBID != "27205" {
		t.Fatalf("unexpected tmdb id %q", meta.TMDBID)
	}
	if meta.Year != 2010 {
		t.Fatalf("unexpected year %d", meta.Year)
	}
	if meta.Poster != "https://image.tmdb.org/t/p/w500/poster.jpg" {
		t.Fatalf("unexpected poster %q", meta.Poster)
	}
	if meta.Fanart != "https://image.tmdb.org/t/p/w1280/backdrop.jpg" {
		t.Fatalf("unexpected fanart %q", meta.Fanart)
	}
	// Unknown genre id 99999 drops silently.
	if len(meta.Genres) != 2 || meta.Genres[0] != "Action" || meta.Genres[1] != "Science Fiction" {
		t.Fatalf("unexpected genres %v", meta.Genres)
	}
	if meta.MediaType != "movie" {
		t.Fatalf("unexpected media type %q", meta.MediaType)
	}
	if searches != 1 || genreFetches != 1 {
		t.Fatalf("expected one search and one genre fetch, got %d/%d", searches, genreFetches)
	}

	// Cached in memory: a repeat lookup makes no further calls.
	if _, err := client.LookupMovie(context.Background(), "Inception", 2010); err != nil {
		t.Fatalf("second LookupMovie: %v", err)
	}
	if searches != 1 {
		t.Fatalf("expected cached repeat, saw %d searches", searches)
	}
}

func TestLookupHitsPersistedCacheAcrossClients(t *testing.T) {
	var searches int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/genre/movie/list":
			fmt.Fprint(w, genreBody)
		case "/search/movie":
			searches++
			fmt.Fprint(w, searchBody)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()

	first := newClient(t, dir, server.URL)
	if _, err := first.LookupMovie(context.Background(), "Inception", 2010); err != nil {
		t.Fatalf("LookupMovie: %v", err)
	}
	first.Flush()

	server.Close() // any further network call now fails loudly

	second := newClient(t, dir, server.URL)
	meta, err := second.LookupMovie(context.Background(), "Inception", 2010)
	if err != nil {
		t.Fatalf("cached LookupMovie: %v", err)
	}
	if meta == nil || meta.TMDBID != "27205" {
		t.Fatalf("unexpected cached result: %+v", meta)
	}
	if searches != 1 {
		t.Fatalf("expected exactly one search overall, got %d", searches)
	}
}

func TestNegativeCacheDistinctFromUnqueried(t *testing.T) {
	var searches int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search/movie" {
			searches++
			fmt.Fprint(w, `{"results":[]}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	dir := t.TempDir()
	seedGenres(t, dir)
	client := newClient(t, dir, server.URL)

	meta, err := client.LookupMovie(context.Background(), "No Such Film", 0)
	if err != nil {
		t.Fatalf("LookupMovie: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected no match, got %+v", meta)
	}
	if searches != 1 {
		t.Fatalf("expected one search, got %d", searches)
	}

	// Confirmed-absent: served from the negative cache, no network call.
	if _, err := client.LookupMovie(context.Background(), "No Such Film", 0); err != nil {
		t.Fatalf("second LookupMovie: %v", err)
	}
	if searches != 1 {
		t.Fatalf("negative entry must not re-query, got %d searches", searches)
	}

	// A different, never-queried title still goes to the network.
	if _, err := client.LookupMovie(context.Background(), "Other Film", 0); err != nil {
		t.Fatalf("third LookupMovie: %v", err)
	}
	if searches != 2 {
		t.Fatalf("unqueried title must search, got %d", searches)
	}
}

func TestConsecutive429sAbortExactlyOnce(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	dir := t.TempDir()
	seedGenres(t, dir)
	client := newClient(t, dir, server.URL)
	ctx := context.Background()

	// First two 429s are transient misses.
	for i := 1; i <= 2; i++ {
		meta, err := client.LookupMovie(ctx, fmt.Sprintf("Title %d", i), 0)
		if err != nil {
			t.Fatalf("lookup %d returned error: %v", i, err)
		}
		if meta != nil {
			t.Fatalf("lookup %d expected miss", i)
		}
		if client.Aborted() {
			t.Fatalf("aborted too early after %d responses", i)
		}
	}

	// Third consecutive 429 crosses the threshold.
	if _, err := client.LookupMovie(ctx, "Title 3", 0); err != tmdb.ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if !client.Aborted() {
		t.Fatal("expected aborted state")
	}
	if requests != 3 {
		t.Fatalf("expected 3 requests before abort, got %d", requests)
	}

	// Inert afterwards: absent results, zero network calls, no second error.
	meta, err := client.LookupMovie(ctx, "Title 4", 0)
	if err != nil {
		t.Fatalf("post-abort lookup returned error: %v", err)
	}
	if meta != nil {
		t.Fatal("post-abort lookup must be absent")
	}
	if requests != 3 {
		t.Fatalf("post-abort lookup made a network call (%d total)", requests)
	}
}

func TestInterveningSuccessResetsStreak(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// 429, 429, 200, 429, 429: never three in a row.
		if requests == 3 {
			fmt.Fprint(w, searchBody)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	dir := t.TempDir()
	seedGenres(t, dir)
	client := newClient(t, dir, server.URL)
	ctx := context.Background()

	titles := []string{"One", "Two", "Three", "Four", "Five"}
	for _, title := range titles {
		if _, err := client.LookupMovie(ctx, title, 0); err != nil {
			t.Fatalf("lookup %q returned error: %v", title, err)
		}
	}
	if client.Aborted() {
		t.Fatal("non-consecutive 429s must not abort")
	}
}

func TestRetryAfterIsCappedAndDefaulted(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "120")
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	dir := t.TempDir()
	seedGenres(t, dir)

	var slept []time.Duration
	withSleep := tmdb.WithSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	fresh, err := tmdb.New(tmdb.Config{
		APIKey:   "test-key",
		BaseURL:  server.URL,
		CacheDir: dir,
		CacheTTL: time.Hour,
	}, withSleep)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := context.Background()
	_, _ = fresh.LookupMovie(ctx, "Capped", 0)
	_, _ = fresh.LookupMovie(ctx, "Defaulted", 0)

	if len(slept) < 2 {
		t.Fatalf("expected two backoff sleeps, got %v", slept)
	}
	if slept[0] != 60*time.Second {
		t.Fatalf("Retry-After 120 must cap at 60s, slept %v", slept[0])
	}
	if slept[1] != 10*time.Second {
		t.Fatalf("absent Retry-After must default to 10s, slept %v", slept[1])
	}
}

func TestGenreMapFetchedOncePerKind(t *testing.T) {
	var genreFetches int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/genre/tv/list":
			genreFetches++
			fmt.Fprint(w, `{"genres":[{"id":18,"name":"Drama"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newClient(t, t.TempDir(), server.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		table, err := client.GenreMap(ctx, tmdb.MediaTV)
		if err != nil {
			t.Fatalf("GenreMap returned error: %v", err)
		}
		if table["18"] != "Drama" {
			t.Fatalf("unexpected table %v", table)
		}
	}
	if genreFetches != 1 {
		t.Fatalf("expected one genre fetch, got %d", genreFetches)
	}
}

func TestFlushWritesSingleSharedFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/genre/movie/list":
			fmt.Fprint(w, genreBody)
		case "/search/movie":
			fmt.Fprint(w, searchBody)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	client := newClient(t, dir, server.URL)

	if _, err := client.LookupMovie(context.Background(), "Inception", 2010); err != nil {
		t.Fatalf("LookupMovie: %v", err)
	}

	path := filepath.Join(dir, "tmdb_cache.json")
	if _, err := os.Stat(path); err == nil {
		t.Fatal("cache file must not exist before Flush")
	}

	client.Flush()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cache file: %v", err)
	}
	var entries map[string]struct {
		TS   float64         `json:"ts"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("decode cache file: %v", err)
	}
	if _, ok := entries["movie:inception:2010"]; !ok {
		t.Fatalf("expected normalized title key, have %v", keys(entries))
	}
	if _, ok := entries["genres:movie"]; !ok {
		t.Fatal("expected reserved genre key in shared file")
	}
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
