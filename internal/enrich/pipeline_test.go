package enrich

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"stalkervod/internal/listing"
	"stalkervod/internal/logging"
	"stalkervod/internal/tmdb"
)

type fakePortalClient struct {
	categories    []listing.Category
	videos        map[string][]listing.Video
	categoryCalls int
	videoCalls    int
}

func (f *fakePortalClient) Categories(_ context.Context, _ listing.Kind) ([]listing.Category, error) {
	f.categoryCalls++
	return f.categories, nil
}

func (f *fakePortalClient) Videos(_ context.Context, _ listing.Kind, categoryID string) ([]listing.Video, error) {
	f.videoCalls++
	return f.videos[categoryID], nil
}

type fakeMetadataClient struct {
	results   map[string]*tmdb.Metadata
	lookups   []string
	flushes   int
	failAfter int
}

func (f *fakeMetadataClient) lookup(title string) (*tmdb.Metadata, error) {
	f.lookups = append(f.lookups, title)
	if f.failAfter > 0 && len(f.lookups) > f.failAfter {
		return nil, tmdb.ErrRateLimited
	}
	return f.results[title], nil
}

func (f *fakeMetadataClient) LookupMovie(_ context.Context, title string, _ int) (*tmdb.Metadata, error) {
	return f.lookup(title)
}

func (f *fakeMetadataClient) LookupSeries(_ context.Context, title string, _ int) (*tmdb.Metadata, error) {
	return f.lookup(title)
}

func (f *fakeMetadataClient) Flush() { f.flushes++ }

func newTestPipeline(t *testing.T, dir string, portal *fakePortalClient, metadata MetadataClient, opts Options) *Pipeline {
	t.Helper()
	logger := logging.NewNop()
	pipeline, err := New(Config{
		Portal:        portal,
		Cache:         listing.NewCache(dir, 1, logger),
		Guard:         listing.NewGuard(dir, logger),
		Metadata:      metadata,
		ServerAddress: "http://portal.example.com/c/",
		MACAddress:    "00:1A:79:AA:BB:CC",
		Options:       opts,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return pipeline
}

func TestRefreshFillsCacheAndReusesIt(t *testing.T) {
	portal := &fakePortalClient{
		categories: []listing.Category{{ID: "1", Title: "Action"}, {ID: "2", Title: "Drama"}},
		videos: map[string][]listing.Video{
			"1": {{ID: "10", Name: "Heat", Year: "1995"}},
			"2": {{ID: "20", Name: "Up", Year: "2009"}, {ID: "21", Name: "Brazil", Year: "1985"}},
		},
	}
	dir := t.TempDir()
	pipeline := newTestPipeline(t, dir, portal, nil, Options{})

	result, err := pipeline.Refresh(context.Background(), listing.KindVOD)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if result.Categories != 2 || result.Videos != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.FromPortal != 3 || result.FromCache != 0 {
		t.Fatalf("first run should hit the portal for everything: %+v", result)
	}

	result, err = pipeline.Refresh(context.Background(), listing.KindVOD)
	if err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if result.FromPortal != 0 || result.FromCache != 3 {
		t.Fatalf("second run should be served from cache: %+v", result)
	}
	if portal.categoryCalls != 1 || portal.videoCalls != 2 {
		t.Fatalf("portal called again: categories=%d videos=%d", portal.categoryCalls, portal.videoCalls)
	}
}

func TestRefreshReportsPortalChange(t *testing.T) {
	portal := &fakePortalClient{
		categories: []listing.Category{{ID: "1", Title: "Action"}},
		videos:     map[string][]listing.Video{"1": {{ID: "10", Name: "Heat"}}},
	}
	dir := t.TempDir()
	logger := logging.NewNop()

	first := newTestPipeline(t, dir, portal, nil, Options{})
	if _, err := first.Refresh(context.Background(), listing.KindVOD); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	second, err := New(Config{
		Portal:        portal,
		Cache:         listing.NewCache(dir, 1, logger),
		Guard:         listing.NewGuard(dir, logger),
		ServerAddress: "http://other.example.com/c/",
		MACAddress:    "00:1A:79:AA:BB:CC",
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := second.Refresh(context.Background(), listing.KindVOD)
	if err != nil {
		t.Fatalf("Refresh after portal change failed: %v", err)
	}
	if !result.PortalChanged {
		t.Fatal("expected PortalChanged after server address change")
	}
	if result.FromPortal != 2 {
		t.Fatalf("wiped cache should force portal fetches: %+v", result)
	}
}

func TestRefreshWithCacheDisabledAlwaysHitsPortal(t *testing.T) {
	portal := &fakePortalClient{
		categories: []listing.Category{{ID: "1", Title: "Action"}},
		videos:     map[string][]listing.Video{"1": {{ID: "10", Name: "Heat"}}},
	}
	dir := t.TempDir()
	logger := logging.NewNop()
	pipeline, err := New(Config{
		Portal:        portal,
		Cache:         listing.NewCache(dir, 1, logger),
		Guard:         listing.NewGuard(dir, logger),
		ServerAddress: "http://portal.example.com/c/",
		MACAddress:    "00:1A:79:AA:BB:CC",
		DisableCache:  true,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		result, err := pipeline.Refresh(context.Background(), listing.KindVOD)
		if err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if result.FromCache != 0 {
			t.Fatalf("disabled cache must never serve hits: %+v", result)
		}
	}
	if portal.categoryCalls != 2 {
		t.Fatalf("expected portal fetch on every run, got %d", portal.categoryCalls)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "stalker_*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("disabled cache must not write listing files, found %v", matches)
	}
}

func TestEnrichAppliesConfiguredFields(t *testing.T) {
	meta := &tmdb.Metadata{
		TMDBID: "27205",
		Plot:   "A thief who steals corporate secrets.",
		Rating: 8.4,
		Votes:  33000,
		Poster: "https://image.tmdb.org/t/p/w500/inception.jpg",
		Fanart: "https://image.tmdb.org/t/p/w1280/inception.jpg",
		Genres: []string{"Action", "Science Fiction"},
	}
	metadata := &fakeMetadataClient{results: map[string]*tmdb.Metadata{"Inception": meta}}
	pipeline := newTestPipeline(t, t.TempDir(), &fakePortalClient{}, metadata, Options{
		UsePoster: true,
		UsePlot:   true,
		UseRating: true,
	})

	videos, err := pipeline.Enrich(context.Background(), listing.KindVOD,
		[]listing.Video{{ID: "1", Name: "Inception", Year: "2010-07-16"}})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	got := videos[0]
	if got.TMDBID != "27205" || got.Poster != meta.Poster || got.Plot != meta.Plot {
		t.Fatalf("enabled fields not applied: %+v", got)
	}
	if got.Rating != 8.4 || got.Votes != 33000 {
		t.Fatalf("rating not applied: %+v", got)
	}
	if got.Fanart != "" || len(got.Genres) != 0 {
		t.Fatalf("disabled fields should stay empty: %+v", got)
	}
	if metadata.flushes != 1 {
		t.Fatalf("expected exactly one flush, got %d", metadata.flushes)
	}
}

func TestEnrichStopsOnRateLimitAndStillFlushes(t *testing.T) {
	metadata := &fakeMetadataClient{
		results: map[string]*tmdb.Metadata{
			"Heat": {TMDBID: "949", Poster: "https://image.tmdb.org/t/p/w500/heat.jpg"},
		},
		failAfter: 1,
	}
	pipeline := newTestPipeline(t, t.TempDir(), &fakePortalClient{}, metadata, Options{UsePoster: true})

	videos, err := pipeline.Enrich(context.Background(), listing.KindVOD, []listing.Video{
		{ID: "1", Name: "Heat", Year: "1995"},
		{ID: "2", Name: "Ronin", Year: "1998"},
		{ID: "3", Name: "Thief", Year: "1981"},
	})
	if !errors.Is(err, tmdb.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if videos[0].TMDBID != "949" {
		t.Fatalf("video before the limit should be enriched: %+v", videos[0])
	}
	if videos[2].TMDBID != "" {
		t.Fatalf("videos after the limit should be untouched: %+v", videos[2])
	}
	if len(metadata.lookups) != 2 {
		t.Fatalf("expected lookups to stop after the sentinel, got %v", metadata.lookups)
	}
	if metadata.flushes != 1 {
		t.Fatalf("aborted batch must still flush once, got %d", metadata.flushes)
	}
}

func TestEnrichCategoryDefersFlushToCaller(t *testing.T) {
	metadata := &fakeMetadataClient{
		results: map[string]*tmdb.Metadata{
			"Heat": {TMDBID: "949"},
			"Up":   {TMDBID: "14160"},
		},
	}
	portal := &fakePortalClient{
		videos: map[string][]listing.Video{
			"1": {{ID: "10", Name: "Heat", Year: "1995"}},
			"2": {{ID: "20", Name: "Up", Year: "2009"}},
		},
	}
	pipeline := newTestPipeline(t, t.TempDir(), portal, metadata, Options{})

	for _, categoryID := range []string{"1", "2"} {
		if _, err := pipeline.EnrichCategory(context.Background(), listing.KindVOD, categoryID); err != nil {
			t.Fatalf("EnrichCategory %s failed: %v", categoryID, err)
		}
	}
	if metadata.flushes != 0 {
		t.Fatalf("per-category enrichment must not flush, got %d flushes", metadata.flushes)
	}

	pipeline.Flush()
	if metadata.flushes != 1 {
		t.Fatalf("expected one flush for the whole run, got %d", metadata.flushes)
	}

	// Flush on a pipeline without a metadata client is a no-op.
	bare := newTestPipeline(t, t.TempDir(), &fakePortalClient{}, nil, Options{})
	bare.Flush()
}

func TestEnrichSkipsTVAndMissingClient(t *testing.T) {
	metadata := &fakeMetadataClient{}
	pipeline := newTestPipeline(t, t.TempDir(), &fakePortalClient{}, metadata, Options{UsePoster: true})

	videos, err := pipeline.Enrich(context.Background(), listing.KindTV,
		[]listing.Video{{ID: "1", Name: "Channel One"}})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if len(metadata.lookups) != 0 || metadata.flushes != 0 {
		t.Fatalf("tv listings should never reach the metadata client: %+v", metadata)
	}
	if videos[0].TMDBID != "" {
		t.Fatalf("tv video should be untouched: %+v", videos[0])
	}

	bare := newTestPipeline(t, t.TempDir(), &fakePortalClient{}, nil, Options{})
	if _, err := bare.Enrich(context.Background(), listing.KindVOD,
		[]listing.Video{{ID: "1", Name: "Heat"}}); err != nil {
		t.Fatalf("nil metadata client should be a no-op: %v", err)
	}
}

func TestParseYear(t *testing.T) {
	cases := map[string]int{
		"2010":       2010,
		"2010-07-16": 2010,
		"":           0,
		"n/a":        0,
		"99":         0,
	}
	for input, want := range cases {
		if got := parseYear(input); got != want {
			t.Fatalf("parseYear(%q) = %d, want %d", input, got, want)
		}
	}
}
