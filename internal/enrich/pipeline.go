package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"stalkervod/internal/listing"
	"stalkervod/internal/logging"
	"stalkervod/internal/tmdb"
)

// PortalClient is the portal surface the pipeline needs.
type PortalClient interface {
	Categories(ctx context.Context, kind listing.Kind) ([]listing.Category, error)
	Videos(ctx context.Context, kind listing.Kind, categoryID string) ([]listing.Video, error)
}

// MetadataClient is the TMDB surface the pipeline needs. A nil client
// disables enrichment.
type MetadataClient interface {
	LookupMovie(ctx context.Context, title string, year int) (*tmdb.Metadata, error)
	LookupSeries(ctx context.Context, title string, year int) (*tmdb.Metadata, error)
	Flush()
}

// Options selects which metadata fields get copied onto videos.
type Options struct {
	UsePoster bool
	UseFanart bool
	UsePlot   bool
	UseRating bool
	UseGenres bool
}

// Config wires the pipeline dependencies.
type Config struct {
	Portal        PortalClient
	Cache         *listing.Cache
	Guard         *listing.Guard
	Metadata      MetadataClient
	ServerAddress string
	MACAddress    string
	// DisableCache makes every listing read hit the portal and skips the
	// store-back, for setups that opt out of the on-disk cache.
	DisableCache bool
	Options      Options
	Logger       *slog.Logger
}

// Pipeline refreshes the portal listing cache and enriches videos with TMDB
// metadata. Listings come from the cache when fresh and from the portal
// otherwise; every portal fetch is stored back.
type Pipeline struct {
	portal   PortalClient
	cache    *listing.Cache
	guard    *listing.Guard
	metadata MetadataClient
	server   string
	mac      string
	noCache  bool
	opts     Options
	logger   *slog.Logger
}

// Result summarizes one refresh run.
type Result struct {
	PortalChanged bool
	Categories    int
	Videos        int
	FromCache     int
	FromPortal    int
}

// New creates a refresh/enrichment pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Portal == nil {
		return nil, errors.New("enrich: portal client required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("enrich: listing cache required")
	}
	if cfg.Guard == nil {
		return nil, errors.New("enrich: portal guard required")
	}
	return &Pipeline{
		portal:   cfg.Portal,
		cache:    cfg.Cache,
		guard:    cfg.Guard,
		metadata: cfg.Metadata,
		server:   cfg.ServerAddress,
		mac:      cfg.MACAddress,
		noCache:  cfg.DisableCache,
		opts:     cfg.Options,
		logger:   logging.NewComponentLogger(cfg.Logger, "enrich"),
	}, nil
}

// Refresh reconciles the portal identity, then walks the category list for
// kind and fills the listing cache, fetching from the portal only where the
// cache is missing or stale.
func (p *Pipeline) Refresh(ctx context.Context, kind listing.Kind) (Result, error) {
	var result Result

	changed, err := p.guard.Reconcile(p.server, p.mac)
	if err != nil {
		return result, fmt.Errorf("reconcile portal identity: %w", err)
	}
	result.PortalChanged = changed

	cats, fromCache, err := p.categories(ctx, kind)
	if err != nil {
		return result, err
	}
	result.Categories = len(cats)
	if fromCache {
		result.FromCache++
	} else {
		result.FromPortal++
	}

	for _, cat := range cats {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		videos, cached, err := p.videos(ctx, kind, cat.ID)
		if err != nil {
			return result, fmt.Errorf("category %s: %w", cat.ID, err)
		}
		result.Videos += len(videos)
		if cached {
			result.FromCache++
		} else {
			result.FromPortal++
		}
	}

	p.logger.Info("listing refresh complete",
		logging.String("kind", kind.String()),
		logging.Int("categories", result.Categories),
		logging.Int("videos", result.Videos),
		logging.Int("portal_fetches", result.FromPortal))
	return result, nil
}

// Categories returns the category list for kind, from cache when fresh.
func (p *Pipeline) Categories(ctx context.Context, kind listing.Kind) ([]listing.Category, error) {
	cats, _, err := p.categories(ctx, kind)
	return cats, err
}

// EnrichCategory enriches one category's video list and stores the result
// back into the listing cache. It returns the number of videos that matched
// a TMDB entry. A rate-limit abort still stores the partial result.
//
// Unlike Enrich it does not flush the metadata cache: callers walking many
// categories call Flush once after the whole run, so the shared cache file
// is written a single time per listing.
func (p *Pipeline) EnrichCategory(ctx context.Context, kind listing.Kind, categoryID string) (int, error) {
	videos, _, err := p.videos(ctx, kind, categoryID)
	if err != nil {
		return 0, err
	}
	enriched, enrichErr := p.enrich(ctx, kind, videos)
	if !p.noCache {
		p.cache.SetVideos(kind, categoryID, enriched)
	}
	matched := 0
	for _, video := range enriched {
		if video.TMDBID != "" {
			matched++
		}
	}
	return matched, enrichErr
}

// Videos returns the video list for one category, from cache when fresh.
func (p *Pipeline) Videos(ctx context.Context, kind listing.Kind, categoryID string) ([]listing.Video, error) {
	videos, _, err := p.videos(ctx, kind, categoryID)
	return videos, err
}

// Reconcile checks the portal identity without touching any listing,
// wiping portal-scoped cache files when the portal changed.
func (p *Pipeline) Reconcile() (bool, error) {
	return p.guard.Reconcile(p.server, p.mac)
}

// CategoriesAreStale reports whether the category record for kind needs a
// refresh. The service probe uses this without decoding the list.
func (p *Pipeline) CategoriesAreStale(kind listing.Kind) bool {
	return p.cache.CategoriesAreStale(kind)
}

// Enrich fills TMDB metadata into videos according to the configured field
// toggles. TV channels are never enriched. The batch stops early when the
// metadata client reports rate-limit exhaustion; everything resolved so far
// is still flushed to the metadata cache, and the sentinel error is returned
// alongside the partially enriched slice.
func (p *Pipeline) Enrich(ctx context.Context, kind listing.Kind, videos []listing.Video) ([]listing.Video, error) {
	if p.metadata == nil || kind == listing.KindTV || len(videos) == 0 {
		return videos, nil
	}
	defer p.metadata.Flush()
	return p.enrich(ctx, kind, videos)
}

// Flush persists the metadata cache. A no-op without a metadata client.
func (p *Pipeline) Flush() {
	if p.metadata != nil {
		p.metadata.Flush()
	}
}

func (p *Pipeline) enrich(ctx context.Context, kind listing.Kind, videos []listing.Video) ([]listing.Video, error) {
	if p.metadata == nil || kind == listing.KindTV || len(videos) == 0 {
		return videos, nil
	}

	for i := range videos {
		if err := ctx.Err(); err != nil {
			return videos, err
		}
		meta, err := p.lookup(ctx, kind, videos[i])
		if err != nil {
			if errors.Is(err, tmdb.ErrRateLimited) {
				p.logger.Warn("metadata lookups rate limited, stopping batch",
					logging.Int("enriched", i))
				return videos, err
			}
			p.logger.Warn("metadata lookup failed",
				logging.String("title", videos[i].Name),
				logging.Error(err))
			continue
		}
		if meta == nil {
			continue
		}
		p.apply(&videos[i], meta)
	}
	return videos, nil
}

func (p *Pipeline) lookup(ctx context.Context, kind listing.Kind, video listing.Video) (*tmdb.Metadata, error) {
	year := parseYear(video.Year)
	if kind == listing.KindSeries {
		return p.metadata.LookupSeries(ctx, video.Name, year)
	}
	return p.metadata.LookupMovie(ctx, video.Name, year)
}

func (p *Pipeline) apply(video *listing.Video, meta *tmdb.Metadata) {
	video.TMDBID = meta.TMDBID
	if p.opts.UsePoster && meta.Poster != "" {
		video.Poster = meta.Poster
	}
	if p.opts.UseFanart && meta.Fanart != "" {
		video.Fanart = meta.Fanart
	}
	if p.opts.UsePlot && meta.Plot != "" {
		video.Plot = meta.Plot
	}
	if p.opts.UseRating {
		video.Rating = meta.Rating
		video.Votes = meta.Votes
	}
	if p.opts.UseGenres && len(meta.Genres) > 0 {
		video.Genres = meta.Genres
	}
}

func (p *Pipeline) categories(ctx context.Context, kind listing.Kind) ([]listing.Category, bool, error) {
	if !p.noCache {
		if cats, ok := p.cache.Categories(kind); ok {
			return cats, true, nil
		}
	}
	cats, err := p.portal.Categories(ctx, kind)
	if err != nil {
		return nil, false, fmt.Errorf("fetch categories: %w", err)
	}
	if !p.noCache {
		p.cache.SetCategories(kind, cats)
	}
	return cats, false, nil
}

func (p *Pipeline) videos(ctx context.Context, kind listing.Kind, categoryID string) ([]listing.Video, bool, error) {
	if !p.noCache {
		if videos, ok := p.cache.Videos(kind, categoryID); ok {
			return videos, true, nil
		}
	}
	videos, err := p.portal.Videos(ctx, kind, categoryID)
	if err != nil {
		return nil, false, fmt.Errorf("fetch videos: %w", err)
	}
	if !p.noCache {
		p.cache.SetVideos(kind, categoryID, videos)
	}
	return videos, false, nil
}

// parseYear extracts a leading four digit year from portal year strings such
// as "2010" or "2010-05-01". Anything else yields zero, which the metadata
// client treats as "no year filter".
func parseYear(value string) int {
	if len(value) < 4 {
		return 0
	}
	year, err := strconv.Atoi(value[:4])
	if err != nil {
		return 0
	}
	return year
}
