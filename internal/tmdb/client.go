package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stalkervod/internal/logging"
	"stalkervod/internal/ratelimit"
)

const (
	defaultBaseURL     = "https://api.themoviedb.org/3"
	defaultHTTPTimeout = 10 * time.Second
	cacheFileName      = "tmdb_cache.json"

	// Consecutive 429 responses tolerated before the client goes inert.
	abortThreshold = 3

	defaultRetryAfter = 10 * time.Second
	maxRetryAfter     = 60 * time.Second
)

// ErrRateLimited reports that the client saw abortThreshold consecutive 429
// responses and will make no further network calls. It is surfaced exactly
// once, by the call that triggered the transition; a fresh client must be
// constructed to retry.
var ErrRateLimited = errors.New("tmdb: rate limit exhausted, lookups aborted")

// Config describes the metadata client configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	Language   string
	CacheDir   string
	CacheTTL   time.Duration
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Client looks up movie and TV metadata through a rate-limited TMDB search,
// backed by a persisted positive/negative cache and shared genre tables.
//
// The client owns its mutable state (recent request timestamps, the
// consecutive-429 counter, the aborted flag); independent clients never
// cross-contaminate. It is built for one enrichment flow at a time.
type Client struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	cache    *store
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	consecutive429 int
	aborted        bool
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the time source for cache stamps and TTL checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSleep overrides the backoff sleep, used by tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLimiter overrides the default 35-per-10s admission gate.
func WithLimiter(limiter *ratelimit.Limiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// New creates a metadata client.
func New(cfg Config, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("tmdb: api key required")
	}
	if strings.TrimSpace(cfg.CacheDir) == "" {
		return nil, errors.New("tmdb: cache dir required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := logging.NewComponentLogger(cfg.Logger, "tmdb")

	c := &Client{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(base, "/"),
		language: strings.TrimSpace(cfg.Language),
		http:     httpClient,
		limiter:  ratelimit.New(ratelimit.DefaultMaxRequests, ratelimit.DefaultWindow),
		logger:   logger,
		now:      time.Now,
		sleep:    ratelimit.SleepWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = newStore(filepath.Join(cfg.CacheDir, cacheFileName), cfg.CacheTTL, c.now, logger)
	return c, nil
}

// Aborted reports whether the client has gone inert after consecutive rate
// limit responses. Callers running a batch should check it between items.
func (c *Client) Aborted() bool { return c.aborted }

// LookupMovie searches TMDB for a movie. A cached outcome, positive or
// negative, short-circuits without a network call; nil with a nil error
// means no match. Year 0 means unknown.
func (c *Client) LookupMovie(ctx context.Context, title string, year int) (*Metadata, error) {
	return c.lookup(ctx, MediaMovie, title, year)
}

// LookupSeries searches TMDB for a TV show, with the same contract as
// LookupMovie.
func (c *Client) LookupSeries(ctx context.Context, title string, year int) (*Metadata, error) {
	return c.lookup(ctx, MediaTV, title, year)
}

// Flush persists the in-memory cache in a single write. Call once after a
// batch of lookups, never per item.
func (c *Client) Flush() {
	c.cache.flush()
}

func (c *Client) lookup(ctx context.Context, kind MediaKind, title string, year int) (*Metadata, error) {
	if strings.TrimSpace(title) == "" {
		return nil, nil
	}
	key := cacheKey(kind, title, year)
	if raw, found := c.cache.lookup(key); found {
		if isJSONNull(raw) {
			return nil, nil // confirmed no-match, do not re-query
		}
		var meta Metadata
		if err := json.Unmarshal(raw, &meta); err == nil {
			return &meta, nil
		}
		c.logger.Warn("cached metadata malformed, refetching",
			logging.String("key", key))
	}
	if c.aborted {
		return nil, nil
	}

	genres, err := c.GenreMap(ctx, kind)
	if err != nil {
		return nil, err
	}

	result, found, err := c.search(ctx, kind, title, year)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil // transient failure, retry on a future pass
	}
	if result == nil {
		c.cache.put(key, nil)
		return nil, nil
	}

	meta := parseResult(kind, *result, genres)
	c.cache.put(key, meta)
	return &meta, nil
}

// GenreMap returns the id-to-name genre table for kind, fetching it at most
// once per cache lifetime. A transient fetch failure yields an empty map.
func (c *Client) GenreMap(ctx context.Context, kind MediaKind) (map[string]string, error) {
	key := genreKeyMovie
	if kind == MediaTV {
		key = genreKeyTV
	}
	if raw, found := c.cache.lookup(key); found && !isJSONNull(raw) {
		var table map[string]string
		if err := json.Unmarshal(raw, &table); err == nil {
			return table, nil
		}
	}
	if c.aborted {
		return nil, nil
	}

	params := url.Values{}
	body, ok, err := c.get(ctx, fmt.Sprintf("/genre/%s/list", kind), params)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var payload genreListResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn("genre list decode failed", logging.Error(err))
		return nil, nil
	}
	table, err := buildGenreTable(payload)
	if err != nil {
		return nil, nil
	}
	c.cache.put(key, table)
	return table, nil
}

func buildGenreTable(payload genreListResponse) (map[string]string, error) {
	if len(payload.Genres) == 0 {
		return nil, errors.New("empty genre list")
	}
	table := make(map[string]string, len(payload.Genres))
	for _, genre := range payload.Genres {
		table[strconv.FormatInt(genre.ID, 10)] = genre.Name
	}
	return table, nil
}

// search runs one rate-limited search request. found=false means a
// transient failure; a found nil result means the portal title matched
// nothing (cacheable negative).
func (c *Client) search(ctx context.Context, kind MediaKind, title string, year int) (*searchResult, bool, error) {
	params := url.Values{}
	params.Set("query", strings.TrimSpace(title))
	if kind == MediaMovie {
		params.Set("include_adult", "false")
		if year > 0 {
			params.Set("year", strconv.Itoa(year))
		}
	} else if year > 0 {
		params.Set("first_air_date_year", strconv.Itoa(year))
	}

	body, ok, err := c.get(ctx, fmt.Sprintf("/search/%s", kind), params)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn("search response decode failed",
			logging.String("title", title),
			logging.Error(err))
		return nil, false, nil
	}
	if len(payload.Results) == 0 {
		return nil, true, nil
	}
	return &payload.Results[0], true, nil
}

// get performs one outbound request under the admission gate and drives the
// consecutive-429 state machine. ok=false with a nil error is "no result
// this attempt"; ErrRateLimited is returned exactly once, when the abort
// threshold is crossed.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, bool, error) {
	if c.aborted {
		return nil, false, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, false, fmt.Errorf("tmdb: parse url: %w", err)
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("tmdb: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			logging.String("path", path),
			logging.Error(err))
		return nil, false, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			c.logger.Warn("read response failed", logging.Error(err))
			return nil, false, nil
		}
		c.consecutive429 = 0
		return body, true, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		c.consecutive429++
		delay := retryAfterDelay(resp.Header.Get("Retry-After"))
		c.logger.Warn("rate limited",
			logging.Int("consecutive", c.consecutive429),
			logging.Duration("backoff", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, false, err
		}
		if c.consecutive429 >= abortThreshold {
			c.aborted = true
			return nil, false, ErrRateLimited
		}
		return nil, false, nil

	default:
		c.logger.Warn("unexpected response status",
			logging.String("path", path),
			logging.Int("status", resp.StatusCode))
		return nil, false, nil
	}
}

// retryAfterDelay parses a Retry-After seconds value, defaulting to 10s and
// capping at 60s.
func retryAfterDelay(header string) time.Duration {
	delay := defaultRetryAfter
	if header != "" {
		if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && seconds > 0 {
			delay = time.Duration(seconds) * time.Second
		}
	}
	if delay > maxRetryAfter {
		delay = maxRetryAfter
	}
	return delay
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
