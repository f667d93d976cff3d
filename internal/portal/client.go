package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stalkervod/internal/listing"
	"stalkervod/internal/logging"
)

const (
	defaultTimeout      = 7 * time.Second
	defaultMaxPageLimit = 2
	maxResponseBytes    = 8 << 20

	// Header values expected by Stalker middleware; portals reject clients
	// that do not present a MAG device signature.
	stbUserAgent = "Mozilla/5.0 (QtEmbedded; U; Linux; C) " +
		"AppleWebKit/533.3 (KHTML, like Gecko) " +
		"MAG200 stbapp ver: 2 rev: 250 Safari/533.3"
	stbModelHeader = "Model: MAG250; Link: WiFi"
)

// Config describes the portal client configuration.
type Config struct {
	ServerAddress          string
	MACAddress             string
	SerialNumber           string
	DeviceID               string
	DeviceID2              string
	Signature              string
	AlternativeContextPath bool
	MaxPageLimit           int
	Timeout                time.Duration
	StateDir               string
	Logger                 *slog.Logger
	HTTPClient             *http.Client
}

// Client speaks the Stalker portal protocol: handshake, category and video
// listings, and the playback watchdog ping. The handshake token persists
// under the storage root so restarts reuse the session.
type Client struct {
	portalURL     string
	serverAddress string
	mac           string
	serialNumber  string
	deviceID      string
	deviceID2     string
	signature     string
	maxPageLimit  int
	http          *http.Client
	tokens        *tokenStore
	logger        *slog.Logger

	token    string
	clientID string
}

// New creates a portal client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.MACAddress) == "" {
		return nil, errors.New("portal: mac address required")
	}
	if strings.TrimSpace(cfg.StateDir) == "" {
		return nil, errors.New("portal: state dir required")
	}
	portalURL, err := PortalURL(cfg.ServerAddress, cfg.AlternativeContextPath)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	maxPages := cfg.MaxPageLimit
	if maxPages <= 0 {
		maxPages = defaultMaxPageLimit
	}
	return &Client{
		portalURL:     portalURL,
		serverAddress: cfg.ServerAddress,
		mac:           strings.TrimSpace(cfg.MACAddress),
		serialNumber:  strings.TrimSpace(cfg.SerialNumber),
		deviceID:      strings.TrimSpace(cfg.DeviceID),
		deviceID2:     strings.TrimSpace(cfg.DeviceID2),
		signature:     strings.TrimSpace(cfg.Signature),
		maxPageLimit:  maxPages,
		http:          httpClient,
		tokens:        newTokenStore(cfg.StateDir),
		logger:        logging.NewComponentLogger(cfg.Logger, "portal"),
	}, nil
}

// PortalURL exposes the derived API endpoint for diagnostics.
func (c *Client) PortalEndpoint() string { return c.portalURL }

// Categories fetches the category list for one listing kind.
func (c *Client) Categories(ctx context.Context, kind listing.Kind) ([]listing.Category, error) {
	params := url.Values{}
	params.Set("type", portalType(kind))
	if kind == listing.KindTV {
		params.Set("action", "get_genres")
	} else {
		params.Set("action", "get_categories")
	}

	body, err := c.call(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		JS []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Alias string `json:"alias"`
		} `json:"js"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("portal: decode categories: %w", err)
	}

	cats := make([]listing.Category, 0, len(payload.JS))
	for _, entry := range payload.JS {
		if entry.ID == "" {
			continue
		}
		cats = append(cats, listing.Category{ID: entry.ID, Title: entry.Title, Alias: entry.Alias})
	}
	return cats, nil
}

// Videos fetches the ordered video list for one category, following
// pagination up to the configured page limit.
func (c *Client) Videos(ctx context.Context, kind listing.Kind, categoryID string) ([]listing.Video, error) {
	var videos []listing.Video
	for page := 1; page <= c.maxPageLimit; page++ {
		batch, total, perPage, err := c.videosPage(ctx, kind, categoryID, page)
		if err != nil {
			return nil, err
		}
		videos = append(videos, batch...)
		if perPage <= 0 || page*perPage >= total || len(batch) == 0 {
			break
		}
	}
	return videos, nil
}

func (c *Client) videosPage(ctx context.Context, kind listing.Kind, categoryID string, page int) ([]listing.Video, int, int, error) {
	params := url.Values{}
	params.Set("type", portalType(kind))
	params.Set("action", "get_ordered_list")
	params.Set("category", categoryID)
	params.Set("genre", categoryID)
	params.Set("p", strconv.Itoa(page))
	params.Set("sortby", "added")

	body, err := c.call(ctx, params)
	if err != nil {
		return nil, 0, 0, err
	}

	var payload struct {
		JS struct {
			TotalItems   intString `json:"total_items"`
			MaxPageItems intString `json:"max_page_items"`
			Data         []struct {
				ID            string          `json:"id"`
				Name          string          `json:"name"`
				Description   string          `json:"description"`
				Year          string          `json:"year"`
				Cmd           string          `json:"cmd"`
				ScreenshotURI string          `json:"screenshot_uri"`
				Added         string          `json:"added"`
				Series        json.RawMessage `json:"series"`
			} `json:"data"`
		} `json:"js"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, 0, 0, fmt.Errorf("portal: decode video page %d: %w", page, err)
	}

	videos := make([]listing.Video, 0, len(payload.JS.Data))
	for _, entry := range payload.JS.Data {
		videos = append(videos, listing.Video{
			ID:            entry.ID,
			Name:          entry.Name,
			Description:   entry.Description,
			Year:          entry.Year,
			Cmd:           entry.Cmd,
			ScreenshotURI: entry.ScreenshotURI,
			Added:         entry.Added,
			SeriesCount:   countSeries(entry.Series),
		})
	}
	return videos, int(payload.JS.TotalItems), int(payload.JS.MaxPageItems), nil
}

// Watchdog sends a keepalive ping so the portal keeps the playback session
// open.
func (c *Client) Watchdog(ctx context.Context) error {
	params := url.Values{}
	params.Set("type", "watchdog")
	params.Set("action", "get_events")
	params.Set("init", "0")
	params.Set("cur_play_type", "1")
	params.Set("event_active_id", "0")

	_, err := c.call(ctx, params)
	return err
}

// call performs one authenticated portal request, handshaking first when no
// token is held and once more when the portal rejects a stale token.
func (c *Client) call(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	body, status, err := c.do(ctx, params, true)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.logger.Debug("portal rejected token, re-handshaking",
			logging.Int("status", status))
		c.token = ""
		if err := c.handshake(ctx); err != nil {
			return nil, err
		}
		body, status, err = c.do(ctx, params, true)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("portal: request returned %d", status)
	}
	return body, nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.token != "" {
		return nil
	}
	state, err := c.tokens.load()
	if err != nil {
		c.logger.Warn("token load failed", logging.Error(err))
	}
	c.clientID = state.ClientID
	if state.Value != "" {
		c.token = state.Value
		return nil
	}
	return c.handshake(ctx)
}

// handshake requests a fresh session token and persists it. When the config
// carries no device_id, the per-installation client id stands in for it so
// the portal sees a stable device across handshakes.
func (c *Client) handshake(ctx context.Context) error {
	state := tokenState{ClientID: c.clientID}
	c.tokens.ensureClientID(&state)
	c.clientID = state.ClientID

	params := url.Values{}
	params.Set("type", "stb")
	params.Set("action", "handshake")
	params.Set("token", "")
	if c.deviceID != "" {
		params.Set("device_id", c.deviceID)
	} else {
		params.Set("device_id", c.clientID)
	}
	if c.deviceID2 != "" {
		params.Set("device_id2", c.deviceID2)
	}
	if c.signature != "" {
		params.Set("signature", c.signature)
	}

	body, status, err := c.do(ctx, params, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("portal: handshake returned %d", status)
	}

	var payload struct {
		JS struct {
			Token string `json:"token"`
		} `json:"js"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("portal: decode handshake: %w", err)
	}
	if payload.JS.Token == "" {
		return errors.New("portal: handshake response missing token")
	}

	c.token = payload.JS.Token
	if err := c.tokens.save(tokenState{Value: c.token, ClientID: c.clientID}); err != nil {
		c.logger.Warn("token persist failed", logging.Error(err))
	}
	return nil
}

func (c *Client) do(ctx context.Context, params url.Values, authorized bool) ([]byte, int, error) {
	endpoint, err := url.Parse(c.portalURL)
	if err != nil {
		return nil, 0, fmt.Errorf("portal: parse endpoint: %w", err)
	}
	query := url.Values{}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	query.Set("JsHttpRequest", "1-xml")
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("portal: build request: %w", err)
	}
	c.applyHeaders(req, authorized)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("portal: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("portal: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) applyHeaders(req *http.Request, authorized bool) {
	req.Header.Set("Cookie", "mac="+c.mac)
	req.Header.Set("User-Agent", stbUserAgent)
	req.Header.Set("X-User-Agent", stbModelHeader)
	// The middleware reads this exact (misspelled) header name.
	req.Header.Set("Referrer", c.serverAddress)
	if c.serialNumber != "" {
		req.Header.Set("SN", c.serialNumber)
	}
	if authorized && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func portalType(kind listing.Kind) string {
	if kind == listing.KindTV {
		return "itv"
	}
	return string(kind)
}

// countSeries extracts the episode count from the portal's series field,
// which may be an array of episode numbers or absent.
func countSeries(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var numbers []json.Number
	if err := json.Unmarshal(raw, &numbers); err != nil {
		return 0
	}
	return len(numbers)
}

// intString tolerates numeric fields that portals serialize as either JSON
// numbers or quoted strings.
type intString int

func (v *intString) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if trimmed == "" || trimmed == "null" {
		*v = 0
		return nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		*v = 0
		return nil
	}
	*v = intString(parsed)
	return nil
}
