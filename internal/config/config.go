package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Portal contains connection settings for the Stalker portal.
type Portal struct {
	ServerAddress          string `toml:"server_address"`
	MACAddress             string `toml:"mac_address"`
	SerialNumber           string `toml:"serial_number"`
	DeviceID               string `toml:"device_id"`
	DeviceID2              string `toml:"device_id_2"`
	Signature              string `toml:"signature"`
	AlternativeContextPath bool   `toml:"alternative_context_path"`
	MaxPageLimit           int    `toml:"max_page_limit"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
}

// Cache contains configuration for the on-disk listing cache.
type Cache struct {
	Enabled        bool   `toml:"enabled"`
	Dir            string `toml:"dir"`
	ListingTTLDays int    `toml:"listing_ttl_days"`
}

// TMDB contains configuration for The Movie Database enrichment.
type TMDB struct {
	Enabled   bool   `toml:"enabled"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Language  string `toml:"language"`
	CacheDays int    `toml:"cache_days"`
	UsePoster bool   `toml:"use_poster"`
	UseFanart bool   `toml:"use_fanart"`
	UsePlot   bool   `toml:"use_plot"`
	UseRating bool   `toml:"use_rating"`
	UseGenres bool   `toml:"use_genres"`
}

// Service contains timing settings for the background service loop.
type Service struct {
	StartupDelaySeconds      int `toml:"startup_delay_seconds"`
	ProbeIntervalSeconds     int `toml:"probe_interval_seconds"`
	KeepaliveIntervalSeconds int `toml:"keepalive_interval_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values.
//
// Configuration sections by subsystem:
//   - Portal: Stalker portal address and device identity
//   - Cache: on-disk listing cache location and TTL
//   - TMDB: metadata enrichment settings and field toggles
//   - Service: background service timing
//   - Logging: log format and level
type Config struct {
	Portal  Portal  `toml:"portal"`
	Cache   Cache   `toml:"cache"`
	TMDB    TMDB    `toml:"tmdb"`
	Service Service `toml:"service"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/stalkervod/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and TTL values clamped to safe ranges.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the cache directory tree.
func (c *Config) EnsureDirectories() error {
	if strings.TrimSpace(c.Cache.Dir) == "" {
		return errors.New("cache.dir is empty")
	}
	if err := os.MkdirAll(c.Cache.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory %q: %w", c.Cache.Dir, err)
	}
	return nil
}

// ListingTTL converts the configured listing TTL into a duration.
// Zero means the cache never expires.
func (c *Config) ListingTTL() time.Duration {
	return time.Duration(c.Cache.ListingTTLDays) * 24 * time.Hour
}

// MetadataTTL converts the configured TMDB cache TTL into a duration.
// Zero means cached metadata never expires.
func (c *Config) MetadataTTL() time.Duration {
	return time.Duration(c.TMDB.CacheDays) * 24 * time.Hour
}

// PortalTimeout returns the request timeout for portal calls.
func (c *Config) PortalTimeout() time.Duration {
	return time.Duration(c.Portal.TimeoutSeconds) * time.Second
}

// ExpandPath resolves a leading ~ and relative segments in a user supplied
// path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
