package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
)

func (c *Config) normalize() error {
	if err := c.normalizeCache(); err != nil {
		return err
	}
	c.normalizePortal()
	c.normalizeTMDB()
	c.normalizeService()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeCache() error {
	if strings.TrimSpace(c.Cache.Dir) == "" {
		c.Cache.Dir = defaultCacheDir
	}
	var err error
	if c.Cache.Dir, err = expandPath(c.Cache.Dir); err != nil {
		return fmt.Errorf("cache.dir: %w", err)
	}
	// TTL of 0 means "never expire"; a negative value is a configuration
	// fault and clamps to one day. The same rule applies to tmdb.cache_days.
	if c.Cache.ListingTTLDays < 0 {
		c.Cache.ListingTTLDays = 1
	}
	return nil
}

func (c *Config) normalizePortal() {
	c.Portal.ServerAddress = strings.TrimSpace(c.Portal.ServerAddress)
	c.Portal.MACAddress = strings.TrimSpace(c.Portal.MACAddress)
	c.Portal.SerialNumber = strings.TrimSpace(c.Portal.SerialNumber)
	if c.Portal.MaxPageLimit <= 0 {
		c.Portal.MaxPageLimit = defaultPortalMaxPageLimit
	}
	if c.Portal.TimeoutSeconds <= 0 {
		c.Portal.TimeoutSeconds = defaultPortalTimeoutSeconds
	}
}

func (c *Config) normalizeTMDB() {
	if c.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.TMDB.APIKey = value
		}
	}
	c.TMDB.BaseURL = strings.TrimSpace(c.TMDB.BaseURL)
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.Language = canonicalLanguage(c.TMDB.Language)
	if c.TMDB.CacheDays < 0 {
		c.TMDB.CacheDays = 1
	}
}

func (c *Config) normalizeService() {
	if c.Service.StartupDelaySeconds < 0 {
		c.Service.StartupDelaySeconds = defaultStartupDelaySeconds
	}
	if c.Service.ProbeIntervalSeconds <= 0 {
		c.Service.ProbeIntervalSeconds = defaultProbeIntervalSeconds
	}
	if c.Service.KeepaliveIntervalSeconds <= 0 {
		c.Service.KeepaliveIntervalSeconds = defaultKeepaliveIntervalSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// canonicalLanguage validates a BCP 47 tag such as "de-DE", falling back to
// the default when the tag does not parse.
func canonicalLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return defaultTMDBLanguage
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return defaultTMDBLanguage
	}
	return parsed.String()
}
