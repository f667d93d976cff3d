package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePortal(); err != nil {
		return err
	}
	if err := c.validateTMDB(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePortal() error {
	if c.Portal.ServerAddress == "" {
		return nil // portal unconfigured is valid; commands that need it check PortalConfigured
	}
	parsed, err := url.Parse(c.Portal.ServerAddress)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("portal.server_address %q must be an absolute URL", c.Portal.ServerAddress)
	}
	if c.Portal.MACAddress == "" {
		return errors.New("portal.mac_address must be set when portal.server_address is configured")
	}
	return nil
}

func (c *Config) validateTMDB() error {
	if !c.TMDB.Enabled {
		return nil
	}
	if strings.TrimSpace(c.TMDB.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/stalkervod/config.toml"
		}
		return fmt.Errorf("tmdb.api_key is required when tmdb.enabled is true. Set TMDB_API_KEY env var or edit %s (create with 'stalkervod config init')", defaultPath)
	}
	return nil
}

// PortalConfigured reports whether both the server address and device MAC are set.
func (c *Config) PortalConfigured() bool {
	return c.Portal.ServerAddress != "" && c.Portal.MACAddress != ""
}
