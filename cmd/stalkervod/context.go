package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"stalkervod/internal/config"
	"stalkervod/internal/enrich"
	"stalkervod/internal/listing"
	"stalkervod/internal/logging"
	"stalkervod/internal/portal"
	"stalkervod/internal/tmdb"
)

const lockFileName = "stalkervod.lock"

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Writer: os.Stderr,
		})
	})
	return c.logger, c.loggerErr
}

// acquireCacheLock takes the per-cache flock so two processes never mutate
// the same cache root concurrently. The caller must invoke the returned
// release function.
func (c *commandContext) acquireCacheLock() (func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(cfg.Cache.Dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another stalkervod instance is using this cache")
	}
	return func() { _ = lock.Unlock() }, nil
}

func (c *commandContext) buildPortal() (*portal.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.PortalConfigured() {
		return nil, errors.New("portal is not configured; set portal.server_address and portal.mac_address")
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return portal.New(portal.Config{
		ServerAddress:          cfg.Portal.ServerAddress,
		MACAddress:             cfg.Portal.MACAddress,
		SerialNumber:           cfg.Portal.SerialNumber,
		DeviceID:               cfg.Portal.DeviceID,
		DeviceID2:              cfg.Portal.DeviceID2,
		Signature:              cfg.Portal.Signature,
		AlternativeContextPath: cfg.Portal.AlternativeContextPath,
		MaxPageLimit:           cfg.Portal.MaxPageLimit,
		Timeout:                cfg.PortalTimeout(),
		StateDir:               cfg.Cache.Dir,
		Logger:                 logger,
	})
}

func (c *commandContext) buildMetadata() (*tmdb.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.TMDB.Enabled {
		return nil, nil
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return tmdb.New(tmdb.Config{
		APIKey:   cfg.TMDB.APIKey,
		BaseURL:  cfg.TMDB.BaseURL,
		Language: cfg.TMDB.Language,
		CacheDir: cfg.Cache.Dir,
		CacheTTL: cfg.MetadataTTL(),
		Logger:   logger,
	})
}

func (c *commandContext) buildPipeline() (*enrich.Pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	portalClient, err := c.buildPortal()
	if err != nil {
		return nil, err
	}
	metadata, err := c.buildMetadata()
	if err != nil {
		return nil, err
	}
	pipelineCfg := enrich.Config{
		Portal:        portalClient,
		Cache:         listing.NewCache(cfg.Cache.Dir, cfg.Cache.ListingTTLDays, logger),
		Guard:         listing.NewGuard(cfg.Cache.Dir, logger),
		ServerAddress: cfg.Portal.ServerAddress,
		MACAddress:    cfg.Portal.MACAddress,
		DisableCache:  !cfg.Cache.Enabled,
		Options: enrich.Options{
			UsePoster: cfg.TMDB.UsePoster,
			UseFanart: cfg.TMDB.UseFanart,
			UsePlot:   cfg.TMDB.UsePlot,
			UseRating: cfg.TMDB.UseRating,
			UseGenres: cfg.TMDB.UseGenres,
		},
		Logger: logger,
	}
	if metadata != nil {
		pipelineCfg.Metadata = metadata
	}
	return enrich.New(pipelineCfg)
}

func parseKindArgs(args []string) ([]listing.Kind, error) {
	if len(args) == 0 {
		return listing.Kinds(), nil
	}
	kinds := make([]listing.Kind, 0, len(args))
	for _, arg := range args {
		kind, err := listing.ParseKind(arg)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
