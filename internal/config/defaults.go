package config

const (
	defaultCacheDir                 = "~/.local/share/stalkervod/cache"
	defaultListingTTLDays           = 1
	defaultTMDBBaseURL              = "https://api.themoviedb.org/3"
	defaultTMDBLanguage             = "en-US"
	defaultTMDBCacheDays            = 30
	defaultPortalMaxPageLimit       = 2
	defaultPortalTimeoutSeconds     = 7
	defaultStartupDelaySeconds      = 5
	defaultProbeIntervalSeconds     = 600
	defaultKeepaliveIntervalSeconds = 30
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Portal: Portal{
			MaxPageLimit:   defaultPortalMaxPageLimit,
			TimeoutSeconds: defaultPortalTimeoutSeconds,
		},
		Cache: Cache{
			Enabled:        true,
			Dir:            defaultCacheDir,
			ListingTTLDays: defaultListingTTLDays,
		},
		TMDB: TMDB{
			BaseURL:   defaultTMDBBaseURL,
			Language:  defaultTMDBLanguage,
			CacheDays: defaultTMDBCacheDays,
			UsePoster: true,
			UseFanart: true,
			UsePlot:   true,
			UseRating: true,
			UseGenres: true,
		},
		Service: Service{
			StartupDelaySeconds:      defaultStartupDelaySeconds,
			ProbeIntervalSeconds:     defaultProbeIntervalSeconds,
			KeepaliveIntervalSeconds: defaultKeepaliveIntervalSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
