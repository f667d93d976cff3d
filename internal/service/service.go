package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stalkervod/internal/enrich"
	"stalkervod/internal/listing"
	"stalkervod/internal/logging"
)

const (
	defaultStartupDelay  = 5 * time.Second
	defaultProbeInterval = 10 * time.Minute
)

// Refresher is the pipeline surface the background service drives.
type Refresher interface {
	Reconcile() (bool, error)
	CategoriesAreStale(kind listing.Kind) bool
	Refresh(ctx context.Context, kind listing.Kind) (enrich.Result, error)
}

// Config wires the background service.
type Config struct {
	Pipeline      Refresher
	Kinds         []listing.Kind
	StartupDelay  time.Duration
	ProbeInterval time.Duration
	Logger        *slog.Logger
}

// Service keeps the listing cache warm in the background: after a short
// startup delay it reconciles the portal identity once, then probes the
// category records on an interval and silently refreshes any stale kind.
type Service struct {
	pipeline      Refresher
	kinds         []listing.Kind
	startupDelay  time.Duration
	probeInterval time.Duration
	logger        *slog.Logger
}

// New creates the background refresh service.
func New(cfg Config) (*Service, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("service: pipeline required")
	}
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = listing.Kinds()
	}
	startupDelay := cfg.StartupDelay
	if startupDelay < 0 {
		startupDelay = defaultStartupDelay
	}
	probeInterval := cfg.ProbeInterval
	if probeInterval <= 0 {
		probeInterval = defaultProbeInterval
	}
	return &Service{
		pipeline:      cfg.Pipeline,
		kinds:         kinds,
		startupDelay:  startupDelay,
		probeInterval: probeInterval,
		logger:        logging.NewComponentLogger(cfg.Logger, "service"),
	}, nil
}

// Run blocks until ctx is cancelled. The first probe happens right after the
// startup delay so a freshly started service fills an empty cache without
// waiting a full interval.
func (s *Service) Run(ctx context.Context) error {
	if s.startupDelay > 0 {
		timer := time.NewTimer(s.startupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	changed, err := s.pipeline.Reconcile()
	if err != nil {
		s.logger.Warn("portal identity check failed", logging.Error(err))
	} else if changed {
		s.logger.Info("portal changed since last run, listing cache was cleared")
	}

	s.probe(ctx)

	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

// probe refreshes every kind whose category record is stale. Errors are
// logged and the remaining kinds still run; the next tick retries.
func (s *Service) probe(ctx context.Context) {
	for _, kind := range s.kinds {
		if ctx.Err() != nil {
			return
		}
		if !s.pipeline.CategoriesAreStale(kind) {
			continue
		}
		s.logger.Debug("listing stale, refreshing", logging.String("kind", kind.String()))
		if _, err := s.pipeline.Refresh(ctx, kind); err != nil {
			s.logger.Warn("background refresh failed",
				logging.String("kind", kind.String()),
				logging.Error(err))
		}
	}
}
