package main

import (
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stalkervod/internal/logging"
	"stalkervod/internal/service"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background refresh service until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Cache.Enabled {
				return errors.New("cache is disabled; the background service has nothing to maintain")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			release, err := ctx.acquireCacheLock()
			if err != nil {
				return err
			}
			defer release()

			portalClient, err := ctx.buildPortal()
			if err != nil {
				return err
			}
			pipeline, err := ctx.buildPipeline()
			if err != nil {
				return err
			}
			svc, err := service.New(service.Config{
				Pipeline:      pipeline,
				StartupDelay:  time.Duration(cfg.Service.StartupDelaySeconds) * time.Second,
				ProbeInterval: time.Duration(cfg.Service.ProbeIntervalSeconds) * time.Second,
				Logger:        logger,
			})
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sessionID := uuid.NewString()
			logger.Info("service starting",
				logging.String("session_id", sessionID),
				logging.String("cache_dir", cfg.Cache.Dir))

			// The keepalive holds the portal session open for the whole
			// service run so probes reuse the handshake token.
			keepalive := service.NewKeepalive(portalClient,
				time.Duration(cfg.Service.KeepaliveIntervalSeconds)*time.Second, logger)
			keepalive.Start(runCtx)
			defer keepalive.Stop()

			err = svc.Run(runCtx)
			logger.Info("service stopped", logging.String("session_id", sessionID))
			return err
		},
	}
}
