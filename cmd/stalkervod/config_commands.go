package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stalkervod/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigPathCommand())
	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolvedPath, exists, err := config.Load(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolvedPath)
			if !exists {
				fmt.Fprintln(out, "Config file does not exist; defaults are in effect.")
			}

			rows := [][]string{
				{"portal.server_address", cfg.Portal.ServerAddress},
				{"portal.mac_address", cfg.Portal.MACAddress},
				{"portal.max_page_limit", fmt.Sprintf("%d", cfg.Portal.MaxPageLimit)},
				{"cache.enabled", yesNo(cfg.Cache.Enabled)},
				{"cache.dir", cfg.Cache.Dir},
				{"cache.listing_ttl_days", fmt.Sprintf("%d", cfg.Cache.ListingTTLDays)},
				{"tmdb.enabled", yesNo(cfg.TMDB.Enabled)},
				{"tmdb.api_key", redact(cfg.TMDB.APIKey)},
				{"tmdb.language", cfg.TMDB.Language},
				{"tmdb.cache_days", fmt.Sprintf("%d", cfg.TMDB.CacheDays)},
				{"service.probe_interval_seconds", fmt.Sprintf("%d", cfg.Service.ProbeIntervalSeconds)},
				{"logging.format", cfg.Logging.Format},
				{"logging.level", cfg.Logging.Level},
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Setting", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			if overwrite {
				if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("remove existing config: %w", err)
				}
			}
			if err := config.WriteSample(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set the portal address and tmdb api_key (or export TMDB_API_KEY).")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the default configuration file path",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func redact(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return "(set)"
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
