package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"stalkervod/internal/cachefile"
)

// Patterns for portal-scoped cache files, in the order they are shown and
// cleared. The metadata cache and session token live outside this set.
var listingPatterns = []string{
	"stalker_cats_*.json",
	"stalker_videos_*.json",
	"folder_filter_*.json",
}

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the on-disk caches",
	}
	cacheCmd.AddCommand(newCacheStatusCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func newCacheStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache files, their age, and staleness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			store := cachefile.NewStore(logger)
			listingTTL := cfg.ListingTTL()
			colorize := isTerminal(cmd.OutOrStdout())

			var rows [][]string
			for _, pattern := range listingPatterns {
				matches, err := filepath.Glob(filepath.Join(cfg.Cache.Dir, pattern))
				if err != nil {
					return fmt.Errorf("scan cache dir: %w", err)
				}
				sort.Strings(matches)
				for _, path := range matches {
					rows = append(rows, statusRow(path, stateLabel(store.IsStale(path, listingTTL), colorize)))
				}
			}
			for _, name := range []string{"tmdb_cache.json", "last_portal.json", "token.json"} {
				path := filepath.Join(cfg.Cache.Dir, name)
				if _, err := os.Stat(path); err == nil {
					rows = append(rows, statusRow(path, "-"))
				}
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintf(out, "Cache at %s is empty.\n", cfg.Cache.Dir)
				return nil
			}
			fmt.Fprintf(out, "Cache root: %s\n", cfg.Cache.Dir)
			fmt.Fprintln(out, renderTable(
				[]string{"File", "Size", "Age", "State"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var withMetadata bool
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached listings (and optionally metadata and session state)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			release, err := ctx.acquireCacheLock()
			if err != nil {
				return err
			}
			defer release()

			targets := make([]string, 0, 8)
			for _, pattern := range listingPatterns {
				matches, err := filepath.Glob(filepath.Join(cfg.Cache.Dir, pattern))
				if err != nil {
					return fmt.Errorf("scan cache dir: %w", err)
				}
				targets = append(targets, matches...)
			}
			if withMetadata || all {
				targets = append(targets, filepath.Join(cfg.Cache.Dir, "tmdb_cache.json"))
			}
			if all {
				targets = append(targets,
					filepath.Join(cfg.Cache.Dir, "last_portal.json"),
					filepath.Join(cfg.Cache.Dir, "token.json"))
			}

			removed := 0
			for _, path := range targets {
				if err := os.Remove(path); err != nil {
					if errors.Is(err, fs.ErrNotExist) {
						continue
					}
					return fmt.Errorf("remove %s: %w", path, err)
				}
				removed++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache files from %s.\n", removed, cfg.Cache.Dir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withMetadata, "metadata", false, "Also delete the TMDB metadata cache")
	cmd.Flags().BoolVar(&all, "all", false, "Delete everything including the portal session token")
	return cmd
}

func statusRow(path, state string) []string {
	name := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		return []string{name, "-", "-", state}
	}
	return []string{name, formatSize(info.Size()), formatAge(time.Since(info.ModTime())), state}
}

const (
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

func stateLabel(stale, colorize bool) string {
	if !stale {
		return "fresh"
	}
	if colorize {
		return ansiRed + "stale" + ansiReset
	}
	return "stale"
}

func formatSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func formatAge(age time.Duration) string {
	if age < 0 {
		age = 0
	}
	switch {
	case age >= 24*time.Hour:
		return fmt.Sprintf("%.1fd", age.Hours()/24)
	case age >= time.Hour:
		return fmt.Sprintf("%.1fh", age.Hours())
	case age >= time.Minute:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	}
}
