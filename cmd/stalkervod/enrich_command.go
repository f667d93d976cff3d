package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"stalkervod/internal/listing"
	"stalkervod/internal/tmdb"
)

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	var categoryID string

	cmd := &cobra.Command{
		Use:   "enrich <kind>",
		Short: "Fill TMDB metadata into cached listings (vod, series)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := listing.ParseKind(args[0])
			if err != nil {
				return err
			}
			if kind == listing.KindTV {
				return errors.New("tv listings carry no TMDB metadata")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.TMDB.Enabled {
				return errors.New("tmdb enrichment is disabled; set tmdb.enabled and tmdb.api_key")
			}

			release, err := ctx.acquireCacheLock()
			if err != nil {
				return err
			}
			defer release()

			pipeline, err := ctx.buildPipeline()
			if err != nil {
				return err
			}

			cats, err := pipeline.Categories(cmd.Context(), kind)
			if err != nil {
				return err
			}
			if categoryID != "" {
				cats = filterCategory(cats, categoryID)
				if len(cats) == 0 {
					return fmt.Errorf("category %q not found in %s listing", categoryID, kind)
				}
			}

			// One write of the shared metadata cache per run, however many
			// categories were walked.
			defer pipeline.Flush()

			out := cmd.OutOrStdout()
			matched := 0
			for _, cat := range cats {
				count, err := pipeline.EnrichCategory(cmd.Context(), kind, cat.ID)
				matched += count
				if err != nil {
					if errors.Is(err, tmdb.ErrRateLimited) {
						fmt.Fprintf(out, "TMDB rate limit exhausted; stopped after %d matches. Resolved metadata was saved.\n", matched)
						return nil
					}
					return fmt.Errorf("enrich category %s: %w", cat.ID, err)
				}
			}
			fmt.Fprintf(out, "Enriched %s listing: %d videos matched TMDB entries across %d categories.\n",
				kind, matched, len(cats))
			return nil
		},
	}

	cmd.Flags().StringVar(&categoryID, "category", "", "Restrict enrichment to one category id")
	return cmd
}

func filterCategory(cats []listing.Category, id string) []listing.Category {
	for _, cat := range cats {
		if cat.ID == id {
			return []listing.Category{cat}
		}
	}
	return nil
}
