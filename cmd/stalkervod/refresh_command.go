package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [kind...]",
		Short: "Refresh the portal listing cache (vod, series, tv)",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKindArgs(args)
			if err != nil {
				return err
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

			rows := make([][]string, 0, len(kinds))
			for _, kind := range kinds {
				result, err := pipeline.Refresh(cmd.Context(), kind)
				if err != nil {
					return fmt.Errorf("refresh %s: %w", kind, err)
				}
				if result.PortalChanged {
					fmt.Fprintln(cmd.OutOrStdout(), "Portal changed since last run; the listing cache was rebuilt.")
				}
				rows = append(rows, []string{
					kind.String(),
					strconv.Itoa(result.Categories),
					strconv.Itoa(result.Videos),
					strconv.Itoa(result.FromPortal),
					strconv.Itoa(result.FromCache),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Kind", "Categories", "Videos", "Portal Fetches", "Cache Hits"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}
