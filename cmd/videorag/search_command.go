package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	apperrors "github.com/bdougie/videorag/internal/errors"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var query string
	var limit int

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the stored segments closest to a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			st, err := newStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()
			if st.search == nil {
				return apperrors.New(apperrors.CodeConfiguration, "search needs storage.kind = \"postgres\" with embedding.enabled = true")
			}

			results, err := st.search.SearchSegments(cmd.Context(), query, limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching segments")
				return nil
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.SegmentID, r.Time, strconv.FormatFloat(r.Similarity, 'f', 3, 64)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Segment", "Time", "Similarity"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Search text")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum results")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
