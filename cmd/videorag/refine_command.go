package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bdougie/videorag/internal/backend"
	apperrors "github.com/bdougie/videorag/internal/errors"
	"github.com/bdougie/videorag/internal/manifest"
	"github.com/bdougie/videorag/internal/refiner"
)

func newRefineCommand(ctx *commandContext) *cobra.Command {
	var manifestPath string
	var hint string

	cmd := &cobra.Command{
		Use:   "refine SEGMENT_ID...",
		Short: "Re-caption retrieved segments with a query-specific hint",
		Long: "Re-caption segments identified as {video}_{index}. Segments are resolved from\n" +
			"--manifest when given, otherwise from the configured storage.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			runCtx := cmd.Context()

			var lookup refiner.SegmentLookup
			if manifestPath != "" {
				m, err := manifest.Load(manifestPath)
				if err != nil {
					return err
				}
				lookup = m
			} else {
				st, err := newStore(runCtx, cfg, logger)
				if err != nil {
					return err
				}
				defer st.close()
				if st.lookup == nil {
					return apperrors.New(apperrors.CodeConfiguration, "refine needs --manifest when storage.kind is none")
				}
				lookup = st.lookup
			}

			model := cfg.RefineModel()
			b, accel, err := newBackend(runCtx, cfg, model, logger)
			if err != nil {
				return err
			}
			r, err := refiner.New(lookup, newExtractor(cfg, logger), b, accel, refiner.Config{
				Model:     model,
				Language:  cfg.Caption.Language,
				NumFrames: cfg.Refine.NumFrames,
				Options:   backend.Options(cfg.Caption.Options),
			}, logger)
			if err != nil {
				return err
			}

			results, refineErr := r.RefineAll(runCtx, args, hint)
			ids := make([]string, 0, len(results))
			for id := range results {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			out := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintf(out, "== %s ==\n%s", id, results[id])
			}
			return refineErr
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Video manifest (YAML) to resolve segments from")
	cmd.Flags().StringVar(&hint, "hint", "", "Retrieval query used as a focus hint")
	_ = cmd.MarkFlagRequired("hint")
	return cmd
}
