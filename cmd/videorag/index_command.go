package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bdougie/videorag/internal/analyzer"
	"github.com/bdougie/videorag/internal/backend"
	"github.com/bdougie/videorag/internal/manifest"
	"github.com/bdougie/videorag/internal/models"
	"github.com/bdougie/videorag/internal/storage"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	var manifestPath string
	var videoNames []string
	var failOnError bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Caption every segment of the manifest's videos and store knowledge entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			m, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}
			videos, err := m.Models(videoNames...)
			if err != nil {
				return err
			}

			runCtx := cmd.Context()
			b, _, err := newBackend(runCtx, cfg, cfg.Caption.ModelName, logger)
			if err != nil {
				return err
			}
			st, err := newStore(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			indexer, err := analyzer.NewIndexer(newExtractor(cfg, logger), b, analyzer.Config{
				Model:    cfg.Caption.ModelName,
				Language: cfg.Caption.Language,
				Options:  backend.Options(cfg.Caption.Options),
				Workers:  cfg.Caption.Workers,
			}, logger)
			if err != nil {
				return err
			}

			report, runErr := indexer.Run(runCtx, videos)
			if report != nil {
				if err := storeReport(context.WithoutCancel(runCtx), st, videos, report, logger); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderSummary(report))
			}
			if runErr != nil {
				return runErr
			}
			if failOnError && report.Failed() > 0 {
				return fmt.Errorf("%d of %d videos failed", report.Failed(), len(report.Results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Video manifest (YAML)")
	cmd.Flags().StringSliceVar(&videoNames, "video", nil, "Only index the named videos (repeatable)")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit non-zero when any video fails")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

// storeReport hands every video's entries to storage, including the partial
// entries of videos that failed part way, then logs the collected errors.
// Results are in the same order as videos.
func storeReport(ctx context.Context, st storage.Storage, videos []models.Video, report *analyzer.Report, logger *slog.Logger) error {
	for _, rec := range report.Errors {
		logger.Error("video error", "video", rec.Video, "code", rec.Code, "message", rec.Message)
	}
	for i, res := range report.Results {
		if len(res.Entries) == 0 {
			continue
		}
		if err := st.AddEntries(ctx, videos[i], res.Entries); err != nil {
			return fmt.Errorf("store entries for %s: %w", res.Video, err)
		}
		logger.Info("entries stored", "video", res.Video, "entries", len(res.Entries))
	}
	if err := st.Flush(); err != nil {
		return fmt.Errorf("flush storage: %w", err)
	}
	return nil
}

func renderSummary(report *analyzer.Report) string {
	rows := make([][]string, 0, len(report.Results))
	for _, res := range report.Results {
		status := "ok"
		if res.Failed() {
			status = "failed"
		}
		rows = append(rows, []string{
			res.Video,
			strconv.Itoa(len(res.Captions)),
			strconv.Itoa(len(res.Entries)),
			status,
		})
	}
	return renderTable(
		[]string{"Video", "Captioned", "Entries", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	)
}
