package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/los-review/internal/pipeline"
)

// Export file names read by the review tool.
const (
	predictionsFile     = "los_predictions"
	dualPredictionsFile = "los_predictions_dual"
	encountersFile      = "encounters_metadata.csv"
	manifestFile        = "manifest.json"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the review set, dual comparison and encounter metadata",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		dir := exportDir
		if dir == "" {
			dir = cfg.Export.Dir
		}

		files, err := exportAll(ctx, env.Pipeline, dir, cfg.Export.Format)
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("dir", dir),
			zap.Strings("files", files),
		)
		return nil
	},
}

// exportAll runs the review and dual modes concurrently and writes their
// files plus the encounter metadata and manifest into dir.
func exportAll(ctx context.Context, r runner, dir, format string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "export: create dir")
	}
	if format == "" {
		format = "csv"
	}

	var reviewRes, dualRes *pipeline.Result
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := r.Run(gCtx, pipeline.ModeReview)
		if err != nil {
			return eris.Wrap(err, "export: run review")
		}
		reviewRes = res
		return nil
	})
	g.Go(func() error {
		res, err := r.Run(gCtx, pipeline.ModeDual)
		if err != nil {
			return eris.Wrap(err, "export: run dual")
		}
		dualRes = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	predictions := predictionsFile + "." + format
	dual := dualPredictionsFile + "." + format
	if err := writeRows(reviewRes.Rows, filepath.Join(dir, predictions), format, nil); err != nil {
		return nil, err
	}
	if err := writeRows(dualRes.Rows, filepath.Join(dir, dual), format, nil); err != nil {
		return nil, err
	}
	if err := pipeline.ExportEncounters(pipeline.SummarizeEncounters(reviewRes.Rows), filepath.Join(dir, encountersFile)); err != nil {
		return nil, err
	}

	files := []string{predictions, dual, encountersFile}
	if err := pipeline.WriteManifest(pipeline.NewManifest(reviewRes, files), filepath.Join(dir, manifestFile)); err != nil {
		return nil, err
	}
	return append(files, manifestFile), nil
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}
