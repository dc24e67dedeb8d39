package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/los-review/internal/model"
	"github.com/sells-group/los-review/internal/pipeline"
	"github.com/sells-group/los-review/internal/store"
)

// runner produces review rows for a mode.
type runner interface {
	Run(ctx context.Context, mode pipeline.Mode) (*pipeline.Result, error)
}

var (
	reconcileMode       string
	reconcileOutput     string
	reconcileFormat     string
	reconcileEncounters []string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile stored predictions into labeled rows",
	Long:  "Reads current and historical encounter snapshots, deduplicates predictions, and labels each against the discharge time. Writes CSV (or XLSX) to --output, or CSV to stdout.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		mode, err := pipeline.ParseMode(reconcileMode)
		if err != nil {
			return err
		}
		return runAndWrite(cmd, mode, reconcileOutput, reconcileFormat, reconcileEncounters)
	},
}

// runAndWrite runs the pipeline in mode and writes the rows.
func runAndWrite(cmd *cobra.Command, mode pipeline.Mode, output, format string, encounters []string) error {
	ctx := cmd.Context()

	env, err := initPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	if len(encounters) > 0 {
		env.Pipeline.WithFilter(store.SnapshotFilter{EncounterIDs: encounters})
	}
	if format == "" {
		format = cfg.Export.Format
	}

	res, err := reconcile(ctx, env.Pipeline, mode, output, format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	zap.L().Info("reconcile complete",
		zap.String("run_id", res.RunID),
		zap.String("mode", string(mode)),
		zap.Int("rows", len(res.Rows)),
		zap.String("output", output),
	)
	return nil
}

// reconcile runs one mode and writes its rows to output, or to stdout when
// output is empty.
func reconcile(ctx context.Context, r runner, mode pipeline.Mode, output, format string, stdout io.Writer) (*pipeline.Result, error) {
	res, err := r.Run(ctx, mode)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: run pipeline")
	}
	if err := writeRows(res.Rows, output, format, stdout); err != nil {
		return nil, err
	}
	return res, nil
}

// writeRows writes rows as CSV or XLSX. An empty path writes CSV to stdout.
func writeRows(rows []model.Row, path, format string, stdout io.Writer) error {
	if path == "" {
		return pipeline.WriteCSV(stdout, rows)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "reconcile: create output dir")
		}
	}
	switch format {
	case "xlsx":
		return pipeline.ExportXLSX(rows, path)
	case "csv", "":
		return pipeline.ExportCSV(rows, path)
	default:
		return eris.Errorf("reconcile: unsupported format %q", format)
	}
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileMode, "mode", string(pipeline.ModeSingle), "analysis mode: single, dual or review")
	reconcileCmd.Flags().StringVarP(&reconcileOutput, "output", "o", "", "output file (default stdout)")
	reconcileCmd.Flags().StringVar(&reconcileFormat, "format", "", "output format: csv or xlsx (default from config)")
	reconcileCmd.Flags().StringSliceVar(&reconcileEncounters, "encounter", nil, "restrict to these encounter ids")
	rootCmd.AddCommand(reconcileCmd)
}
