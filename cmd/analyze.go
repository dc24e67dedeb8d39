package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/los-review/internal/review"
)

var (
	analyzeInputFile string
	analyzeInputDir  string
	analyzeJSON      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize reviewer validation exports",
	Long:  "Reads reviewer exports (clinical_validation_denormalized_*.csv in --input-dir, or a single --input-file) and reports verdicts per model version, invalid reasons, and agreement with ground truth.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir := analyzeInputDir
		if dir == "" {
			dir = cfg.Export.Dir
		}
		return analyze(cmd.Context(), analyzeInputFile, dir, analyzeJSON, cmd.OutOrStdout())
	},
}

// analyze loads the selected exports and writes the summary to out.
func analyze(ctx context.Context, inputFile, inputDir string, asJSON bool, out io.Writer) error {
	var paths []string
	if inputFile != "" {
		if _, err := os.Stat(inputFile); err != nil {
			return eris.Wrapf(err, "analyze: input file %s", inputFile)
		}
		paths = []string{inputFile}
	} else {
		found, err := review.FindExports(inputDir)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			zap.L().Warn("no reviewer exports found",
				zap.String("dir", inputDir),
				zap.String("pattern", review.DefaultPattern),
			)
		}
		paths = found
	}

	records, err := review.LoadExports(ctx, paths)
	if err != nil {
		return err
	}
	summary := review.Analyze(records)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(summary), "analyze: encode summary")
	}
	summary.Render(out)
	return nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeInputFile, "input-file", "", "single reviewer export to analyze")
	analyzeCmd.Flags().StringVar(&analyzeInputDir, "input-dir", "", "directory of reviewer exports (default from config export.dir)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "write the summary as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
