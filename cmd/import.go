package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/los-review/internal/fetcher"
	"github.com/sells-group/los-review/internal/store"
)

const importBatchSize = 500

var (
	importCurrentPath    string
	importHistoricalPath string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load JSON Lines encounter snapshots into the store",
	Long:  "Each line is one encounter row: encounter_id, patient_id, encounter_start, encounter_end, notes_blob_path, latest_note_date, data (and add_date for history). Current rows are upserted by encounter_id; historical rows are appended.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if importCurrentPath == "" && importHistoricalPath == "" {
			return eris.New("at least one of --current or --historical is required")
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		current, historical, err := importFiles(ctx, st, importCurrentPath, importHistoricalPath)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.Int64("current", current),
			zap.Int64("historical", historical),
		)
		return nil
	},
}

// importFiles loads either or both files. Empty paths are skipped.
func importFiles(ctx context.Context, st store.Store, currentPath, historicalPath string) (current, historical int64, err error) {
	if currentPath != "" {
		current, err = importFile(ctx, currentPath, st.UpsertCurrent)
		if err != nil {
			return 0, 0, eris.Wrap(err, "import current")
		}
	}
	if historicalPath != "" {
		historical, err = importFile(ctx, historicalPath, st.AppendHistory)
		if err != nil {
			return current, 0, eris.Wrap(err, "import historical")
		}
	}
	return current, historical, nil
}

// importFile streams records from path and writes them in batches.
func importFile(ctx context.Context, path string, write func(context.Context, []store.Record) (int64, error)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recCh, errCh := fetcher.DecodeJSONLines[store.Record](ctx, f)

	var total int64
	batch := make([]store.Record, 0, importBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := write(ctx, batch)
		if err != nil {
			return err
		}
		total += n
		batch = batch[:0]
		return nil
	}

	for rec := range recCh {
		batch = append(batch, rec)
		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := <-errCh; err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

func init() {
	importCmd.Flags().StringVar(&importCurrentPath, "current", "", "JSON Lines file of current encounter rows")
	importCmd.Flags().StringVar(&importHistoricalPath, "historical", "", "JSON Lines file of historical encounter rows")
	rootCmd.AddCommand(importCmd)
}
