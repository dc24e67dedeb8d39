package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/los-review/internal/pipeline"
)

var (
	sampleCap    int
	sampleOutput string
	sampleFormat string
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Build a balanced review set",
	Long:  "Draws up to --cap correctly predicted encounters per ground-truth class and writes every labeled row of each sampled encounter.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("cap") {
			cfg.Review.SampleCap = sampleCap
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runAndWrite(cmd, pipeline.ModeReview, sampleOutput, sampleFormat, nil)
	},
}

func init() {
	sampleCmd.Flags().IntVar(&sampleCap, "cap", pipeline.DefaultSampleCap, "encounters per ground-truth class")
	sampleCmd.Flags().StringVarP(&sampleOutput, "output", "o", "", "output file (default stdout)")
	sampleCmd.Flags().StringVar(&sampleFormat, "format", "", "output format: csv or xlsx (default from config)")
	rootCmd.AddCommand(sampleCmd)
}
