package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var analyzeCompress bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <timings-file>",
	Short: "Analyse a saved timing file",
	Long: `Loads pulse widths in microseconds from a file (whitespace or comma
separated, '#' starts a comment), smooths them and prints timing, quality,
pattern, spectral and protocol analysis.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timings, err := readTimings(args[0])
		if err != nil {
			return err
		}

		pl, err := newPipeline(nil)
		if err != nil {
			return err
		}
		defer pl.Close()

		n, err := pl.proc.LoadSamples(timings)
		if err != nil {
			return err
		}
		if n < len(timings) {
			log.WithField("dropped", len(timings)-n).Warn("timing file exceeds buffer capacity")
		}

		conditionCapture(pl.proc, analyzeCompress)
		printReport(os.Stdout, pl.proc)
		fmt.Println()
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeCompress, "compress", false, "merge similar consecutive pulses after smoothing")
}
