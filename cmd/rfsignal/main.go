// rfsignal: capture, analyse and replay pulse-width RF signals
//
// Signals are captured from a CC1101 in asynchronous serial mode and can be
// replayed through a CC1101 or a YardStick One.
//
// Usage:
//
//	rfsignal analyze capture.txt
//	rfsignal capture -d 10s -o capture.txt
//	rfsignal replay capture.txt -n 5
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/herlein/rfsignal/pkg/config"
)

var (
	configPath string
	logLevel   string

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rfsignal",
	Short: "Capture, analyse and replay pulse-width RF signals",
	Long: `rfsignal records the pulse widths of OOK/FSK remote-control signals,
cleans them up, identifies the protocol and replays them.

Commands:
  analyze   Analyse a saved timing file
  capture   Capture pulses from a CC1101
  replay    Transmit a timing file or Manchester-encoded data
  profiles  List and export radio profiles
  pool      Exercise the sample memory pool`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadOrDefault(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		log, err = config.NewLogger(cfg.Logging)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath("rfsignal"), "configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(analyzeCmd, captureCmd, replayCmd, profilesCmd, poolCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
