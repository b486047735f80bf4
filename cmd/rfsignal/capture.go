package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/herlein/rfsignal/pkg/processor"
)

var (
	captureDuration time.Duration
	captureOut      string
	captureCompress bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture pulses from a CC1101",
	Long: `Puts the CC1101 into asynchronous RX and times GDO0 edges for the given
duration or until interrupted, then analyses the capture. The sample pool
monitor and the metrics endpoint run alongside the capture.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		h, err := openRadio()
		if err != nil {
			return err
		}
		defer h.close()
		if h.cc == nil {
			return errors.New("capture needs the cc1101 driver")
		}

		pl, err := newPipeline(h.radio)
		if err != nil {
			return err
		}
		defer pl.Close()

		if err := h.cc.SetRx(); err != nil {
			return err
		}
		if err := pl.proc.StartCapture(); err != nil {
			return err
		}
		if rssi, err := h.cc.RSSI(); err == nil {
			log.WithField("rssi_dbm", rssi).Debug("noise floor")
		}
		fmt.Printf("Capturing for %s (Ctrl-C to stop early)...\n", captureDuration)

		captureCtx, cancel := context.WithTimeout(ctx, captureDuration)
		defer cancel()

		g, gctx := errgroup.WithContext(captureCtx)
		g.Go(func() error {
			return pl.serveMetrics(gctx, cfg.Metrics.Listen)
		})
		g.Go(func() error {
			return pl.mem.Run(gctx)
		})
		g.Go(func() error {
			return h.cc.WatchPulses(gctx, pl.proc.ProcessPulse)
		})
		runErr := g.Wait()

		stopErr := pl.proc.StopCapture()
		if runErr != nil {
			return runErr
		}
		captured, rejected, dropped := pl.proc.CaptureStats()
		log.WithFields(logrus.Fields{
			"captured": captured,
			"rejected": rejected,
			"dropped":  dropped,
		}).Info("capture finished")
		if stopErr != nil {
			if errors.Is(stopErr, processor.ErrInsufficientSamples) {
				fmt.Println("No usable signal captured")
			}
			return stopErr
		}

		if captureOut != "" {
			header := fmt.Sprintf("%s captured %s", cfg.Radio.Profile, time.Now().Format(time.RFC3339))
			if err := writeTimings(captureOut, pl.proc.RawSamples(), header); err != nil {
				return err
			}
			fmt.Printf("Saved %d timings to %s\n", captured, captureOut)
		}

		fmt.Println()
		conditionCapture(pl.proc, captureCompress)
		printReport(os.Stdout, pl.proc)
		return nil
	},
}

func init() {
	captureCmd.Flags().DurationVarP(&captureDuration, "duration", "d", 10*time.Second, "capture duration")
	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "", "save the raw timings to this file")
	captureCmd.Flags().BoolVar(&captureCompress, "compress", false, "merge similar consecutive pulses after smoothing")
}
