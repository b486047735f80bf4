package main

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/herlein/rfsignal/pkg/processor"
)

var (
	replayRepeat  int
	replaySmooth  bool
	replayData    string
	replayBitTime uint32
)

var replayCmd = &cobra.Command{
	Use:   "replay [timings-file]",
	Short: "Transmit a timing file or Manchester-encoded data",
	Long: `Replays pulse widths from a timing file through the configured radio,
optionally smoothed first. With --data the hex bytes are Manchester encoded at
--bit-time microseconds per bit instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (len(args) == 0) == (replayData == "") {
			return errors.New("give either a timing file or --data")
		}

		h, err := openRadio()
		if err != nil {
			return err
		}
		defer h.close()

		pl, err := newPipeline(h.radio)
		if err != nil {
			return err
		}
		defer pl.Close()

		if replayData != "" {
			data, err := hex.DecodeString(replayData)
			if err != nil {
				return errors.Wrap(err, "invalid --data")
			}
			if err := pl.proc.TransmitBinary(data, replayBitTime); err != nil {
				return err
			}
			fmt.Printf("Sent %d bytes at %d us/bit\n", len(data), replayBitTime)
			return nil
		}

		timings, err := readTimings(args[0])
		if err != nil {
			return err
		}
		_, err = pl.proc.LoadSamples(timings)
		switch {
		case errors.Is(err, processor.ErrInsufficientSamples):
			// too short to condition, send as written
			if err := pl.proc.TransmitRaw(timings, replayRepeat); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if replaySmooth {
				conditionCapture(pl.proc, false)
			}
			if err := pl.proc.TransmitCapture(replayRepeat); err != nil {
				return err
			}
		}
		fmt.Printf("Sent %d timings x%d\n", len(timings), replayRepeat)
		return nil
	},
}

func init() {
	replayCmd.Flags().IntVarP(&replayRepeat, "repeat", "n", 3, "number of repetitions")
	replayCmd.Flags().BoolVar(&replaySmooth, "smooth", false, "smooth the timings before sending")
	replayCmd.Flags().StringVar(&replayData, "data", "", "hex bytes to send Manchester encoded")
	replayCmd.Flags().Uint32Var(&replayBitTime, "bit-time", 500, "Manchester bit time in microseconds")
}
