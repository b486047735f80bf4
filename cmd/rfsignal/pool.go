package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/herlein/rfsignal/pkg/memory"
	"github.com/herlein/rfsignal/pkg/metrics"
)

var (
	poolOps     int
	poolMaxSize int
	poolSeed    int64
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Exercise the sample memory pool",
	Long: `Runs a random sequence of allocations and frees against a pool sized
from the configuration, checking integrity after every step, then prints the
pool statistics before and after defragmentation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := memory.NewManager(cfg.MemoryConfig(), log, metrics.New(nil))
		if err != nil {
			return err
		}

		rng := rand.New(rand.NewSource(poolSeed))
		var live [][]byte
		failures := 0

		for i := 0; i < poolOps; i++ {
			if len(live) > 0 && rng.Intn(3) == 0 {
				j := rng.Intn(len(live))
				mgr.Free(live[j])
				live[j] = live[len(live)-1]
				live = live[:len(live)-1]
			} else {
				buf, err := mgr.Allocate(1 + rng.Intn(poolMaxSize))
				if err != nil {
					failures++
				} else {
					live = append(live, buf)
				}
			}
			if err := mgr.Pool().CheckIntegrity(); err != nil {
				return errors.Wrapf(err, "after operation %d", i)
			}
		}

		fmt.Printf("%d operations, %d live allocations, %d failed allocations\n\n", poolOps, len(live), failures)
		fmt.Println("Pool:")
		printPoolStats(os.Stdout, mgr.Stats())

		for _, buf := range live {
			mgr.Free(buf)
		}
		mgr.Defragment()
		fmt.Println("\nAfter freeing everything:")
		printPoolStats(os.Stdout, mgr.Stats())

		return mgr.Pool().CheckIntegrity()
	},
}

func init() {
	poolCmd.Flags().IntVarP(&poolOps, "ops", "n", 1000, "number of operations")
	poolCmd.Flags().IntVar(&poolMaxSize, "max-size", 2048, "largest allocation in bytes")
	poolCmd.Flags().Int64Var(&poolSeed, "seed", 1, "random seed")
}
