// Command stmbench drives a handful of end-to-end workloads against
// the stm engine: a contended counter, a bank-transfer conservation
// check, a read-only snapshot watcher, and a forced clock rollover.
package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/cobra"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Stack().Err(errors.WithStack(err)).Msg("stmbench failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stmbench",
		Short: "Drive end-to-end scenarios against the word-granularity STM core",
	}
	root.PersistentFlags().Int("threads", 4, "worker goroutines")
	root.PersistentFlags().Int("ops", 1000, "operations per worker")
	root.PersistentFlags().Int("lock-array-size", 0, "override lock table size (0 = default)")

	root.AddCommand(
		newCounterCmd(),
		newBankCmd(),
		newReadOnlyCmd(),
		newRolloverCmd(),
	)
	return root
}
