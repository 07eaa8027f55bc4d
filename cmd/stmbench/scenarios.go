package main

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wordstm/core/internal/config"
	"github.com/wordstm/core/stm"
)

func buildWorld(cmd *cobra.Command) *stm.World {
	cfg := config.FromEnv()
	if n, _ := cmd.Flags().GetInt("lock-array-size"); n > 0 {
		cfg.LockArraySize = n
	}
	return stm.NewWorld(cfg, stm.WithMetricsRegistry(prometheus.NewRegistry()))
}

func runWorkers(n int, work func(id int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(id int) {
			defer wg.Done()
			work(id)
		}(i)
	}
	wg.Wait()
}

func printStats(world *stm.World) {
	commits, _ := world.GetStats("commits")
	rollovers, _ := world.GetStats("rollovers")
	fmt.Printf("commits=%d rollovers=%d\n", commits, rollovers)
	for _, reason := range []string{"VAL_READ", "VAL_WRITE", "WW_CONFLICT", "VALIDATE", "RO_WRITE", "EXPLICIT", "KILLED"} {
		if n, ok := world.GetStats(reason); ok && n > 0 {
			fmt.Printf("aborts[%s]=%d\n", reason, n)
		}
	}
}

// newCounterCmd drives N threads incrementing a shared counter.
func newCounterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counter",
		Short: "N threads increment a shared counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			threads, _ := cmd.Flags().GetInt("threads")
			ops, _ := cmd.Flags().GetInt("ops")

			world := buildWorld(cmd)
			defer world.Close()
			mem := stm.NewMemory(1)

			runWorkers(threads, func(int) {
				tx, err := world.InitThread()
				if err != nil {
					panic(err)
				}
				defer world.ExitThread(tx)
				for i := 0; i < ops; i++ {
					world.Atomically(tx, func(tx *stm.Tx) {
						v := tx.Load(mem.Addr(0))
						tx.Store(mem.Addr(0), v+1)
					})
				}
			})

			checker, _ := world.InitThread()
			defer world.ExitThread(checker)
			world.Atomically(checker, func(tx *stm.Tx) {
				fmt.Printf("mem[0]=%d (expected %d)\n", tx.Load(mem.Addr(0)), uint64(threads*ops))
			})
			printStats(world)
			return nil
		},
	}
}

// newBankCmd drives random transfers across four accounts, checking
// the total is conserved.
func newBankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bank",
		Short: "Random transfers across four accounts conserve the total",
		RunE: func(cmd *cobra.Command, args []string) error {
			threads, _ := cmd.Flags().GetInt("threads")
			ops, _ := cmd.Flags().GetInt("ops")

			world := buildWorld(cmd)
			defer world.Close()
			mem := stm.NewMemory(4)

			setup, _ := world.InitThread()
			world.Atomically(setup, func(tx *stm.Tx) {
				for i := 0; i < mem.Len(); i++ {
					tx.Store(mem.Addr(i), 100)
				}
			})
			world.ExitThread(setup)

			runWorkers(threads, func(id int) {
				tx, err := world.InitThread()
				if err != nil {
					panic(err)
				}
				defer world.ExitThread(tx)
				rnd := rand.New(rand.NewSource(int64(id) + 1))
				for i := 0; i < ops; i++ {
					from := rnd.Intn(mem.Len())
					to := rnd.Intn(mem.Len())
					if from == to {
						continue
					}
					world.Atomically(tx, func(tx *stm.Tx) {
						vf := tx.Load(mem.Addr(from))
						vt := tx.Load(mem.Addr(to))
						if vf == 0 {
							return
						}
						tx.Store(mem.Addr(from), vf-1)
						tx.Store(mem.Addr(to), vt+1)
					})
				}
			})

			checker, _ := world.InitThread()
			defer world.ExitThread(checker)
			world.Atomically(checker, func(tx *stm.Tx) {
				total := uint64(0)
				for i := 0; i < mem.Len(); i++ {
					total += tx.Load(mem.Addr(i))
				}
				fmt.Printf("total=%d (expected 400)\n", total)
			})
			printStats(world)
			return nil
		},
	}
}

// newReadOnlyCmd drives a read-only snapshot watching a writer,
// checking it never observes a torn update.
func newReadOnlyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "readonly",
		Short: "A read-only snapshot never observes the writer's pair torn apart",
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, _ := cmd.Flags().GetInt("ops")
			world := buildWorld(cmd)
			defer world.Close()
			mem := stm.NewMemory(2)

			violations := 0
			var mu sync.Mutex

			runWorkers(2, func(id int) {
				tx, err := world.InitThread()
				if err != nil {
					panic(err)
				}
				defer world.ExitThread(tx)
				if id == 0 {
					for i := 0; i < ops; i++ {
						world.Atomically(tx, func(tx *stm.Tx) {
							a := tx.Load(mem.Addr(0))
							tx.Store(mem.Addr(0), a+1)
							b := tx.Load(mem.Addr(1))
							tx.Store(mem.Addr(1), b+1)
						})
					}
					return
				}
				for i := 0; i < ops; i++ {
					world.AtomicallyReadOnly(tx, func(tx *stm.Tx) {
						a := tx.Load(mem.Addr(0))
						b := tx.Load(mem.Addr(1))
						if a != b {
							mu.Lock()
							violations++
							mu.Unlock()
						}
					})
				}
			})

			fmt.Printf("violations=%d\n", violations)
			printStats(world)
			return nil
		},
	}
}

// newRolloverCmd forces a tiny VersionMax and confirms the rollover
// barrier fires and service continues afterward.
func newRolloverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Force a tiny VERSION_MAX to exercise the clock rollover barrier",
	}
	var versionMax uint64
	cmd.Flags().Uint64Var(&versionMax, "version-max", 1024, "VERSION_MAX to force")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		threads, _ := cmd.Flags().GetInt("threads")
		ops, _ := cmd.Flags().GetInt("ops")

		cfg := config.FromEnv()
		cfg.VersionMax = versionMax
		world := stm.NewWorld(cfg, stm.WithMetricsRegistry(prometheus.NewRegistry()))
		defer world.Close()
		mem := stm.NewMemory(4)

		runWorkers(threads, func(id int) {
			tx, err := world.InitThread()
			if err != nil {
				panic(err)
			}
			defer world.ExitThread(tx)
			for i := 0; i < ops; i++ {
				world.Atomically(tx, func(tx *stm.Tx) {
					v := tx.Load(mem.Addr(i % mem.Len()))
					tx.Store(mem.Addr(i%mem.Len()), v+1)
				})
			}
		})

		printStats(world)
		return nil
	}
	return cmd
}
