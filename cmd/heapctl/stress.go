package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/heapkit/heap/malloc"
)

var (
	stressWorkers int
	stressOps     int
	stressMaxSize int
	stressSeed    int64
	stressMetrics bool
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVar(&stressWorkers, "workers", 8, "Concurrent workers")
	cmd.Flags().IntVar(&stressOps, "ops", 10000, "Operations per worker")
	cmd.Flags().IntVar(&stressMaxSize, "max-size", 1024, "Largest request in bytes")
	cmd.Flags().Int64Var(&stressSeed, "seed", 1, "Random seed; worker i uses seed+i")
	cmd.Flags().BoolVar(&stressMetrics, "metrics", false, "Print Prometheus metrics after the run")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Hammer the allocator from concurrent workers",
		Long: `The stress command runs workers that interleave acquires and releases
on private handles. Every block is filled with a worker pattern and verified
before it is released. When all workers finish the chain is checked.

Example:
  heapctl stress --workers 16 --ops 50000 --max-size 4096
  heapctl stress --backing mmap --validate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd.Context())
		},
	}
}

type stressResult struct {
	Workers  int           `json:"workers"`
	Ops      int           `json:"ops_per_worker"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Refused  int64         `json:"refused"`
	Stats    malloc.Stats  `json:"stats"`
	Chain    int           `json:"chain_records"`
	CheckErr string        `json:"check_error,omitempty"`
}

var errPayloadDamaged = errors.New("payload damaged")

func runStress(ctx context.Context) error {
	if stressWorkers <= 0 || stressOps < 0 || stressMaxSize <= 0 {
		return fmt.Errorf("workers and max-size must be positive, ops non-negative")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reg := prometheus.NewRegistry()
	a, err := openAllocator(reg)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := range stressWorkers {
		g.Go(func() error {
			return stressWorker(ctx, a, w)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	res := stressResult{Workers: stressWorkers, Ops: stressOps, Elapsed: elapsed, Stats: a.Stats()}
	res.Refused = res.Stats.AcquireFailures
	res.Chain = res.Stats.Records
	checkErr := a.Check()
	if checkErr != nil {
		res.CheckErr = checkErr.Error()
	}

	if jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printInfo("Ran %s ops on %d workers in %s\n",
			counts.Sprintf("%d", stressWorkers*stressOps), stressWorkers, elapsed.Round(time.Millisecond))
		printStats(res.Stats)
		if checkErr == nil {
			printInfo("Chain check:  ok\n")
		}
	}
	if stressMetrics {
		if err := printMetrics(reg); err != nil {
			return err
		}
	}
	return checkErr
}

// stressWorker runs one worker's share of operations and releases whatever
// it still holds at the end. Refused acquires are counted by the allocator
// and skipped.
func stressWorker(ctx context.Context, a *malloc.Allocator, w int) error {
	rng := rand.New(rand.NewSource(stressSeed + int64(w)))
	tag := byte(w%255 + 1)
	var held []malloc.Ptr

	release := func(i int) error {
		p := held[i]
		held[i] = held[len(held)-1]
		held = held[:len(held)-1]
		for _, b := range a.Bytes(p) {
			if b != tag {
				return fmt.Errorf("worker %d: %w at %s", w, errPayloadDamaged, p)
			}
		}
		return a.Free(p)
	}

	for range stressOps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(held) > 0 && rng.Intn(2) == 0 {
			if err := release(rng.Intn(len(held))); err != nil {
				return err
			}
			continue
		}
		p, payload, err := a.Alloc(1 + rng.Intn(stressMaxSize))
		if errors.Is(err, malloc.ErrNoMemory) {
			continue
		}
		if err != nil {
			return err
		}
		for i := range payload {
			payload[i] = tag
		}
		held = append(held, p)
	}
	for len(held) > 0 {
		if err := release(len(held) - 1); err != nil {
			return err
		}
	}
	return nil
}
