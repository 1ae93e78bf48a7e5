package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/malloc"
)

var (
	replayMetrics bool
	replayStrict  bool
)

func init() {
	cmd := newReplayCmd()
	cmd.Flags().BoolVar(&replayMetrics, "metrics", false, "Print Prometheus metrics after the run")
	cmd.Flags().BoolVar(&replayStrict, "strict", false, "Fail on the first refused acquire")
	rootCmd.AddCommand(cmd)
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <trace>",
		Short: "Replay an allocation trace",
		Long: `The replay command runs a trace of acquire and release lines against
the allocator and prints the resulting chain.

Trace format, one operation per line:
  a <id> <size>   acquire size bytes and name the handle id
  r <id>          release the handle named id
  # comment       ignored, as are blank lines

Example:
  heapctl replay trace.txt
  heapctl replay trace.txt --validate --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args)
		},
	}
}

type replayResult struct {
	Ops     int          `json:"ops"`
	Refused int          `json:"refused"`
	Live    int          `json:"live"`
	Chain   []blockView  `json:"chain"`
	Stats   malloc.Stats `json:"stats"`
}

func runReplay(args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	ops, err := parseTrace(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	reg := prometheus.NewRegistry()
	a, err := openAllocator(reg)
	if err != nil {
		return err
	}
	defer a.Close()

	live := make(map[string]malloc.Ptr)
	refused := 0
	for _, op := range ops {
		switch op.Kind {
		case opAcquire:
			if _, ok := live[op.ID]; ok {
				return fmt.Errorf("line %d: %s is still live", op.Line, op.ID)
			}
			p := a.Acquire(op.Size)
			if p == malloc.Null {
				refused++
				if replayStrict {
					return fmt.Errorf("line %d: acquire %d bytes refused", op.Line, op.Size)
				}
				printVerbose("line %d: a %s %d => null\n", op.Line, op.ID, op.Size)
				continue
			}
			live[op.ID] = p
			printVerbose("line %d: a %s %d => %s\n", op.Line, op.ID, op.Size, p)
		case opRelease:
			p, ok := live[op.ID]
			if !ok {
				return fmt.Errorf("line %d: %s is not live", op.Line, op.ID)
			}
			if err := a.Free(p); err != nil {
				return fmt.Errorf("line %d: %w", op.Line, err)
			}
			delete(live, op.ID)
			printVerbose("line %d: r %s\n", op.Line, op.ID)
		}
	}
	if err := a.Check(); err != nil {
		return err
	}

	blocks, err := a.Blocks()
	if err != nil {
		return err
	}
	if jsonOut {
		err = printJSON(replayResult{Ops: len(ops), Refused: refused, Live: len(live), Chain: viewBlocks(blocks), Stats: a.Stats()})
	} else {
		printInfo("Replayed %s operations (%d refused, %d live)\n", counts.Sprintf("%d", len(ops)), refused, len(live))
		printChain(blocks)
		printStats(a.Stats())
	}
	if err != nil {
		return err
	}
	if replayMetrics {
		return printMetrics(reg)
	}
	return nil
}
