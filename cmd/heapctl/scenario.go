package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/malloc"
)

func init() {
	rootCmd.AddCommand(newScenarioCmd())
}

func newScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenario",
		Short: "Walk through acquire(4), release, acquire(8)",
		Long: `The scenario command acquires 4 bytes, releases them and acquires 8
bytes, printing the chain after each step. Because the first block is the
arena tail, releasing it shrinks the arena and the second acquire grows it
again instead of reusing a record.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario()
		},
	}
}

type scenarioStep struct {
	Step  string      `json:"step"`
	Ptr   string      `json:"ptr,omitempty"`
	Break int         `json:"break"`
	Chain []blockView `json:"chain"`
}

func runScenario() error {
	a, err := openAllocator(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	var steps []scenarioStep
	record := func(step string, p malloc.Ptr) error {
		blocks, err := a.Blocks()
		if err != nil {
			return err
		}
		s := scenarioStep{Step: step, Break: a.Stats().ArenaBytes, Chain: viewBlocks(blocks)}
		if p != malloc.Null {
			s.Ptr = p.String()
		}
		steps = append(steps, s)
		if !jsonOut {
			printInfo("%s", step)
			if s.Ptr != "" {
				printInfo(" => %s", s.Ptr)
			}
			printInfo(" (break %d)\n", s.Break)
			printChain(blocks)
		}
		return nil
	}

	pa := a.Acquire(4)
	if pa == malloc.Null {
		return fmt.Errorf("acquire(4) failed")
	}
	if err := record("acquire(4)", pa); err != nil {
		return err
	}
	a.Release(pa)
	if err := record("release(A)", malloc.Null); err != nil {
		return err
	}
	pb := a.Acquire(8)
	if pb == malloc.Null {
		return fmt.Errorf("acquire(8) failed")
	}
	if err := record("acquire(8)", pb); err != nil {
		return err
	}
	if err := a.Check(); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(steps)
	}
	s := a.Stats()
	printVerbose("Reused %d, grown %d\n", s.Reused, s.Grown)
	return nil
}
