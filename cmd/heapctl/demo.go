package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const demoString = "test"

func init() {
	rootCmd.AddCommand(newDemoCmd())
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Acquire room for a short string and print its handle",
		Long: `The demo command acquires len("test")+1 bytes, copies the
NUL-terminated string into the block and prints the returned handle.

Example:
  heapctl demo
  heapctl demo --backing mmap --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo()
		},
	}
}

type demoResult struct {
	Ptr   string      `json:"ptr"`
	Size  int         `json:"size"`
	Chain []blockView `json:"chain"`
}

func runDemo() error {
	a, err := openAllocator(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	p, payload, err := a.Alloc(len(demoString) + 1)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	copy(payload, demoString+"\x00")

	blocks, err := a.Blocks()
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(demoResult{Ptr: p.String(), Size: len(payload), Chain: viewBlocks(blocks)})
	}
	printInfo("%s\n", p)
	printVerbose("Block holds %q\n", payload)
	return nil
}
