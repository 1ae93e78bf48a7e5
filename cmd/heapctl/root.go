package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/joshuapare/heapkit/cmd/heapctl/logger"
	"github.com/joshuapare/heapkit/heap/malloc"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	configPath string
	logDir     string

	// heapCfg is bound to the allocator flags and, with --config, loaded
	// from YAML first.
	heapCfg malloc.Config
)

var rootCmd = &cobra.Command{
	Use:   "heapctl",
	Short: "Drive and inspect a first-fit arena allocator",
	Long: `heapctl runs a heapkit allocator over an in-memory, mmap or file backed
arena. It can replay allocation traces, stress the allocator from many
goroutines and print the block chain and counters afterwards.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logs")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML allocator config; flags given explicitly override it")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Write JSON logs to this directory instead of stderr")

	allocFlags := flag.NewFlagSet("allocator", flag.ContinueOnError)
	heapCfg.RegisterFlags(allocFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(allocFlags)
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup configures logging and merges --config with explicit flags.
func setup(cmd *cobra.Command, _ []string) error {
	if err := logger.Init(logger.Options{Verbose: verbose, Quiet: quiet, LogDir: logDir}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	return loadConfig(cmd.Flags())
}

func loadConfig(flags *pflag.FlagSet) error {
	if configPath == "" {
		return heapCfg.Validate()
	}

	// Explicit flags win over the file: remember them before the file
	// overwrites the bound fields, then apply them again.
	changed := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	cfg, err := malloc.LoadConfig(configPath)
	if err != nil {
		return err
	}
	heapCfg = cfg
	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("reapply --%s: %w", name, err)
		}
	}
	return heapCfg.Validate()
}

// openAllocator builds the configured allocator.
func openAllocator(reg prometheus.Registerer) (*malloc.Allocator, error) {
	printVerbose("Opening %s arena (limit %s)\n", heapCfg.Backing, heapCfg.ArenaLimit)
	return malloc.NewFromConfig(heapCfg, reg, logger.L)
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
