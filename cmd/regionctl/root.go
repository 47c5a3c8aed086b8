package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/regionspace/internal/units"
	"github.com/joshuapare/regionspace/space"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	noColor  bool
	capacity string

	// Workload flags
	mutators   int
	objects    int
	cycles     int
	liveRatio  float64
	largeRatio float64
	seed       uint64
	cyclic     bool
	noPartial  bool
)

var rootCmd = &cobra.Command{
	Use:   "regionctl",
	Short: "Exercise and inspect a region space",
	Long: `regionctl drives a region space with a simulated workload: mutator
goroutines allocating through TLABs, followed by copying collections that
evacuate sparse regions and reclaim dead ones. Each command runs the
workload and then reports on the resulting space.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logging")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&capacity, "capacity", "16MB", "Space capacity (B, KB, MB or GB suffix)")

	rootCmd.PersistentFlags().IntVar(&mutators, "mutators", 4, "Number of mutator goroutines")
	rootCmd.PersistentFlags().IntVar(&objects, "objects", 2000, "Objects allocated per mutator per cycle")
	rootCmd.PersistentFlags().IntVar(&cycles, "cycles", 1, "Allocation and collection cycles to run")
	rootCmd.PersistentFlags().Float64Var(&liveRatio, "live", 0.5, "Fraction of objects surviving each collection")
	rootCmd.PersistentFlags().Float64Var(&largeRatio, "large", 0.005, "Fraction of allocations that are large objects")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 1, "Random seed")
	rootCmd.PersistentFlags().BoolVar(&cyclic, "cyclic", false, "Allocate regions cyclically")
	rootCmd.PersistentFlags().BoolVar(&noPartial, "no-partial-tlabs", false, "Disable partial TLAB reuse")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
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

// newLogger returns the logger handed to the space: debug output on stderr
// with --verbose, nothing otherwise.
func newLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// spaceOptions builds space options from the global flags.
func spaceOptions() (*space.Options, error) {
	size, err := units.ParseSize(capacity)
	if err != nil {
		return nil, fmt.Errorf("--capacity: %w", err)
	}
	opts := space.DefaultOptions()
	opts.Capacity = uintptr(size)
	opts.CyclicAllocation = cyclic
	opts.PartialTLABs = !noPartial
	opts.Logger = newLogger()
	return opts, nil
}

// workloadConfig builds a workload from the global flags.
func workloadConfig() (workload, error) {
	w := workload{
		Mutators:   mutators,
		Objects:    objects,
		Cycles:     cycles,
		LiveRatio:  liveRatio,
		LargeRatio: largeRatio,
		Seed:       seed,
	}
	return w, w.validate()
}
