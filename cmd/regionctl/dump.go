package main

import (
	"os"

	"github.com/spf13/cobra"
)

var dumpAll bool

func init() {
	cmd := newDumpCmd()
	cmd.Flags().BoolVar(&dumpAll, "all", false, "Include free regions")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump per-region bookkeeping",
		Long: `The dump command runs the workload and prints one line per in-use
region: bounds, state, type, object count, allocation time, live bytes and
TLAB ownership.

Example:
  regionctl dump
  regionctl dump --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd)
		},
	}
	return cmd
}

func runDump(cmd *cobra.Command) error {
	h, err := runWorkload(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.rs.Dump(os.Stdout); err != nil {
		return err
	}
	if dumpAll {
		return h.rs.DumpRegions(os.Stdout)
	}
	return h.rs.DumpNonFreeRegions(os.Stdout)
}
