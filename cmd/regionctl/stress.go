package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/regionspace/internal/units"
)

const defaultStressCycles = 10

func init() {
	rootCmd.AddCommand(newStressCmd())
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run many allocation and collection cycles",
		Long: `The stress command runs the workload for many cycles, verifying the
space after every collection and reporting each cycle. Without --cycles it
runs 10 cycles.

Example:
  regionctl stress
  regionctl stress --mutators 8 --cycles 50 --live 0.3
  regionctl stress --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("cycles") {
				cycles = defaultStressCycles
			}
			return runStress(cmd)
		},
	}
	return cmd
}

func runStress(cmd *cobra.Command) error {
	all := []CycleStats{}
	h, err := runWorkload(cmd.Context(), func(s CycleStats) error {
		if jsonOut {
			all = append(all, s)
			return nil
		}
		full := ""
		if s.Exhausted {
			full = " (full)"
		}
		printInfo("cycle %3d: allocated %6d%s  from %3d  unevac %3d  evacuated %6d (%s)  cleared %s  in use %3d\n",
			s.Cycle, s.Allocated, full, s.FromSpaceRegions, s.UnevacRegions,
			s.Evacuated, units.PrettySize(s.EvacuatedBytes), units.PrettySize(s.ClearedBytes), s.NonFreeRegions)
		printVerbose("           unevac live objects %d, cleared objects %d, survivors %d\n",
			s.UnevacLiveObjects, s.ClearedObjects, s.Survivors)
		return nil
	})
	if err != nil {
		return err
	}
	defer h.Close()

	if jsonOut {
		return printJSON(all)
	}
	printInfo("✓ %d cycles verified, peak %d regions in use\n", h.w.Cycles, h.rs.MaxPeakNumNonFreeRegions())
	return nil
}
