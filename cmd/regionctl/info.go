package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/regionspace/internal/units"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Run the workload and report space statistics",
		Long: `The info command runs the configured workload and displays the
resulting region counts and allocation totals.

Example:
  regionctl info
  regionctl info --capacity 64MB --cycles 5 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd)
		},
	}
	return cmd
}

// SpaceInfo summarizes a region space.
type SpaceInfo struct {
	Capacity           uint64 `json:"capacity"`
	Regions            int    `json:"regions"`
	NonFreeRegions     int    `json:"non_free_regions"`
	PeakNonFreeRegions int    `json:"peak_non_free_regions"`
	NonFreeIndexLimit  int    `json:"non_free_region_index_limit"`
	BytesAllocated     uint64 `json:"bytes_allocated"`
	ObjectsAllocated   uint64 `json:"objects_allocated"`
	PartialTLABs       int    `json:"partial_tlabs"`
	Time               uint32 `json:"time"`
	Survivors          int    `json:"survivors"`
}

func collectInfo(h *heap) SpaceInfo {
	rs := h.rs
	return SpaceInfo{
		Capacity:           uint64(rs.Capacity()),
		Regions:            rs.NumRegions(),
		NonFreeRegions:     rs.NumNonFreeRegions(),
		PeakNonFreeRegions: rs.MaxPeakNumNonFreeRegions(),
		NonFreeIndexLimit:  rs.NonFreeRegionIndexLimit(),
		BytesAllocated:     rs.BytesAllocated(),
		ObjectsAllocated:   rs.ObjectsAllocated(),
		PartialTLABs:       rs.NumPartialTLABs(),
		Time:               rs.Time(),
		Survivors:          len(h.objs),
	}
}

func runInfo(cmd *cobra.Command) error {
	h, err := runWorkload(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer h.Close()

	info := collectInfo(h)
	if jsonOut {
		return printJSON(info)
	}

	printInfo("\nRegion Space Information:\n")
	printInfo("  Capacity: %s\n", units.PrettySize(info.Capacity))
	printInfo("  Regions: %d (%d in use, peak %d)\n", info.Regions, info.NonFreeRegions, info.PeakNonFreeRegions)
	printInfo("  Non-free index limit: %d\n", info.NonFreeIndexLimit)
	printInfo("  Allocated: %d bytes in %d objects\n", info.BytesAllocated, info.ObjectsAllocated)
	printInfo("  Partial TLABs: %d\n", info.PartialTLABs)
	printInfo("  Collections: %d\n", info.Time)
	printInfo("  Reachable objects: %d\n", info.Survivors)
	return nil
}
