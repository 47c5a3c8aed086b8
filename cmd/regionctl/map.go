package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/joshuapare/regionspace/space"
)

const mapColumns = 64

var (
	// Color palette
	toSpaceColor   = lipgloss.Color("#04B575")
	newColor       = lipgloss.Color("#00D7FF")
	largeColor     = lipgloss.Color("#7D56F4")
	fromSpaceColor = lipgloss.Color("#FF4B4B")
	unevacColor    = lipgloss.Color("#FFA500")
	mutedColor     = lipgloss.Color("#666666")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(largeColor).
			MarginBottom(1)

	gridStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)
)

func init() {
	rootCmd.AddCommand(newMapCmd())
}

func newMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Draw a map of region states",
		Long: `The map command runs the workload and draws one cell per region:

  .  free            #  to-space
  +  newly allocated L  large object head, l  large object tail
  T  TLAB            F  from-space, U  unevac from-space

Example:
  regionctl map --capacity 32MB --cycles 3
  regionctl map --no-color`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMap(cmd)
		},
	}
	return cmd
}

// regionCell returns the map glyph and color for a region.
func regionCell(r space.RegionInfo) (string, lipgloss.Color) {
	switch {
	case r.State == space.RegionStateFree:
		return ".", mutedColor
	case r.Type == space.RegionTypeFromSpace:
		return "F", fromSpaceColor
	case r.Type == space.RegionTypeUnevacFromSpace:
		return "U", unevacColor
	case r.State == space.RegionStateLarge:
		return "L", largeColor
	case r.State == space.RegionStateLargeTail:
		return "l", largeColor
	case r.IsTLAB:
		return "T", newColor
	case r.IsNewlyAllocated:
		return "+", newColor
	default:
		return "#", toSpaceColor
	}
}

// renderMap draws the regions of s as a grid.
func renderMap(s space.Snapshot, color bool) string {
	var sb strings.Builder
	for i, r := range s.Regions {
		if i > 0 && i%mapColumns == 0 {
			sb.WriteByte('\n')
		}
		glyph, c := regionCell(r)
		if color {
			glyph = lipgloss.NewStyle().Foreground(c).Render(glyph)
		}
		sb.WriteString(glyph)
	}
	if !color {
		return sb.String()
	}
	return gridStyle.Render(sb.String())
}

func runMap(cmd *cobra.Command) error {
	h, err := runWorkload(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer h.Close()

	s := h.rs.Snapshot()
	title := "Region map"
	if !noColor {
		title = titleStyle.Render(title)
	}
	printInfo("%s\n", title)
	printInfo("%s\n", renderMap(s, !noColor))
	printInfo("%d regions, %d in use\n", s.NumRegions, s.NumNonFreeRegions+s.NumEvacRegions)
	return nil
}
