// Package units holds the alignment and size arithmetic shared by the region
// space and its helper tables.
package units

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// KB, MB and GB are binary size units.
	KB = 1 << 10
	MB = 1 << 20
	GB = 1 << 30
)

// RoundUp returns n rounded up to the next multiple of align.
// align must be a power of two.
//
// Example:
//
//	RoundUp(1, 8)  = 8
//	RoundUp(8, 8)  = 8
//	RoundUp(9, 8)  = 16
func RoundUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// RoundDown returns n rounded down to a multiple of align.
// align must be a power of two.
func RoundDown(n, align uintptr) uintptr {
	return n &^ (align - 1)
}

// IsAligned reports whether n is a multiple of align.
func IsAligned(n, align uintptr) bool {
	return n&(align-1) == 0
}

// DivRoundUp returns ceil(n / d) for d > 0.
func DivRoundUp(n, d uintptr) uintptr {
	return (n + d - 1) / d
}

// PrettySize formats a byte count the way region dumps print it:
// the largest binary unit that divides the value evenly, falling back
// to plain bytes.
func PrettySize(n uint64) string {
	switch {
	case n >= GB && n%GB == 0:
		return fmt.Sprintf("%dGB", n/GB)
	case n >= MB && n%MB == 0:
		return fmt.Sprintf("%dMB", n/MB)
	case n >= KB && n%KB == 0:
		return fmt.Sprintf("%dKB", n/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// ParseSize parses a byte count with an optional KB, MB or GB suffix, as
// printed by PrettySize. Suffixes are case-insensitive.
func ParseSize(s string) (uint64, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	mult := uint64(1)
	for _, u := range []struct {
		suffix string
		mult   uint64
	}{{"GB", GB}, {"MB", MB}, {"KB", KB}, {"B", 1}} {
		if strings.HasSuffix(t, u.suffix) {
			t = strings.TrimSuffix(t, u.suffix)
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseUint(strings.TrimSpace(t), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > ^uint64(0)/mult {
		return 0, fmt.Errorf("invalid size %q: overflows 64 bits", s)
	}
	return n * mult, nil
}
