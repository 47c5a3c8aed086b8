package verify

import (
	"fmt"

	"github.com/joshuapare/regionspace/internal/units"
	"github.com/joshuapare/regionspace/space"
)

// ValidationError describes a broken invariant.
type ValidationError struct {
	Type    string
	Message string
	Region  int
	Details map[string]any
}

// Error formats the check name and message, with the region when known.
func (e *ValidationError) Error() string {
	if e.Region >= 0 {
		return fmt.Sprintf("%s in region %d: %s", e.Type, e.Region, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// All runs every check against s.
// Returns the first error encountered, or nil if all checks pass.
func All(s space.Snapshot) error {
	checks := []func(space.Snapshot) error{
		FreeRegions,
		RegionBounds,
		LargeGroups,
		NonFreeLimit,
		Counters,
	}
	for _, check := range checks {
		if err := check(s); err != nil {
			return err
		}
	}
	return nil
}

// FreeRegions validates that free regions are indistinguishable from freshly
// initialized ones.
func FreeRegions(s space.Snapshot) error {
	for _, r := range s.Regions {
		if r.State != space.RegionStateFree {
			continue
		}
		var msg string
		switch {
		case r.Type != space.RegionTypeNone:
			msg = fmt.Sprintf("free region has type %s", r.Type)
		case r.Top != r.Begin:
			msg = fmt.Sprintf("free region has top %#x (begin %#x)", uintptr(r.Top), uintptr(r.Begin))
		case r.ObjectsAllocated != 0:
			msg = fmt.Sprintf("free region has %d objects", r.ObjectsAllocated)
		case r.IsNewlyAllocated:
			msg = "free region is newly allocated"
		case r.IsTLAB:
			msg = "free region is a TLAB"
		case r.LiveBytes != space.LiveBytesUnknown:
			msg = fmt.Sprintf("free region has %d live bytes", r.LiveBytes)
		default:
			continue
		}
		return &ValidationError{Type: "FreeRegions", Message: msg, Region: r.Idx}
	}
	return nil
}

// RegionBounds validates that every region is RegionSize bytes at its slot and
// that non-large tops are aligned and inside the region.
func RegionBounds(s space.Snapshot) error {
	for i, r := range s.Regions {
		wantBegin := s.Begin + space.Ref(uintptr(i)*space.RegionSize)
		if r.Idx != i || r.Begin != wantBegin || uintptr(r.End-r.Begin) != space.RegionSize {
			return &ValidationError{
				Type:    "RegionBounds",
				Message: fmt.Sprintf("region spans %#x-%#x, expected to start at %#x", uintptr(r.Begin), uintptr(r.End), uintptr(wantBegin)),
				Region:  i,
			}
		}
		if r.State != space.RegionStateAllocated {
			continue
		}
		if r.Top < r.Begin || r.Top > r.End {
			return &ValidationError{
				Type:    "RegionBounds",
				Message: fmt.Sprintf("top %#x outside the region", uintptr(r.Top)),
				Region:  i,
			}
		}
		if !units.IsAligned(uintptr(r.Top), space.Alignment) {
			return &ValidationError{
				Type:    "RegionBounds",
				Message: fmt.Sprintf("top %#x not %d-byte aligned", uintptr(r.Top), space.Alignment),
				Region:  i,
			}
		}
	}
	return nil
}

// LargeGroups validates that each large object head is followed by exactly
// the tails its size requires, all of the head's type.
func LargeGroups(s space.Snapshot) error {
	tails := 0
	var headType space.RegionType
	for _, r := range s.Regions {
		switch r.State {
		case space.RegionStateLarge:
			if tails > 0 {
				return missingTails(r.Idx, tails)
			}
			size := uintptr(r.Top - r.Begin)
			if size == 0 || size%space.RegionSize != 0 {
				return &ValidationError{
					Type:    "LargeGroups",
					Message: fmt.Sprintf("large object head spans %d bytes", size),
					Region:  r.Idx,
				}
			}
			tails = int(size/space.RegionSize) - 1
			headType = r.Type
		case space.RegionStateLargeTail:
			if tails == 0 {
				return &ValidationError{Type: "LargeGroups", Message: "dangling large tail", Region: r.Idx}
			}
			if r.Type != headType {
				return &ValidationError{
					Type:    "LargeGroups",
					Message: fmt.Sprintf("large tail has type %s, head has %s", r.Type, headType),
					Region:  r.Idx,
				}
			}
			tails--
		default:
			if tails > 0 {
				return missingTails(r.Idx, tails)
			}
		}
	}
	if tails > 0 {
		return missingTails(len(s.Regions), tails)
	}
	return nil
}

func missingTails(idx, missing int) error {
	return &ValidationError{
		Type:    "LargeGroups",
		Message: fmt.Sprintf("large object is missing %d tail regions", missing),
		Region:  idx,
		Details: map[string]any{"missing": missing},
	}
}

// NonFreeLimit validates that every region at or past the non-free region
// index limit is free.
func NonFreeLimit(s space.Snapshot) error {
	if s.NonFreeRegionIndexLimit < 0 || s.NonFreeRegionIndexLimit > s.NumRegions {
		return &ValidationError{
			Type:    "NonFreeLimit",
			Message: fmt.Sprintf("limit %d outside [0, %d]", s.NonFreeRegionIndexLimit, s.NumRegions),
			Region:  -1,
		}
	}
	for _, r := range s.Regions[s.NonFreeRegionIndexLimit:] {
		if r.State != space.RegionStateFree {
			return &ValidationError{
				Type:    "NonFreeLimit",
				Message: fmt.Sprintf("%s region at or past limit %d", r.State, s.NonFreeRegionIndexLimit),
				Region:  r.Idx,
			}
		}
	}
	return nil
}

// Counters validates the region counts against the regions themselves.
func Counters(s space.Snapshot) error {
	if len(s.Regions) != s.NumRegions {
		return &ValidationError{
			Type:    "Counters",
			Message: fmt.Sprintf("snapshot holds %d regions, space has %d", len(s.Regions), s.NumRegions),
			Region:  -1,
		}
	}
	inUse := 0
	for _, r := range s.Regions {
		if r.State != space.RegionStateFree {
			inUse++
		}
	}
	if counted := s.NumNonFreeRegions + s.NumEvacRegions; counted != inUse {
		return &ValidationError{
			Type:    "Counters",
			Message: fmt.Sprintf("%d regions in use, counters say %d", inUse, counted),
			Region:  -1,
			Details: map[string]any{
				"non_free": s.NumNonFreeRegions,
				"evac":     s.NumEvacRegions,
			},
		}
	}
	return nil
}
