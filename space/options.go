package space

import (
	"io"
	"log/slog"

	"github.com/joshuapare/regionspace/internal/units"
	"github.com/joshuapare/regionspace/space/objmodel"
)

const (
	// RegionSize is the size of every region in bytes.
	RegionSize uintptr = 256 * units.KB

	// Alignment is the object alignment in bytes. Every allocation size is
	// rounded up to a multiple of it.
	Alignment uintptr = 8

	// PartialTLABSize is the smallest TLAB handed out, and the smallest
	// leftover worth keeping in the partial TLAB pool.
	PartialTLABSize uintptr = 16 * units.KB

	// EvacuateLivePercentThreshold is the live percentage below which a
	// region is evacuated in EvacModeLivePercentNewlyAllocated.
	EvacuateLivePercentThreshold = 75
)

// DefaultCapacity is the capacity used by DefaultOptions.
const DefaultCapacity = 64 * units.MB

// Options configures a RegionSpace.
type Options struct {
	// Capacity is the size of the space in bytes, rounded up to RegionSize.
	// Default: 64MB
	Capacity uintptr

	// CyclicAllocation makes region allocation continue after the most
	// recently allocated region instead of reusing the lowest free one.
	// Freed regions are then not reused until the index wraps, which helps
	// surface use-after-free bugs.
	// Default: false
	CyclicAllocation bool

	// Generational keeps mark bits and live bytes of unevacuated regions
	// across cycles, as a sticky-bit generational collector requires.
	// Default: true
	Generational bool

	// PartialTLABs returns the unused tail of a revoked TLAB to a pool from
	// which later TLAB requests are served.
	// Default: true
	PartialTLABs bool

	// ProtectClearedRegions makes cleared regions inaccessible until they
	// are allocated again.
	// Default: false
	ProtectClearedRegions bool

	// PoisonDeadObjects overwrites the dead gaps of partially live regions
	// that survive a cycle with a recognizable pattern.
	// Default: false
	PoisonDeadObjects bool

	// Objects describes the object layout. Walks and large-object
	// bookkeeping read object sizes through it.
	// Default: objmodel.Model{}
	Objects ObjectModel

	// Logger receives debug summaries of collection bookkeeping and
	// warnings. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns the options used by most collectors.
func DefaultOptions() *Options {
	return &Options{
		Capacity:     DefaultCapacity,
		Generational: true,
		PartialTLABs: true,
		Objects:      objmodel.Model{},
	}
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	} else {
		out = *DefaultOptions()
	}
	if out.Objects == nil {
		out.Objects = objmodel.Model{}
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return out
}
