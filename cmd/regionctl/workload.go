package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/regionspace/internal/units"
	"github.com/joshuapare/regionspace/space"
	"github.com/joshuapare/regionspace/space/objmodel"
	"github.com/joshuapare/regionspace/space/rbtable"
	"github.com/joshuapare/regionspace/space/verify"
)

// objectClass is the class id of every simulated object.
const objectClass = 1

var errEvacuation = errors.New("evacuation ran out of regions")

// workload describes a simulated mutator and collector run.
type workload struct {
	Mutators   int
	Objects    int
	Cycles     int
	LiveRatio  float64
	LargeRatio float64
	Seed       uint64
}

func (w workload) validate() error {
	switch {
	case w.Mutators < 1:
		return fmt.Errorf("--mutators must be at least 1, got %d", w.Mutators)
	case w.Objects < 0:
		return fmt.Errorf("--objects must not be negative, got %d", w.Objects)
	case w.Cycles < 0:
		return fmt.Errorf("--cycles must not be negative, got %d", w.Cycles)
	case w.LiveRatio < 0 || w.LiveRatio > 1:
		return fmt.Errorf("--live must be in [0, 1], got %g", w.LiveRatio)
	case w.LargeRatio < 0 || w.LargeRatio > 1:
		return fmt.Errorf("--large must be in [0, 1], got %g", w.LargeRatio)
	}
	return nil
}

// CycleStats reports one allocation and collection cycle.
type CycleStats struct {
	Cycle             int    `json:"cycle"`
	Allocated         int    `json:"allocated_objects"`
	Exhausted         bool   `json:"exhausted"`
	FromSpaceRegions  int    `json:"from_space_regions"`
	UnevacRegions     int    `json:"unevac_regions"`
	Evacuated         int    `json:"evacuated_objects"`
	EvacuatedBytes    uint64 `json:"evacuated_bytes"`
	UnevacLiveObjects int    `json:"unevac_live_objects"`
	ClearedBytes      uint64 `json:"cleared_bytes"`
	ClearedObjects    uint64 `json:"cleared_objects"`
	NonFreeRegions    int    `json:"non_free_regions"`
	Survivors         int    `json:"survivors"`
}

// heap is a region space plus the objects the simulation keeps reachable.
type heap struct {
	rs   *space.RegionSpace
	rb   *rbtable.Table
	w    workload
	objs []space.Ref
	rng  *rand.Rand
}

func newHeap(opts *space.Options, w workload) (*heap, error) {
	rs, err := space.New("regionctl", opts)
	if err != nil {
		return nil, err
	}
	rb, err := rbtable.New(uintptr(rs.Begin()), rs.Capacity(), space.RegionSize)
	if err != nil {
		_ = rs.Close()
		return nil, err
	}
	return &heap{
		rs:  rs,
		rb:  rb,
		w:   w,
		rng: rand.New(rand.NewPCG(w.Seed, 0)),
	}, nil
}

func (h *heap) Close() error { return h.rs.Close() }

// run executes the configured cycles, calling onCycle after each.
func (h *heap) run(ctx context.Context, onCycle func(CycleStats) error) error {
	for c := 1; c <= h.w.Cycles; c++ {
		allocated, exhausted, err := h.mutate(ctx, c)
		if err != nil {
			return err
		}
		stats, err := h.collect()
		if err != nil {
			return fmt.Errorf("cycle %d: %w", c, err)
		}
		stats.Cycle = c
		stats.Allocated = allocated
		stats.Exhausted = exhausted
		if err := verify.All(h.rs.Snapshot()); err != nil {
			return fmt.Errorf("cycle %d: %w", c, err)
		}
		if onCycle != nil {
			if err := onCycle(stats); err != nil {
				return err
			}
		}
	}
	return nil
}

// mutate runs the mutator goroutines until each has allocated its quota or
// the space refuses an allocation.
func (h *heap) mutate(ctx context.Context, cycle int) (int, bool, error) {
	var (
		mu        sync.Mutex
		exhausted bool
	)
	before := len(h.objs)
	g, ctx := errgroup.WithContext(ctx)
	for i := range h.w.Mutators {
		g.Go(func() error {
			th := space.NewThread(fmt.Sprintf("mutator-%d", i))
			defer h.rs.RevokeThreadLocalBuffers(th)
			rng := rand.New(rand.NewPCG(h.w.Seed, uint64(cycle)<<32|uint64(i)))
			local := make([]space.Ref, 0, h.w.Objects)
			full := false
			for range h.w.Objects {
				if err := ctx.Err(); err != nil {
					return err
				}
				size := h.objectSize(rng)
				res := h.rs.AllocTLAB(th, size)
				if !res.OK() {
					full = true
					break
				}
				if err := objmodel.Write(h.rs.Bytes(res.Obj, size), objectClass, uint32(size)); err != nil {
					return err
				}
				local = append(local, res.Obj)
			}
			mu.Lock()
			h.objs = append(h.objs, local...)
			exhausted = exhausted || full
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, false, err
	}
	return len(h.objs) - before, exhausted, nil
}

func (h *heap) objectSize(rng *rand.Rand) uintptr {
	if rng.Float64() < h.w.LargeRatio {
		return space.RegionSize + uintptr(rng.IntN(int(2*space.RegionSize)))&^(space.Alignment-1)
	}
	return 16 + uintptr(rng.IntN(512))&^(space.Alignment-1)
}

// collect runs one copying collection. Liveness is drawn at random; live
// objects in from-space are copied into evacuation regions and live objects
// in unevac regions are marked in place.
func (h *heap) collect() (CycleStats, error) {
	var stats CycleStats
	rs := h.rs
	rs.RevokeAllThreadLocalBuffers()
	rs.MarkBitmap().ClearAll()
	rs.SetFromSpace(h.rb, space.EvacModeLivePercentNewlyAllocated, true)

	snap := rs.Snapshot()
	for _, r := range snap.Regions {
		switch r.Type {
		case space.RegionTypeFromSpace:
			stats.FromSpaceRegions++
		case space.RegionTypeUnevacFromSpace:
			stats.UnevacRegions++
		}
	}

	survivors := h.objs[:0]
	for _, obj := range h.objs {
		if h.rng.Float64() >= h.w.LiveRatio {
			continue
		}
		size := units.RoundUp(rs.Objects().SizeOf(rs.Bytes(obj, objmodel.HeaderSize)), space.Alignment)
		switch {
		case h.rb.IsSet(uintptr(obj)):
			res := rs.AllocNonvirtual(size, space.Evacuation)
			if !res.OK() {
				return stats, fmt.Errorf("%w: %d bytes at %#x", errEvacuation, size, uintptr(obj))
			}
			copy(rs.Bytes(res.Obj, size), rs.Bytes(obj, size))
			obj = res.Obj
			stats.Evacuated++
			stats.EvacuatedBytes += uint64(size)
		case rs.IsInUnevacFromSpace(obj):
			rs.MarkBitmap().Set(uintptr(obj))
			rs.AddLiveBytes(obj, size)
		}
		survivors = append(survivors, obj)
	}
	h.objs = survivors

	rs.ScanUnevacFromSpace(rs.MarkBitmap(), func(space.Ref) { stats.UnevacLiveObjects++ })
	stats.ClearedBytes, stats.ClearedObjects = rs.ClearFromSpace(true)
	h.rb.ClearAll()
	stats.NonFreeRegions = rs.NumNonFreeRegions()
	stats.Survivors = len(h.objs)
	return stats, nil
}

// runWorkload builds a heap from the global flags and runs it. The caller
// owns the returned heap.
func runWorkload(ctx context.Context, onCycle func(CycleStats) error) (*heap, error) {
	opts, err := spaceOptions()
	if err != nil {
		return nil, err
	}
	w, err := workloadConfig()
	if err != nil {
		return nil, err
	}
	h, err := newHeap(opts, w)
	if err != nil {
		return nil, err
	}
	printVerbose("Running %d cycles with %d mutators on %s\n", w.Cycles, w.Mutators, units.PrettySize(uint64(h.rs.Capacity())))
	if err := h.run(ctx, onCycle); err != nil {
		_ = h.Close()
		return nil, err
	}
	return h, nil
}
