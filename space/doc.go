// Package space implements a region space: a contiguous heap carved into
// fixed-size regions, designed for a concurrent copying collector.
//
// # Overview
//
// Mutators allocate by bumping a pointer inside their current region. The
// bump is a lock-free compare-and-swap, so many goroutines can share one
// region; only installing a fresh region takes the space lock. Objects larger
// than a region get a span of whole regions (one Large head followed by
// LargeTail regions).
//
// During a collection cycle the collector:
//
//  1. calls SetFromSpace, which labels every in-use region as either
//     FromSpace (to be evacuated) or UnevacFromSpace (kept in place),
//  2. copies live objects out of FromSpace regions, allocating the copies in
//     the Evacuation domain,
//  3. calls ClearFromSpace, which returns evacuated regions and fully dead
//     unevacuated regions to the free pool and flips the survivors back to
//     ToSpace.
//
// # Thread-local allocation buffers
//
// A Thread can claim a chunk of a region as its own TLAB and allocate from it
// without any atomics. Partially used TLABs are returned to a pool keyed by
// free bytes and handed out again, largest first.
//
// # Memory layout
//
//	Begin()                                                  Limit()
//	|  region 0  |  region 1  |  region 2  | ... | region N-1 |
//	             ^begin       ^top         ^end
//	             |<-used----->|<-free----->|
//
// Every region is RegionSize bytes and starts RegionSize-aligned. Objects
// are Alignment-aligned and are described to the space by an ObjectModel
// (see package objmodel for the reference layout).
//
// # Usage Example
//
//	rs, err := space.New("main", space.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer rs.Close()
//
//	res := rs.Alloc(64)
//	if !res.OK() {
//	    // out of regions: trigger a collection
//	}
//	objmodel.Write(rs.Bytes(res.Obj, 64), classID, 64)
//
// # Debug checks
//
// Internal invariants are asserted only when built with -tags regiondebug.
package space
