// Package verify checks the bookkeeping invariants of a region space.
//
// # Overview
//
// Every check works on a space.Snapshot, so a space can be captured once and
// inspected without holding its lock. The checks are used by tests after
// allocation and collection cycles, and by regionctl's verify command.
//
// Validation categories:
//   - Free regions: a free region carries no allocation state
//   - Region bounds: tops lie within their regions and are aligned
//   - Large groups: every large tail belongs to the head before it
//   - Non-free limit: no in-use region sits at or past the limit
//   - Counters: the in-use counters match the regions
//
// # Quick Start
//
//	if err := verify.All(rs.Snapshot()); err != nil {
//	    fmt.Printf("Validation failed: %v\n", err)
//	}
//
// # ValidationError
//
// All checks return *ValidationError on failure:
//
//	var verr *verify.ValidationError
//	if errors.As(err, &verr) {
//	    fmt.Printf("Type: %s\n", verr.Type)
//	    fmt.Printf("Region: %d\n", verr.Region)
//	    fmt.Printf("Message: %s\n", verr.Message)
//	}
//
// Region is -1 when the failure is not tied to a single region.
package verify
