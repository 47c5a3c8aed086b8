package space

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacity indicates a capacity that cannot hold a single region.
	ErrCapacity = errors.New("regionspace: capacity must be at least one region")

	// ErrGrowthLimit indicates a growth limit beyond the capacity, or one that
	// would cut off regions still in use.
	ErrGrowthLimit = errors.New("regionspace: invalid growth limit")

	// ErrFreeUnsupported is returned by Free and FreeList. Objects in a region
	// space are reclaimed a whole region at a time.
	ErrFreeUnsupported = fmt.Errorf("regionspace: free of individual objects: %w", errors.ErrUnsupported)

	// ErrNotInSpace indicates a reference outside [Begin, Limit).
	ErrNotInSpace = errors.New("regionspace: reference not in space")
)
