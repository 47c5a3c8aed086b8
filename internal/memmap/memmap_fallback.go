//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly && !windows

package memmap

// mapAnon allocates from the Go heap when no mapping primitive is available.
func mapAnon(size int) ([]byte, func([]byte) error, error) {
	return make([]byte, size), func([]byte) error { return nil }, nil
}

func releasePages(b []byte) error {
	clear(b)
	return nil
}

func protect([]byte, Access) error { return nil }
