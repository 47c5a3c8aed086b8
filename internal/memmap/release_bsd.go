//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package memmap

import "golang.org/x/sys/unix"

// releasePages zeroes b and advises the kernel it may reclaim the pages.
// MADV_DONTNEED does not guarantee zero-fill on these systems.
func releasePages(b []byte) error {
	clear(b)
	return unix.Madvise(b, unix.MADV_DONTNEED)
}
