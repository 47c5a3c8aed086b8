//go:build linux

package memmap

import "golang.org/x/sys/unix"

// releasePages drops the pages of b. Private anonymous pages read back as
// zero after MADV_DONTNEED on Linux, so no explicit clearing is needed.
func releasePages(b []byte) error {
	return unix.Madvise(b, unix.MADV_DONTNEED)
}
