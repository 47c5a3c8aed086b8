//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package memmap

import (
	"errors"

	"golang.org/x/sys/unix"
)

func mapAnon(size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}
	unmap := func(b []byte) error {
		err := unix.Munmap(b)
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		return err
	}
	return data, unmap, nil
}

func protect(b []byte, access Access) error {
	prot := unix.PROT_READ | unix.PROT_WRITE
	if access == None {
		prot = unix.PROT_NONE
	}
	return unix.Mprotect(b, prot)
}
