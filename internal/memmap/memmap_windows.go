//go:build windows

package memmap

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func mapAnon(size int) ([]byte, func([]byte) error, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, nil, err
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	unmap := func(b []byte) error {
		return windows.VirtualFree(uintptr(unsafe.Pointer(unsafe.SliceData(b))), 0, windows.MEM_RELEASE)
	}
	return data, unmap, nil
}

// releasePages decommits and recommits b; recommitted pages are zero-filled.
func releasePages(b []byte) error {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	if err := windows.VirtualFree(addr, uintptr(len(b)), windows.MEM_DECOMMIT); err != nil {
		return err
	}
	_, err := windows.VirtualAlloc(addr, uintptr(len(b)), windows.MEM_COMMIT, windows.PAGE_READWRITE)
	return err
}

func protect(b []byte, access Access) error {
	prot := uint32(windows.PAGE_READWRITE)
	if access == None {
		prot = windows.PAGE_NOACCESS
	}
	var old uint32
	return windows.VirtualProtect(uintptr(unsafe.Pointer(unsafe.SliceData(b))), uintptr(len(b)), prot, &old)
}
