// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux
// +build linux

// Package memutil provides utilities for working with anonymous memory
// mappings at raw addresses.
package memutil

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// MapAnon maps length bytes of private anonymous memory with the given
// protection. extraFlags is or'ed into MAP_PRIVATE|MAP_ANONYMOUS.
func MapAnon(length uintptr, prot, extraFlags int) (uintptr, error) {
	addr, _, errno := unix.RawSyscall6(
		unix.SYS_MMAP,
		0,
		length,
		uintptr(prot),
		uintptr(unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|extraFlags),
		^uintptr(0), /* fd */
		0 /* offset */)
	if errno != 0 {
		return 0, errno
	}
	return addr, nil
}

// MapFixed maps length bytes of private anonymous memory exactly at addr,
// replacing whatever was mapped there.
func MapFixed(addr, length uintptr, prot int) (uintptr, error) {
	got, _, errno := unix.RawSyscall6(
		unix.SYS_MMAP,
		addr,
		length,
		uintptr(prot),
		uintptr(unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED),
		^uintptr(0), /* fd */
		0 /* offset */)
	if errno != 0 {
		return 0, errno
	}
	return got, nil
}

// Protect changes the protection of [addr, addr+length).
func Protect(addr, length uintptr, prot int) error {
	if _, _, errno := unix.RawSyscall(unix.SYS_MPROTECT, addr, length, uintptr(prot)); errno != 0 {
		return errno
	}
	return nil
}

// Unmap unmaps [addr, addr+length).
func Unmap(addr, length uintptr) error {
	if _, _, errno := unix.RawSyscall(unix.SYS_MUNMAP, addr, length, 0); errno != 0 {
		return errno
	}
	return nil
}

// MapSlice is like MapAnon, but returns a slice instead of a uintptr.
func MapSlice(length uintptr, prot, extraFlags int) ([]byte, error) {
	addr, err := MapAnon(length, prot, extraFlags)
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length)), nil
}

// UnmapSlice unmaps a mapping returned by MapSlice.
func UnmapSlice(slice []byte) error {
	ptr := unsafe.SliceData(slice)
	return Unmap(uintptr(unsafe.Pointer(ptr)), uintptr(cap(slice)))
}
