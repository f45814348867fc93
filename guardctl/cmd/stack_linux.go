// Copyright 2026 The gVisor Authors.
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

package cmd

import (
	"unsafe"

	"golang.org/x/sys/unix"
	"gvisor.dev/stackguard/pkg/memutil"
	"gvisor.dev/stackguard/pkg/stackguard"
)

// mapStack maps a stack region of size bytes whose lowest page is made
// inaccessible, and describes it the way a thread library would: the usable
// part starts above the guard page.
func mapStack(size uintptr) (stackguard.StackInfo, func(), error) {
	page := uintptr(unix.Getpagesize())
	size = (size + page - 1) &^ (page - 1)
	b, err := memutil.MapSlice(size+page, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_STACK)
	if err != nil {
		return stackguard.StackInfo{}, nil, err
	}
	base := uintptr(unsafe.Pointer(&b[0]))
	if err := memutil.Protect(base, page, unix.PROT_NONE); err != nil {
		memutil.UnmapSlice(b)
		return stackguard.StackInfo{}, nil, err
	}
	info := stackguard.StackInfo{Addr: base + page, Size: size, Guard: page}
	return info, func() { memutil.UnmapSlice(b) }, nil
}
