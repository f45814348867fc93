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

package stackguard

import (
	"fmt"

	"gvisor.dev/stackguard/pkg/abi/linux"
	"gvisor.dev/stackguard/pkg/hostarch"
)

// AltStack is an alternate signal stack owned by one thread. Its mapping has
// an inaccessible guard page directly below the usable region.
//
// The zero value is the null AltStack, which owns nothing.
type AltStack struct {
	sp       uintptr
	size     uintptr
	pageSize uintptr
}

// IsNull returns true if s owns no mapping.
func (s AltStack) IsNull() bool {
	return s.sp == 0
}

// Addr returns the lowest usable address of s.
func (s AltStack) Addr() uintptr {
	return s.sp
}

// Size returns the usable size of s.
func (s AltStack) Size() uintptr {
	return s.size
}

// Usable returns the usable region of s.
func (s AltStack) Usable() hostarch.AddrRange {
	if s.IsNull() {
		return hostarch.AddrRange{}
	}
	return hostarch.AddrRange{Start: hostarch.Addr(s.sp), End: hostarch.Addr(s.sp + s.size)}
}

// Mapping returns the whole mapping of s, guard page included.
func (s AltStack) Mapping() hostarch.AddrRange {
	if s.IsNull() {
		return hostarch.AddrRange{}
	}
	return hostarch.AddrRange{Start: hostarch.Addr(s.sp - s.pageSize), End: hostarch.Addr(s.sp + s.size)}
}

// String implements fmt.Stringer.String.
func (s AltStack) String() string {
	if s.IsNull() {
		return "none"
	}
	return s.Usable().String()
}

// allocAltStack maps a new alternate signal stack. It does not arm it.
//
// Failures are fatal: the caller has no way to run without one once a
// handler depending on it is installed.
func allocAltStack(h Host, pageSize uintptr) AltStack {
	size := h.SigStackSize()
	addr, err := h.MapStack(size + pageSize)
	if err != nil {
		panic(fmt.Sprintf("stackguard: failed to allocate an alternative stack: %v", err))
	}
	if err := h.ProtectNone(addr, pageSize); err != nil {
		panic(fmt.Sprintf("stackguard: failed to set up alternative stack guard page: %v", err))
	}
	return AltStack{sp: addr + pageSize, size: size, pageSize: pageSize}
}

// release disables the calling thread's alternate signal stack and unmaps s.
// It must be called by the thread that armed s. Releasing the null AltStack
// does nothing.
func (s AltStack) release(h Host) {
	if s.IsNull() {
		return
	}
	ss := linux.SignalStack{Flags: linux.SS_DISABLE, Size: uint64(s.size)}
	if err := h.SetSignalStack(&ss); err != nil {
		panic(fmt.Sprintf("stackguard: failed to disable the alternative stack: %v", err))
	}
	if err := h.Unmap(s.sp-s.pageSize, s.size+s.pageSize); err != nil {
		panic(fmt.Sprintf("stackguard: failed to unmap the alternative stack at %v: %v", s.Mapping(), err))
	}
}

// armAltStack gives the calling thread an alternate signal stack if the
// installed handlers need one and the thread does not have one already. The
// returned AltStack is null if nothing was allocated.
func (p *Process) armAltStack() AltStack {
	if !p.needAltStack.Load() {
		return AltStack{}
	}
	cur, err := p.host.SignalStack()
	if err != nil {
		panic(fmt.Sprintf("stackguard: failed to query the alternative stack: %v", err))
	}
	if cur.IsEnabled() {
		return AltStack{}
	}
	s := allocAltStack(p.host, p.PageSize())
	ss := linux.SignalStack{Addr: uint64(s.sp), Size: uint64(s.size)}
	if err := p.host.SetSignalStack(&ss); err != nil {
		panic(fmt.Sprintf("stackguard: failed to arm the alternative stack at %v: %v", s, err))
	}
	return s
}
