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

// Package hostarch provides host address arithmetic used when reasoning about
// raw virtual memory layout.
package hostarch

import (
	"fmt"
)

// Addr represents a host virtual address.
type Addr uintptr

// AddLength adds the given length to start and returns the result. ok is true
// iff adding the length did not overflow the range of Addr.
//
// Note: This function is usually used to get the end of an address range
// defined by its start address and length. Since the resulting end is
// exclusive, end == 0 is technically valid, and corresponds to a range that
// extends to the end of the address space, but ok will be false. This isn't
// expected to ever come up in practice.
//
//go:nosplit
func (v Addr) AddLength(length uintptr) (end Addr, ok bool) {
	end = v + Addr(length)
	// The second half of the following check is needed in case uint64(v)
	// is large enough that the addition wraps.
	ok = end >= v
	return
}

// SubLength subtracts length from v. ok is true iff the subtraction did not
// wrap below zero.
//
//go:nosplit
func (v Addr) SubLength(length uintptr) (start Addr, ok bool) {
	start = v - Addr(length)
	ok = start <= v
	return
}

// AlignDown returns v rounded down to the nearest multiple of align.
//
// Preconditions: align > 0.
func (v Addr) AlignDown(align uintptr) Addr {
	return v - Addr(uintptr(v)%align)
}

// AlignUp returns the smallest multiple of align that is >= v. ok is true iff
// rounding up did not wrap around.
//
// The alignment does not have to be a power of two: a parent process may
// have configured a stack limit that is not a multiple of anything in
// particular, and the result is still the next boundary above v.
//
// Preconditions: align > 0.
func (v Addr) AlignUp(align uintptr) (addr Addr, ok bool) {
	rem := uintptr(v) % align
	if rem == 0 {
		return v, true
	}
	return v.AddLength(align - rem)
}

// IsAligned returns true if v is a multiple of align.
//
// Preconditions: align > 0.
func (v Addr) IsAligned(align uintptr) bool {
	return uintptr(v)%align == 0
}

// String implements fmt.Stringer.String.
func (v Addr) String() string {
	return fmt.Sprintf("%#x", uintptr(v))
}

// AddrRange is a half-open range of Addrs.
type AddrRange struct {
	Start Addr
	End   Addr
}

// WellFormed returns true if ar.Start <= ar.End. All other methods on an
// AddrRange require that the AddrRange is well-formed.
//
//go:nosplit
func (ar AddrRange) WellFormed() bool {
	return ar.Start <= ar.End
}

// Length returns the length of the range.
//
//go:nosplit
func (ar AddrRange) Length() uintptr {
	return uintptr(ar.End - ar.Start)
}

// Contains returns true if ar contains x.
//
// Only unsigned comparisons are used, so this is safe to call on addresses
// that do not point at mapped memory.
//
//go:nosplit
func (ar AddrRange) Contains(x Addr) bool {
	return ar.Start <= x && x < ar.End
}

// Overlaps returns true if ar and ar2 overlap.
func (ar AddrRange) Overlaps(ar2 AddrRange) bool {
	return ar.Start < ar2.End && ar2.Start < ar.End
}

// IsEmpty returns true if ar contains no addresses.
//
//go:nosplit
func (ar AddrRange) IsEmpty() bool {
	return ar.Start >= ar.End
}

// String implements fmt.Stringer.String.
func (ar AddrRange) String() string {
	return fmt.Sprintf("[%#x, %#x)", uintptr(ar.Start), uintptr(ar.End))
}

// PageRange returns the range [start, start+pages*pageSize). ok is false if
// the end wraps around the address space.
func PageRange(start Addr, pages, pageSize uintptr) (AddrRange, bool) {
	end, ok := start.AddLength(pages * pageSize)
	return AddrRange{start, end}, ok
}

// PagesBelow returns the range [end-pages*pageSize, end). ok is false if the
// start wraps below zero.
func PagesBelow(end Addr, pages, pageSize uintptr) (AddrRange, bool) {
	start, ok := end.SubLength(pages * pageSize)
	return AddrRange{start, end}, ok
}
