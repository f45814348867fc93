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

package hostarch

import (
	"testing"
)

func TestAlignUp(t *testing.T) {
	for _, tc := range []struct {
		addr  Addr
		align uintptr
		want  Addr
		ok    bool
	}{
		{0, 4096, 0, true},
		{1, 4096, 4096, true},
		{4095, 4096, 4096, true},
		{4096, 4096, 4096, true},
		{4097, 4096, 8192, true},
		{0x7ffc1234, 0x1000, 0x7ffc2000, true},
		// Non power-of-two alignments still yield the next multiple.
		{10, 3, 12, true},
		{12, 3, 12, true},
		{^Addr(0) - 1, 4096, 0, false},
	} {
		got, ok := tc.addr.AlignUp(tc.align)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("%#x.AlignUp(%d) = (%#x, %t), want (%#x, %t)", uintptr(tc.addr), tc.align, uintptr(got), ok, uintptr(tc.want), tc.ok)
		}
	}
}

// TestAlignUpSmallestMultiple checks that AlignUp returns the smallest
// multiple of the alignment that is not below the address.
func TestAlignUpSmallestMultiple(t *testing.T) {
	for _, align := range []uintptr{1, 2, 3, 512, 4096, 16384, 65536} {
		for a := Addr(0); a < Addr(3*align+7); a += Addr(align/3 + 1) {
			got, ok := a.AlignUp(align)
			if !ok {
				t.Fatalf("%#x.AlignUp(%d) wrapped", uintptr(a), align)
			}
			if !got.IsAligned(align) {
				t.Errorf("%#x.AlignUp(%d) = %#x is not aligned", uintptr(a), align, uintptr(got))
			}
			if got < a {
				t.Errorf("%#x.AlignUp(%d) = %#x is below the input", uintptr(a), align, uintptr(got))
			}
			if got >= a+Addr(align) {
				t.Errorf("%#x.AlignUp(%d) = %#x is not the smallest multiple", uintptr(a), align, uintptr(got))
			}
			if a.IsAligned(align) && got != a {
				t.Errorf("%#x.AlignUp(%d) = %#x, want unchanged", uintptr(a), align, uintptr(got))
			}
		}
	}
}

func TestAlignDown(t *testing.T) {
	if got := Addr(0x12345).AlignDown(0x1000); got != 0x12000 {
		t.Errorf("AlignDown = %#x, want 0x12000", uintptr(got))
	}
	if got := Addr(0x12000).AlignDown(0x1000); got != 0x12000 {
		t.Errorf("AlignDown = %#x, want 0x12000", uintptr(got))
	}
}

func TestAddrRangeContains(t *testing.T) {
	ar := AddrRange{0x1000, 0x2000}
	for _, tc := range []struct {
		addr Addr
		want bool
	}{
		{0x0fff, false},
		{0x1000, true},
		{0x1500, true},
		{0x1fff, true},
		{0x2000, false},
		{0x3000, false},
	} {
		if got := ar.Contains(tc.addr); got != tc.want {
			t.Errorf("%v.Contains(%#x) = %t, want %t", ar, uintptr(tc.addr), got, tc.want)
		}
	}
	var empty AddrRange
	if !empty.IsEmpty() {
		t.Errorf("zero AddrRange is not empty")
	}
	if empty.Contains(0) {
		t.Errorf("empty range contains 0")
	}
}

func TestPageRanges(t *testing.T) {
	below, ok := PagesBelow(0x10000, 1, 0x1000)
	if !ok || below != (AddrRange{0xf000, 0x10000}) {
		t.Errorf("PagesBelow = %v, %t", below, ok)
	}
	if _, ok := PagesBelow(0x1000, 2, 0x1000); ok {
		t.Errorf("PagesBelow wrapping below zero reported ok")
	}
	above, ok := PageRange(0x10000, 2, 0x1000)
	if !ok || above != (AddrRange{0x10000, 0x12000}) {
		t.Errorf("PageRange = %v, %t", above, ok)
	}
}

func TestAddrRangeString(t *testing.T) {
	if got, want := (AddrRange{0x1000, 0x2000}).String(), "[0x1000, 0x2000)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
